package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/tidal-mcp/internal/session"
	"github.com/desertthunder/tidal-mcp/internal/tidal"
	"github.com/desertthunder/tidal-mcp/internal/ui"
	"github.com/urfave/cli/v3"
)

// Login runs the device login and stores the session.
func (r *Runner) Login(ctx context.Context, cmd *cli.Command) error {
	a, err := r.open(appOpts{notify: r.printDeviceCode})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.Login(ctx); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	st := a.store.Status()
	r.writePlainln("%s", ui.OK("Logged in to TIDAL"))
	r.writePlainln("%s", ui.Field("User", st.UserID))
	r.writePlainln("%s", ui.Field("Session", st.Path))
	return nil
}

func (r *Runner) printDeviceCode(dc *tidal.DeviceCode) {
	r.writePlainln("%s", ui.Title("Approve this device in your browser"))
	r.writePlainln("%s", ui.Field("URL", dc.VerificationURL))
	r.writePlainln("%s", ui.Field("Code", dc.UserCode))
	r.writePlainln("%s", ui.Help(fmt.Sprintf("The code expires in %s.", time.Duration(dc.ExpiresIn)*time.Second)))
}

type statusOutput struct {
	Authenticated bool `json:"authenticated"`
	session.Status
}

// Status reports whether the stored session is accepted by TIDAL.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	a, err := r.open(appOpts{})
	if err != nil {
		return err
	}
	defer a.Close()

	out := statusOutput{Authenticated: a.store.EnsureAuthenticated(ctx), Status: a.store.Status()}
	if cmd.Bool("json") {
		return r.writeJSON(out, true)
	}

	switch {
	case out.Authenticated:
		r.writePlainln("%s", ui.OK("Authenticated"))
	case out.HasCredential:
		r.writePlainln("%s", ui.Warn("Session found but TIDAL rejected it; run 'tidal-mcp login'"))
	default:
		r.writePlainln("%s", ui.Err("Not authenticated; run 'tidal-mcp login'"))
	}

	if out.HasCredential {
		r.writePlainln("%s", ui.Field("User", out.UserID))
		r.writePlainln("%s", ui.Field("Country", out.CountryCode))
		if !out.Expiry.IsZero() {
			r.writePlainln("%s", ui.Field("Expires", out.Expiry.Local().Format(time.RFC1123)))
		}
	}
	r.writePlainln("%s", ui.Field("Session", out.Path))
	return nil
}

// Logout removes the stored session.
func (r *Runner) Logout(ctx context.Context, cmd *cli.Command) error {
	a, err := r.open(appOpts{})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.Logout(); err != nil {
		return err
	}
	r.writePlainln("%s", ui.OK("Logged out"))
	return nil
}

func loginCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "login",
		Usage:  "Log in to TIDAL with the browser device flow",
		Action: r.Login,
	}
}

func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the stored session and check it against TIDAL",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Status,
	}
}

func logoutCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Forget the stored session",
		Action: r.Logout,
	}
}
