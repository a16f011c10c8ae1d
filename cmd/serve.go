package main

import (
	"context"

	"github.com/desertthunder/tidal-mcp/internal/server"
	"github.com/urfave/cli/v3"
)

// Serve runs the MCP server over stdio, or over streamable HTTP with --http.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	a, err := r.open(appOpts{})
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.NewMCPServer(a.dispatcher, version, r.logger)

	if !cmd.Bool("http") {
		r.logger.Info("serving MCP over stdio", "session", a.store.Path())
		return server.RunStdio(ctx, srv)
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}
	return server.ListenAndServe(ctx, addr, server.NewHTTPHandler(srv, version, r.logger), r.logger)
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the TIDAL tools over MCP (stdio by default)",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "http",
				Usage: "Serve streamable HTTP instead of stdio",
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address for --http (default: server.host:server.port)",
			},
		},
		Action: r.Serve,
	}
}
