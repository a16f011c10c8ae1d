package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/desertthunder/tidal-mcp/internal/tools"
	"github.com/desertthunder/tidal-mcp/internal/ui"
	"github.com/urfave/cli/v3"
)

type toolInfo struct {
	Name        string          `json:"name"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	ReadOnly    bool            `json:"read_only"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ListTools prints the advertised tools. Nothing is wired, so it works without a config.
func (r *Runner) ListTools(ctx context.Context, cmd *cli.Command) error {
	defs := tools.Definitions()

	if cmd.Bool("json") {
		infos := make([]toolInfo, 0, len(defs))
		for _, def := range defs {
			infos = append(infos, toolInfo{
				Name:        def.Name,
				Title:       def.Title,
				Description: def.Description,
				ReadOnly:    def.ReadOnly,
				InputSchema: def.InputSchema,
			})
		}
		return r.writeJSON(infos, true)
	}

	rows := make([][]string, 0, len(defs))
	for _, def := range defs {
		access := "write"
		if def.ReadOnly {
			access = "read"
		}
		rows = append(rows, []string{def.Name, def.Title, access})
	}
	r.writePlainln("%s", ui.Table([]string{"Tool", "Title", "Access"}, rows))
	return nil
}

// Call dispatches one tool call and prints its envelope. A failed tool is still a printed envelope,
// so the command only errors when it cannot run the call at all.
func (r *Runner) Call(ctx context.Context, cmd *cli.Command) error {
	name := strings.TrimSpace(cmd.StringArg("tool"))
	if name == "" {
		return fmt.Errorf("tool name is required (see 'tidal-mcp tools')")
	}

	args := json.RawMessage(cmd.String("args"))
	if !json.Valid(args) {
		return fmt.Errorf("--args must be valid JSON")
	}

	a, err := r.open(appOpts{notify: r.printDeviceCode})
	if err != nil {
		return err
	}
	defer a.Close()

	return r.writeJSON(a.dispatcher.Call(ctx, name, args), cmd.Bool("pretty"))
}

func toolsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tools",
		Usage: "List the tools the server advertises",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output names, descriptions and input schemas as JSON",
			},
		},
		Action: r.ListTools,
	}
}

func callCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "call",
		Usage:     "Run one tool and print its result envelope",
		ArgsUsage: "<tool>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "tool"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "args",
				Usage: "Tool arguments as a JSON object",
				Value: "{}",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Indent the JSON output",
			},
		},
		Action: r.Call,
	}
}
