package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/desertthunder/tidal-mcp/internal/formatter"
	"github.com/desertthunder/tidal-mcp/internal/models"
	"github.com/desertthunder/tidal-mcp/internal/repositories"
	"github.com/desertthunder/tidal-mcp/internal/ui"
	"github.com/urfave/cli/v3"
)

// withDatabase opens the cache database for a single command.
func (r *Runner) withDatabase(fn func(db *sql.DB) error) error {
	if !r.config.Database.Enabled {
		return fmt.Errorf("the track cache is disabled (database.enabled = false)")
	}

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func tracksOf(cached []*models.CachedTrack) []models.Track {
	tracks := make([]models.Track, 0, len(cached))
	for _, c := range cached {
		tracks = append(tracks, c.Track())
	}
	return tracks
}

// CacheList prints the most recently seen tracks.
func (r *Runner) CacheList(ctx context.Context, cmd *cli.Command) error {
	return r.withDatabase(func(db *sql.DB) error {
		cached, err := repositories.NewTrackRepository(db).List(int(cmd.Int("limit")))
		if err != nil {
			return err
		}

		if cmd.Bool("json") {
			return r.writeJSON(tracksOf(cached), true)
		}

		if len(cached) == 0 {
			r.writePlainln("%s", ui.Help("No cached tracks."))
			return nil
		}

		rows := make([][]string, 0, len(cached))
		for _, c := range cached {
			t := c.Track()
			rows = append(rows, []string{t.ID, t.Title, t.Artist, formatter.FormatDuration(t.DurationSeconds), strconv.Itoa(c.Hits())})
		}
		r.writePlainln("%s", ui.Table([]string{"ID", "Title", "Artist", "Duration", "Seen"}, rows))
		return nil
	})
}

type cacheStats struct {
	Tracks int                          `json:"tracks"`
	Tools  []repositories.ToolCallStats `json:"tools"`
}

// CacheStats prints cache size and per-tool call counts.
func (r *Runner) CacheStats(ctx context.Context, cmd *cli.Command) error {
	return r.withDatabase(func(db *sql.DB) error {
		count, err := repositories.NewTrackRepository(db).Count()
		if err != nil {
			return err
		}
		stats, err := repositories.NewToolCallRepository(db).Stats()
		if err != nil {
			return err
		}
		if stats == nil {
			stats = []repositories.ToolCallStats{}
		}

		if cmd.Bool("json") {
			return r.writeJSON(cacheStats{Tracks: count, Tools: stats}, true)
		}

		r.writePlainln("%s", ui.Field("Cached tracks", strconv.Itoa(count)))
		if len(stats) > 0 {
			rows := make([][]string, 0, len(stats))
			for _, s := range stats {
				rows = append(rows, []string{s.Tool, strconv.Itoa(s.Calls), strconv.Itoa(s.Failures)})
			}
			r.writePlainln("%s", ui.Table([]string{"Tool", "Calls", "Failures"}, rows))
		}
		return nil
	})
}

type historyEntry struct {
	ID        string    `json:"id"`
	Tool      string    `json:"tool"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Duration  string    `json:"duration"`
	CreatedAt time.Time `json:"created_at"`
}

// CacheHistory prints the most recent tool calls.
func (r *Runner) CacheHistory(ctx context.Context, cmd *cli.Command) error {
	return r.withDatabase(func(db *sql.DB) error {
		calls, err := repositories.NewToolCallRepository(db).List(int(cmd.Int("limit")))
		if err != nil {
			return err
		}

		entries := make([]historyEntry, 0, len(calls))
		for _, c := range calls {
			entries = append(entries, historyEntry{
				ID:        c.ID(),
				Tool:      c.Tool(),
				Status:    c.Status(),
				Message:   c.Message(),
				Duration:  c.Duration().Round(time.Millisecond).String(),
				CreatedAt: c.CreatedAt(),
			})
		}

		if cmd.Bool("json") {
			return r.writeJSON(entries, true)
		}

		if len(entries) == 0 {
			r.writePlainln("%s", ui.Help("No tool calls recorded."))
			return nil
		}

		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{e.CreatedAt.Local().Format(time.DateTime), e.Tool, e.Status, e.Duration, e.Message})
		}
		r.writePlainln("%s", ui.Table([]string{"When", "Tool", "Status", "Took", "Message"}, rows))
		return nil
	})
}

// CacheExport renders cached tracks as csv, markdown, text or json.
func (r *Runner) CacheExport(ctx context.Context, cmd *cli.Command) error {
	return r.withDatabase(func(db *sql.DB) error {
		cached, err := repositories.NewTrackRepository(db).List(int(cmd.Int("limit")))
		if err != nil {
			return err
		}
		tracks := tracksOf(cached)

		export := formatter.Export{Title: "Cached TIDAL tracks", Tracks: tracks}
		format := cmd.String("format")

		if path := cmd.String("output"); path != "" {
			if err := formatter.WriteExport(export, format, path); err != nil {
				return err
			}
			r.writePlainln("%s", ui.OK(fmt.Sprintf("Exported %d tracks to %s", len(tracks), path)))
			return nil
		}

		data, err := formatter.Render(export, format)
		if err != nil {
			return err
		}
		return r.writePlain("%s", data)
	})
}

// CacheClear removes cached tracks and, with --history, the tool call history.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	return r.withDatabase(func(db *sql.DB) error {
		tracks, err := repositories.NewTrackRepository(db).Clear()
		if err != nil {
			return err
		}
		r.writePlainln("%s", ui.OK(fmt.Sprintf("Removed %d cached tracks", tracks)))

		if cmd.Bool("history") {
			calls, err := repositories.NewToolCallRepository(db).Clear()
			if err != nil {
				return err
			}
			r.writePlainln("%s", ui.OK(fmt.Sprintf("Removed %d tool calls", calls)))
		}
		return nil
	})
}

func cacheCommand(r *Runner) *cli.Command {
	asJSON := func() *cli.BoolFlag {
		return &cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}
	}

	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect the local track cache and tool history",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List recently seen tracks",
				Flags:  []cli.Flag{&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum rows", Value: 20}, asJSON()},
				Action: r.CacheList,
			},
			{
				Name:   "stats",
				Usage:  "Show cache size and per-tool call counts",
				Flags:  []cli.Flag{asJSON()},
				Action: r.CacheStats,
			},
			{
				Name:   "history",
				Usage:  "Show recent tool calls",
				Flags:  []cli.Flag{&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum rows", Value: 20}, asJSON()},
				Action: r.CacheHistory,
			},
			{
				Name:  "export",
				Usage: "Export cached tracks",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum rows", Value: 100},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format (csv, markdown, text, json)",
						Value:   formatter.FormatCSV,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write to this file instead of stdout",
					},
				},
				Action: r.CacheExport,
			},
			{
				Name:  "clear",
				Usage: "Remove cached tracks",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "history", Usage: "Also remove the tool call history"},
				},
				Action: r.CacheClear,
			},
		},
	}
}
