package main

import (
	"database/sql"
	"fmt"

	"github.com/desertthunder/tidal-mcp/internal/catalog"
	"github.com/desertthunder/tidal-mcp/internal/repositories"
	"github.com/desertthunder/tidal-mcp/internal/session"
	"github.com/desertthunder/tidal-mcp/internal/shared"
	"github.com/desertthunder/tidal-mcp/internal/tasks"
	"github.com/desertthunder/tidal-mcp/internal/tidal"
	"github.com/desertthunder/tidal-mcp/internal/tools"
)

// app is the wired set of components behind the tools.
type app struct {
	client     *tidal.Client
	store      *session.Store
	pool       *tasks.Pool
	db         *sql.DB
	tracks     *repositories.TrackRepository
	calls      *repositories.ToolCallRepository
	dispatcher *tools.Dispatcher
}

type appOpts struct {
	notify func(*tidal.DeviceCode)
}

// open wires the application from the loaded configuration. A broken cache database is logged and
// the tools run without it.
func (r *Runner) open(opts appOpts) (*app, error) {
	cfg := r.config

	client, err := tidal.NewClient(tidal.Config{
		ClientID:     cfg.Tidal.ClientID,
		ClientSecret: cfg.Tidal.ClientSecret,
		APIURL:       cfg.Tidal.APIURL,
		AuthURL:      cfg.Tidal.AuthURL,
		Scopes:       cfg.Tidal.Scopes,
		Timeout:      cfg.Tidal.RequestTimeout,
		HTTPClient:   r.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set tidal.client_id in %s)", err, r.configPath)
	}

	a := &app{client: client}
	a.store = session.New(session.Options{
		Path:    shared.ExpandPath(cfg.Session.Path),
		Auth:    client,
		Logger:  r.logger,
		OpenURL: r.openURL,
		Notify:  opts.notify,
	})
	a.pool = tasks.NewPool(tasks.PoolOpts{Workers: cfg.Pool.Workers, RateLimit: cfg.Pool.RateLimit, Logger: r.logger})

	toolOpts := tools.Options{
		Sessions: a.store,
		Catalog:  catalog.New(client, a.store, r.logger),
		Pool:     a.pool,
		Logger:   r.logger,
	}

	if cfg.Database.Enabled {
		db, err := r.openDatabase()
		if err != nil {
			r.logger.Warn("track cache disabled", "error", err)
		} else {
			a.db = db
			a.tracks = repositories.NewTrackRepository(db)
			a.calls = repositories.NewToolCallRepository(db)
			toolOpts.Cache = repositories.NewTrackCacheAdapter(a.tracks)
			toolOpts.Recorder = a.calls
		}
	}

	a.dispatcher = tools.New(toolOpts)
	return a, nil
}

func (a *app) Close() {
	a.pool.Close()
	if a.db != nil {
		a.db.Close()
	}
}

// openDatabase opens the cache database and applies pending migrations.
func (r *Runner) openDatabase() (*sql.DB, error) {
	path := shared.ExpandPath(r.config.Database.Path)
	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	shared.ConfigureDatabase(db, r.config.Database)
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}
