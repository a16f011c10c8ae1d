// Package tools implements the MCP tools on top of the session and catalog.
//
// Every tool except login is gated: the session is checked first and an unauthenticated call
// returns the fixed error envelope without reaching TIDAL. Catalog calls run on the worker pool
// and every fault is folded into a [Failure], so nothing escapes to the transport.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tidal-mcp/internal/catalog"
	"github.com/desertthunder/tidal-mcp/internal/models"
	"github.com/desertthunder/tidal-mcp/internal/shared"
	"github.com/google/uuid"
)

// NotAuthenticatedMessage is returned by every gated tool while no valid session exists.
const NotAuthenticatedMessage = "Not authenticated. Please run the 'login' tool first."

// Sessions gates tool calls and runs the login flow. [session.Store] implements it.
type Sessions interface {
	EnsureAuthenticated(ctx context.Context) bool
	Login(ctx context.Context) error
}

// Catalog performs the upstream operations. [catalog.Catalog] implements it.
type Catalog interface {
	Search(ctx context.Context, query string, limit int) ([]models.Track, error)
	Favorites(ctx context.Context, limit int) ([]models.Track, error)
	CreatePlaylist(ctx context.Context, name, description string) (models.Playlist, error)
	AddTracks(ctx context.Context, playlistID string, trackIDs []string) (catalog.AddResult, error)
	UserPlaylists(ctx context.Context, limit int) ([]models.Playlist, error)
	PlaylistTracks(ctx context.Context, playlistID string, limit int) (catalog.PlaylistTracks, error)
}

// Submitter runs blocking work off the caller. [tasks.Pool] implements it.
type Submitter interface {
	Submit(ctx context.Context, fn func(context.Context) error) error
}

// TrackCacher receives every track list a tool returns.
type TrackCacher interface {
	CacheTracks(tracks []models.Track) error
}

// Recorder keeps a history of tool calls.
type Recorder interface {
	RecordCall(id, tool, status, message string, duration time.Duration) error
}

type Options struct {
	Sessions Sessions
	Catalog  Catalog
	Pool     Submitter   // Runs catalog calls; nil runs them on the caller goroutine
	Cache    TrackCacher // Optional
	Recorder Recorder    // Optional
	Logger   *log.Logger
}

// Tool is a registered tool with a handler taking raw JSON arguments.
type Tool struct {
	Definition
	Handler func(ctx context.Context, args json.RawMessage) Result
}

// Dispatcher routes tool calls.
type Dispatcher struct {
	sessions Sessions
	catalog  Catalog
	pool     Submitter
	cache    TrackCacher
	recorder Recorder
	logger   *log.Logger
	registry map[string]Tool
}

// New creates a Dispatcher with every tool registered.
func New(opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Pool == nil {
		opts.Pool = direct{}
	}

	d := &Dispatcher{
		sessions: opts.Sessions,
		catalog:  opts.Catalog,
		pool:     opts.Pool,
		cache:    opts.Cache,
		recorder: opts.Recorder,
		logger:   shared.WithLogger(opts.Logger, "component", "tools"),
	}

	d.registry = map[string]Tool{
		Login:               raw(d, Login, false, func(ctx context.Context, _ LoginArgs) Result { return d.Login(ctx) }),
		SearchTracks:        raw(d, SearchTracks, true, d.SearchTracks),
		GetFavorites:        raw(d, GetFavorites, true, d.GetFavorites),
		CreatePlaylist:      raw(d, CreatePlaylist, true, d.CreatePlaylist),
		AddTracksToPlaylist: raw(d, AddTracksToPlaylist, true, d.AddTracksToPlaylist),
		GetUserPlaylists:    raw(d, GetUserPlaylists, true, d.GetUserPlaylists),
		GetPlaylistTracks:   raw(d, GetPlaylistTracks, true, d.GetPlaylistTracks),
	}
	return d
}

// Tools returns the registered tools in advertised order.
func (d *Dispatcher) Tools() []Tool {
	tools := make([]Tool, 0, len(order))
	for _, name := range order {
		tools = append(tools, d.registry[name])
	}
	return tools
}

// Call invokes the named tool with JSON arguments.
func (d *Dispatcher) Call(ctx context.Context, name string, args json.RawMessage) Result {
	tool, ok := d.registry[name]
	if !ok {
		d.logger.Warn("unknown tool", "tool", name)
		return failure("Unknown tool: " + name)
	}
	return tool.Handler(ctx, args)
}

// raw adapts a typed tool method to JSON arguments. Decoding errors still pass the gate first,
// so an unauthenticated caller never learns more than [NotAuthenticatedMessage].
func raw[A any](d *Dispatcher, name string, gated bool, fn func(context.Context, A) Result) Tool {
	return Tool{
		Definition: definitions[name],
		Handler: func(ctx context.Context, data json.RawMessage) Result {
			var args A
			if err := decodeArgs(data, &args); err != nil {
				return d.run(ctx, name, gated, func() error { return err }, nil)
			}
			return fn(ctx, args)
		},
	}
}

func decodeArgs(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	err := json.Unmarshal(data, v)
	var described shared.Describer
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &described):
		return err
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return shared.Errorf(shared.ErrInvalidInput, "%s must not be a %s", typeErr.Field, typeErr.Value)
	case errors.As(err, &typeErr):
		return shared.Errorf(shared.ErrInvalidInput, "arguments must be an object")
	case errors.As(err, &syntaxErr):
		return shared.Errorf(shared.ErrInvalidInput, "arguments are not valid JSON")
	default:
		return shared.Errorf(shared.ErrInvalidInput, "arguments could not be decoded")
	}
}

func required(field, value string) error {
	if value == "" {
		return shared.Errorf(shared.ErrInvalidInput, "%s is required", field)
	}
	return nil
}

// run executes one tool call: gate, validate, then op on the pool.
func (d *Dispatcher) run(ctx context.Context, name string, gated bool, validate func() error, op func(context.Context) (Result, error)) Result {
	id := uuid.NewString()
	start := time.Now()
	logger := d.logger.With("request_id", id, "tool", name)

	var res Result
	switch {
	case gated && !d.sessions.EnsureAuthenticated(ctx):
		res = failure(NotAuthenticatedMessage)
	default:
		if err := validate(); err != nil {
			res = failure("Invalid arguments: " + shared.Describe(err))
			break
		}

		err := d.pool.Submit(ctx, func(ctx context.Context) error {
			r, err := op(ctx)
			res = r
			return err
		})
		if err != nil {
			logger.Warn("operation failed", "error", err)
			res = failure("Operation failed: " + shared.Describe(err))
		}
	}

	d.finish(logger, id, name, res, time.Since(start))
	return res
}

func (d *Dispatcher) finish(logger *log.Logger, id, name string, res Result, elapsed time.Duration) {
	status, message := StatusSuccess, ""
	if f, ok := res.(Failure); ok {
		status, message = StatusError, f.Message
		logger.Warn("tool call failed", "message", f.Message, "duration", elapsed)
	} else {
		logger.Debug("tool call", "duration", elapsed)
	}

	if d.recorder != nil {
		if err := d.recorder.RecordCall(id, name, status, message, elapsed); err != nil {
			logger.Warn("failed to record tool call", "error", err)
		}
	}
}

func (d *Dispatcher) cacheTracks(tracks []models.Track) {
	if d.cache == nil || len(tracks) == 0 {
		return
	}
	if err := d.cache.CacheTracks(tracks); err != nil {
		d.logger.Warn("failed to cache tracks", "count", len(tracks), "error", err)
	}
}

func noValidation() error { return nil }

// Login always runs the interactive flow, replacing any previous session. It is not gated and runs on the
// caller goroutine; a dropped client does not abort a login in progress.
func (d *Dispatcher) Login(ctx context.Context) Result {
	id := uuid.NewString()
	start := time.Now()
	logger := d.logger.With("request_id", id, "tool", Login)

	var res Result
	if err := d.sessions.Login(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("login failed", "error", err)
		res = failure("Authentication failed: " + shared.Describe(err))
	} else {
		res = AuthResult{Status: StatusSuccess, Message: "Successfully authenticated with TIDAL", Authenticated: true}
	}

	d.finish(logger, id, Login, res, time.Since(start))
	return res
}

func (d *Dispatcher) SearchTracks(ctx context.Context, args SearchArgs) Result {
	return d.run(ctx, SearchTracks, true,
		func() error { return required("query", args.Query) },
		func(ctx context.Context) (Result, error) {
			tracks, err := d.catalog.Search(ctx, args.Query, int(args.Limit))
			if err != nil {
				return nil, err
			}
			d.cacheTracks(tracks)
			return TrackList{Status: StatusSuccess, Query: args.Query, Count: len(tracks), Tracks: tracks}, nil
		})
}

func (d *Dispatcher) GetFavorites(ctx context.Context, args FavoritesArgs) Result {
	return d.run(ctx, GetFavorites, true, noValidation, func(ctx context.Context) (Result, error) {
		tracks, err := d.catalog.Favorites(ctx, int(args.Limit))
		if err != nil {
			return nil, err
		}
		d.cacheTracks(tracks)
		return TrackList{Status: StatusSuccess, Count: len(tracks), Tracks: tracks}, nil
	})
}

// CreatePlaylist leaves name checks to the catalog, which reports a blank name as an upstream rejection.
func (d *Dispatcher) CreatePlaylist(ctx context.Context, args CreatePlaylistArgs) Result {
	return d.run(ctx, CreatePlaylist, true, noValidation, func(ctx context.Context) (Result, error) {
		playlist, err := d.catalog.CreatePlaylist(ctx, args.Name, args.Description)
		if err != nil {
			return nil, err
		}
		return CreatePlaylistResult{
			Status:   StatusSuccess,
			Message:  fmt.Sprintf("Created playlist '%s'", playlist.Name),
			Playlist: playlist,
		}, nil
	})
}

func (d *Dispatcher) AddTracksToPlaylist(ctx context.Context, args AddTracksArgs) Result {
	return d.run(ctx, AddTracksToPlaylist, true,
		func() error { return required("playlist_id", args.PlaylistID) },
		func(ctx context.Context) (Result, error) {
			added, err := d.catalog.AddTracks(ctx, args.PlaylistID, args.TrackIDs)
			if err != nil {
				return nil, err
			}
			return AddTracksResult{
				Status:       StatusSuccess,
				Message:      fmt.Sprintf("Added %d tracks to playlist '%s'", added.Added, added.Playlist.Name),
				PlaylistID:   added.Playlist.ID,
				PlaylistName: added.Playlist.Name,
				PlaylistURL:  added.Playlist.URL,
				Added:        added.Added,
				Failed:       added.Failed,
			}, nil
		})
}

func (d *Dispatcher) GetUserPlaylists(ctx context.Context, args UserPlaylistsArgs) Result {
	return d.run(ctx, GetUserPlaylists, true, noValidation, func(ctx context.Context) (Result, error) {
		playlists, err := d.catalog.UserPlaylists(ctx, int(args.Limit))
		if err != nil {
			return nil, err
		}
		return PlaylistList{Status: StatusSuccess, Count: len(playlists), Playlists: playlists}, nil
	})
}

func (d *Dispatcher) GetPlaylistTracks(ctx context.Context, args PlaylistTracksArgs) Result {
	return d.run(ctx, GetPlaylistTracks, true,
		func() error { return required("playlist_id", args.PlaylistID) },
		func(ctx context.Context) (Result, error) {
			pt, err := d.catalog.PlaylistTracks(ctx, args.PlaylistID, int(args.Limit))
			if err != nil {
				return nil, err
			}
			d.cacheTracks(pt.Tracks)
			return PlaylistTracksResult{
				Status:       StatusSuccess,
				PlaylistID:   pt.Playlist.ID,
				PlaylistName: pt.Playlist.Name,
				Count:        len(pt.Tracks),
				Tracks:       pt.Tracks,
			}, nil
		})
}

// direct runs jobs on the caller goroutine, recovering panics like [tasks.Pool] does.
type direct struct{}

func (direct) Submit(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: job panicked", shared.ErrInternal)
		}
	}()
	return fn(context.WithoutCancel(ctx))
}
