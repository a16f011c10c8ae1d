// Package catalog adapts the TIDAL client to the operations the tools expose.
//
// It owns limit clamping and defaults, the client-side limiting of the user playlist listing,
// and the partial-success semantics of batch adds. Every result leaves the package normalized.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tidal-mcp/internal/models"
	"github.com/desertthunder/tidal-mcp/internal/shared"
	"github.com/desertthunder/tidal-mcp/internal/tidal"
)

const (
	MaxSearchLimit             = 50
	DefaultSearchLimit         = 10
	DefaultFavoritesLimit      = 20
	DefaultPlaylistsLimit      = 20
	DefaultPlaylistTracksLimit = 100
)

// Upstream is the subset of [tidal.Client] the catalog calls.
type Upstream interface {
	SearchTracks(ctx context.Context, cred tidal.Credential, query string, limit int) ([]tidal.Track, error)
	FavoriteTracks(ctx context.Context, cred tidal.Credential, limit int) ([]tidal.Track, error)
	CreatePlaylist(ctx context.Context, cred tidal.Credential, title, description string) (*tidal.Playlist, error)
	Playlist(ctx context.Context, cred tidal.Credential, id string) (*tidal.Playlist, string, error)
	AddTrack(ctx context.Context, cred tidal.Credential, playlistID, etag, trackID string) (string, error)
	UserPlaylists(ctx context.Context, cred tidal.Credential, offset int) (*tidal.Page[tidal.Playlist], error)
	PlaylistTracks(ctx context.Context, cred tidal.Credential, id string, limit int) ([]tidal.Track, error)
}

// Credentials yields the credential to act as. [session.Store] implements it.
type Credentials interface {
	Credential(ctx context.Context) (tidal.Credential, error)
}

// AddResult is the outcome of a batch add.
type AddResult struct {
	Playlist models.Playlist
	Added    int
	Failed   []string
}

// PlaylistTracks is a playlist with its leading tracks.
type PlaylistTracks struct {
	Playlist models.Playlist
	Tracks   []models.Track
}

// Catalog performs catalog operations as the current session.
type Catalog struct {
	upstream Upstream
	creds    Credentials
	logger   *log.Logger
}

// New creates a Catalog.
func New(upstream Upstream, creds Credentials, logger *log.Logger) *Catalog {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Catalog{upstream: upstream, creds: creds, logger: shared.WithLogger(logger, "component", "catalog")}
}

// ClampSearchLimit maps limit into [1, MaxSearchLimit]; non-positive values use the default.
func ClampSearchLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultSearchLimit
	case limit > MaxSearchLimit:
		return MaxSearchLimit
	default:
		return limit
	}
}

func orLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}

func (c *Catalog) credential(ctx context.Context) (tidal.Credential, error) {
	cred, err := c.creds.Credential(ctx)
	if err != nil {
		return tidal.Credential{}, fmt.Errorf("%w: %w", shared.ErrNotAuthenticated, err)
	}
	return cred, nil
}

// Search finds tracks matching query. The query is sent as given.
func (c *Catalog) Search(ctx context.Context, query string, limit int) ([]models.Track, error) {
	cred, err := c.credential(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := c.upstream.SearchTracks(ctx, cred, query, ClampSearchLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("search tracks: %w", err)
	}
	return NormalizeTracks(raw), nil
}

// Favorites lists the user's favorite tracks.
func (c *Catalog) Favorites(ctx context.Context, limit int) ([]models.Track, error) {
	cred, err := c.credential(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := c.upstream.FavoriteTracks(ctx, cred, orLimit(limit, DefaultFavoritesLimit))
	if err != nil {
		return nil, fmt.Errorf("get favorites: %w", err)
	}
	return NormalizeTracks(raw), nil
}

// CreatePlaylist creates a playlist. Blank names are refused before reaching TIDAL.
func (c *Catalog) CreatePlaylist(ctx context.Context, name, description string) (models.Playlist, error) {
	if strings.TrimSpace(name) == "" {
		return models.Playlist{}, fmt.Errorf("%w: %w", shared.ErrUpstream, shared.Errorf(shared.ErrInvalidInput, "playlist name must not be empty"))
	}

	cred, err := c.credential(ctx)
	if err != nil {
		return models.Playlist{}, err
	}

	raw, err := c.upstream.CreatePlaylist(ctx, cred, name, description)
	if err != nil {
		return models.Playlist{}, fmt.Errorf("create playlist: %w", err)
	}
	return NormalizePlaylist(*raw), nil
}

// AddTracks adds each id to the playlist in order, one request per id. Ids that fail are collected and the
// batch continues. Only an unresolvable playlist fails the whole call.
func (c *Catalog) AddTracks(ctx context.Context, playlistID string, trackIDs []string) (AddResult, error) {
	cred, err := c.credential(ctx)
	if err != nil {
		return AddResult{}, err
	}

	playlist, etag, err := c.resolvePlaylist(ctx, cred, playlistID)
	if err != nil {
		return AddResult{}, err
	}

	result := AddResult{Playlist: NormalizePlaylist(*playlist), Failed: []string{}}
	for _, raw := range trackIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			result.Failed = append(result.Failed, raw)
			continue
		}

		next, err := c.upstream.AddTrack(ctx, cred, playlistID, etag, id)
		if err != nil {
			c.logger.Warn("failed to add track", "playlist_id", playlistID, "track_id", id, "error", err)
			result.Failed = append(result.Failed, raw)
			if stale(err) {
				etag = c.refreshETag(ctx, cred, playlistID, etag)
			}
			continue
		}
		etag = next
		result.Added++
	}

	result.Playlist.TrackCount = playlist.NumberOfTracks + result.Added
	return result, nil
}

// stale reports whether err is TIDAL refusing a write made with an outdated ETag.
func stale(err error) bool {
	var apiErr *tidal.APIError
	return errors.As(err, &apiErr) && apiErr.Status == 412
}

func (c *Catalog) refreshETag(ctx context.Context, cred tidal.Credential, playlistID, etag string) string {
	if _, next, err := c.upstream.Playlist(ctx, cred, playlistID); err == nil && next != "" {
		return next
	}
	return etag
}

func (c *Catalog) resolvePlaylist(ctx context.Context, cred tidal.Credential, id string) (*tidal.Playlist, string, error) {
	playlist, etag, err := c.upstream.Playlist(ctx, cred, id)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, "", fmt.Errorf("get playlist: %w", shared.Errorf(shared.ErrNotFound, "playlist %s not found", id))
	}
	if err != nil {
		return nil, "", fmt.Errorf("get playlist: %w", err)
	}
	return playlist, etag, nil
}

// UserPlaylists returns the first limit playlists of the user, in TIDAL's order.
//
// The listing endpoint cannot be limited server-side, so the whole collection is fetched by
// offset and truncated here.
func (c *Catalog) UserPlaylists(ctx context.Context, limit int) ([]models.Playlist, error) {
	cred, err := c.credential(ctx)
	if err != nil {
		return nil, err
	}
	limit = orLimit(limit, DefaultPlaylistsLimit)

	var all []tidal.Playlist
	for offset := 0; ; {
		page, err := c.upstream.UserPlaylists(ctx, cred, offset)
		if err != nil {
			return nil, fmt.Errorf("get user playlists: %w", err)
		}

		all = append(all, page.Items...)
		offset += len(page.Items)
		if len(page.Items) == 0 || offset >= page.TotalNumberOfItems {
			break
		}
	}

	if len(all) > limit {
		all = all[:limit]
	}
	return NormalizePlaylists(all), nil
}

// PlaylistTracks returns the playlist and up to limit of its tracks.
func (c *Catalog) PlaylistTracks(ctx context.Context, playlistID string, limit int) (PlaylistTracks, error) {
	cred, err := c.credential(ctx)
	if err != nil {
		return PlaylistTracks{}, err
	}

	playlist, _, err := c.resolvePlaylist(ctx, cred, playlistID)
	if err != nil {
		return PlaylistTracks{}, err
	}

	raw, err := c.upstream.PlaylistTracks(ctx, cred, playlistID, orLimit(limit, DefaultPlaylistTracksLimit))
	if err != nil {
		return PlaylistTracks{}, fmt.Errorf("get playlist tracks: %w", err)
	}
	return PlaylistTracks{Playlist: NormalizePlaylist(*playlist), Tracks: NormalizeTracks(raw)}, nil
}
