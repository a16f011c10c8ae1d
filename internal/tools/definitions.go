package tools

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/desertthunder/tidal-mcp/internal/shared"
)

// Tool names as advertised to clients.
const (
	Login               = "login"
	SearchTracks        = "search_tracks"
	GetFavorites        = "get_favorites"
	CreatePlaylist      = "create_playlist"
	AddTracksToPlaylist = "add_tracks_to_playlist"
	GetUserPlaylists    = "get_user_playlists"
	GetPlaylistTracks   = "get_playlist_tracks"
)

// Instructions is the server description sent during initialization.
const Instructions = `MCP server for the TIDAL music streaming service.

Provides tools for searching music, managing playlists and reading your TIDAL library.

Authentication:
- Run the 'login' tool first to authenticate with TIDAL in the browser
- The session is persisted and reused across restarts

Search:
- 'search_tracks' finds music and works best with artist names or song titles

Playlists:
- Create playlists with 'create_playlist'
- Add tracks with 'add_tracks_to_playlist'
- List your playlists with 'get_user_playlists'
- Read a playlist with 'get_playlist_tracks'

Library:
- Read your favorite tracks with 'get_favorites'`

// Definition describes a tool to a client.
type Definition struct {
	Name        string
	Title       string
	Description string
	ReadOnly    bool
	Idempotent  bool
	Destructive bool
	OpenWorld   bool
	InputSchema json.RawMessage
}

var definitions = map[string]Definition{
	Login: {
		Name:        Login,
		Title:       "Authenticate with TIDAL",
		Description: "Authenticate with TIDAL using the browser device login. Opens the browser automatically and waits until the login is approved.",
		OpenWorld:   true,
		InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
	},
	SearchTracks: {
		Name:        SearchTracks,
		Title:       "Search tracks",
		Description: "Search TIDAL for tracks. Works best with an artist name, a song title, or both. Returns id, title, artist, album and duration.",
		ReadOnly:    true,
		Idempotent:  true,
		OpenWorld:   true,
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Search query. Works best with an artist name, a song title, or 'Artist Song'."},
				"limit": {"type": "integer", "description": "Maximum number of results (default 10, max 50)."}
			},
			"required": ["query"]
		}`),
	},
	GetFavorites: {
		Name:        GetFavorites,
		Title:       "Get favorite tracks",
		Description: "List the user's favorite tracks, most recently added first.",
		ReadOnly:    true,
		Idempotent:  true,
		OpenWorld:   true,
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"limit": {"type": "integer", "description": "Maximum number of tracks (default 20)."}
			}
		}`),
	},
	CreatePlaylist: {
		Name:        CreatePlaylist,
		Title:       "Create playlist",
		Description: "Create a new playlist in the user's TIDAL account.",
		OpenWorld:   true,
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {"type": "string", "description": "Name of the playlist."},
				"description": {"type": "string", "description": "Optional description of the playlist."}
			},
			"required": ["name"]
		}`),
	},
	AddTracksToPlaylist: {
		Name:        AddTracksToPlaylist,
		Title:       "Add tracks to playlist",
		Description: "Add tracks to a playlist by TIDAL track id, in the given order. Ids that cannot be added are reported in 'failed'.",
		OpenWorld:   true,
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"playlist_id": {"type": "string", "description": "Id of the playlist to add to."},
				"track_ids": {"type": "array", "items": {"type": "string"}, "description": "TIDAL track ids to add, in order."}
			},
			"required": ["playlist_id", "track_ids"]
		}`),
	},
	GetUserPlaylists: {
		Name:        GetUserPlaylists,
		Title:       "Get user playlists",
		Description: "List the user's playlists with id, name, description and track count.",
		ReadOnly:    true,
		Idempotent:  true,
		OpenWorld:   true,
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"limit": {"type": "integer", "description": "Maximum number of playlists (default 20)."}
			}
		}`),
	},
	GetPlaylistTracks: {
		Name:        GetPlaylistTracks,
		Title:       "Get playlist tracks",
		Description: "List the tracks of a playlist.",
		ReadOnly:    true,
		Idempotent:  true,
		OpenWorld:   true,
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"playlist_id": {"type": "string", "description": "Id of the playlist."},
				"limit": {"type": "integer", "description": "Maximum number of tracks (default 100)."}
			},
			"required": ["playlist_id"]
		}`),
	},
}

// order is the advertised tool order.
var order = []string{Login, SearchTracks, GetFavorites, CreatePlaylist, AddTracksToPlaylist, GetUserPlaylists, GetPlaylistTracks}

// Lookup returns the definition of the named tool.
func Lookup(name string) (Definition, bool) {
	def, ok := definitions[name]
	return def, ok
}

// Definitions returns every tool definition in advertised order.
func Definitions() []Definition {
	defs := make([]Definition, 0, len(order))
	for _, name := range order {
		defs = append(defs, definitions[name])
	}
	return defs
}

// Limit is a result count. Whole numbers written with a fraction, such as 5.0, are accepted.
type Limit int

func (l *Limit) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return shared.Errorf(shared.ErrInvalidInput, "limit must be an integer")
	}
	*l = Limit(f)
	return nil
}

type LoginArgs struct{}

type SearchArgs struct {
	Query string `json:"query"`
	Limit Limit  `json:"limit,omitempty"`
}

type FavoritesArgs struct {
	Limit Limit `json:"limit,omitempty"`
}

type CreatePlaylistArgs struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type AddTracksArgs struct {
	PlaylistID string   `json:"playlist_id"`
	TrackIDs   []string `json:"track_ids"`
}

type UserPlaylistsArgs struct {
	Limit Limit `json:"limit,omitempty"`
}

type PlaylistTracksArgs struct {
	PlaylistID string `json:"playlist_id"`
	Limit      Limit  `json:"limit,omitempty"`
}
