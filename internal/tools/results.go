package tools

import "github.com/desertthunder/tidal-mcp/internal/models"

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the envelope every tool returns. Implementations marshal to the JSON shape sent to clients.
type Result interface {
	OK() bool
}

// Failure is the error envelope.
type Failure struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (Failure) OK() bool { return false }

func failure(msg string) Failure { return Failure{Status: StatusError, Message: msg} }

type AuthResult struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	Authenticated bool   `json:"authenticated"`
}

func (AuthResult) OK() bool { return true }

type TrackList struct {
	Status string         `json:"status"`
	Query  string         `json:"query,omitempty"`
	Count  int            `json:"count"`
	Tracks []models.Track `json:"tracks"`
}

func (TrackList) OK() bool { return true }

type PlaylistList struct {
	Status    string            `json:"status"`
	Count     int               `json:"count"`
	Playlists []models.Playlist `json:"playlists"`
}

func (PlaylistList) OK() bool { return true }

type CreatePlaylistResult struct {
	Status   string          `json:"status"`
	Message  string          `json:"message"`
	Playlist models.Playlist `json:"playlist"`
}

func (CreatePlaylistResult) OK() bool { return true }

type AddTracksResult struct {
	Status       string   `json:"status"`
	Message      string   `json:"message"`
	PlaylistID   string   `json:"playlist_id"`
	PlaylistName string   `json:"playlist_name"`
	PlaylistURL  string   `json:"playlist_url"`
	Added        int      `json:"added"`
	Failed       []string `json:"failed"`
}

func (AddTracksResult) OK() bool { return true }

type PlaylistTracksResult struct {
	Status       string         `json:"status"`
	PlaylistID   string         `json:"playlist_id"`
	PlaylistName string         `json:"playlist_name"`
	Count        int            `json:"count"`
	Tracks       []models.Track `json:"tracks"`
}

func (PlaylistTracksResult) OK() bool { return true }
