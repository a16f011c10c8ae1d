package catalog

import (
	"strings"

	"github.com/desertthunder/tidal-mcp/internal/models"
	"github.com/desertthunder/tidal-mcp/internal/tidal"
)

const (
	UnknownArtist = "Unknown Artist"
	UnknownAlbum  = "Unknown Album"
	UnknownTitle  = "Unknown Title"
)

// TrackURL is the public browse url of a track.
func TrackURL(id string) string { return tidal.BrowseURL + "/track/" + id }

// PlaylistURL is the public browse url of a playlist.
func PlaylistURL(id string) string { return tidal.BrowseURL + "/playlist/" + id }

// NormalizeTrack maps a TIDAL track onto [models.Track]. Missing fields take their documented defaults.
func NormalizeTrack(t tidal.Track) models.Track {
	id := t.ID.String()
	return models.Track{
		ID:              id,
		Title:           orDefault(t.Title, UnknownTitle),
		Artist:          orDefault(artistName(t), UnknownArtist),
		Album:           orDefault(albumTitle(t), UnknownAlbum),
		DurationSeconds: max(t.Duration, 0),
		URL:             TrackURL(id),
	}
}

// NormalizeTracks maps every track, always returning a non-nil slice.
func NormalizeTracks(raw []tidal.Track) []models.Track {
	tracks := make([]models.Track, 0, len(raw))
	for _, t := range raw {
		tracks = append(tracks, NormalizeTrack(t))
	}
	return tracks
}

// NormalizePlaylist maps a TIDAL playlist onto [models.Playlist].
func NormalizePlaylist(p tidal.Playlist) models.Playlist {
	id := p.UUID.String()
	return models.Playlist{
		ID:          id,
		Name:        p.Title,
		Description: p.Description,
		TrackCount:  max(p.NumberOfTracks, 0),
		URL:         PlaylistURL(id),
	}
}

// NormalizePlaylists maps every playlist, always returning a non-nil slice.
func NormalizePlaylists(raw []tidal.Playlist) []models.Playlist {
	playlists := make([]models.Playlist, 0, len(raw))
	for _, p := range raw {
		playlists = append(playlists, NormalizePlaylist(p))
	}
	return playlists
}

// artistName prefers the main artist, then the first credited artist with a name.
func artistName(t tidal.Track) string {
	if t.Artist != nil && strings.TrimSpace(t.Artist.Name) != "" {
		return t.Artist.Name
	}
	for _, a := range t.Artists {
		if strings.TrimSpace(a.Name) != "" {
			return a.Name
		}
	}
	return ""
}

func albumTitle(t tidal.Track) string {
	if t.Album == nil {
		return ""
	}
	return t.Album.Title
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
