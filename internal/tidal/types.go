package tidal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is a TIDAL identifier. Track ids arrive as JSON numbers, playlist ids as strings.
type ID string

// UnmarshalJSON accepts a JSON string, a JSON number, or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("tidal id must be a string or number: %w", err)
		}
		*id = ID(n.String())
	}
	return nil
}

func (id ID) String() string { return string(id) }

// Int returns the numeric form of id, for endpoints that only accept numeric ids.
func (id ID) Int() (int64, error) {
	return strconv.ParseInt(string(id), 10, 64)
}

// Artist is a track or album artist.
type Artist struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Album is the album summary embedded in a track.
type Album struct {
	ID    ID     `json:"id"`
	Title string `json:"title"`
	Cover string `json:"cover,omitempty"`
}

// Track is a TIDAL track as returned by search, favorites and playlist listings.
type Track struct {
	ID           ID       `json:"id"`
	Title        string   `json:"title"`
	Version      string   `json:"version,omitempty"`
	Duration     int      `json:"duration"`
	TrackNumber  int      `json:"trackNumber,omitempty"`
	Explicit     bool     `json:"explicit,omitempty"`
	ISRC         string   `json:"isrc,omitempty"`
	Artist       *Artist  `json:"artist,omitempty"`
	Artists      []Artist `json:"artists,omitempty"`
	Album        *Album   `json:"album,omitempty"`
	StreamReady  bool     `json:"streamReady,omitempty"`
	AudioQuality string   `json:"audioQuality,omitempty"`
}

// Creator identifies a playlist owner.
type Creator struct {
	ID ID `json:"id"`
}

// Playlist is a TIDAL playlist.
type Playlist struct {
	UUID           ID      `json:"uuid"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	NumberOfTracks int     `json:"numberOfTracks"`
	Duration       int     `json:"duration,omitempty"`
	Creator        Creator `json:"creator,omitempty"`
	Type           string  `json:"type,omitempty"`
	Created        string  `json:"created,omitempty"`
	LastUpdated    string  `json:"lastUpdated,omitempty"`
}

// Page is one page of a paged listing.
type Page[T any] struct {
	Limit              int `json:"limit"`
	Offset             int `json:"offset"`
	TotalNumberOfItems int `json:"totalNumberOfItems"`
	Items              []T `json:"items"`
}

// FavoriteTrack is one entry of the favorites listing.
type FavoriteTrack struct {
	Created string `json:"created"`
	Item    Track  `json:"item"`
}

// SessionInfo is the response of the sessions endpoint.
type SessionInfo struct {
	SessionID   string `json:"sessionId"`
	UserID      ID     `json:"userId"`
	CountryCode string `json:"countryCode"`
}

// DeviceCode is an in-progress device authorization.
type DeviceCode struct {
	DeviceCode      string
	UserCode        string
	VerificationURL string
	ExpiresIn       int
	Interval        int
}

// deviceAuthorization is the device authorization response body, which TIDAL returns in camelCase.
type deviceAuthorization struct {
	DeviceCode              string `json:"deviceCode"`
	UserCode                string `json:"userCode"`
	VerificationURI         string `json:"verificationUri"`
	VerificationURIComplete string `json:"verificationUriComplete"`
	ExpiresIn               int    `json:"expiresIn"`
	Interval                int    `json:"interval"`
}
