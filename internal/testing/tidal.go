package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
)

const (
	StubToken   = "stub-access-token"
	StubUserID  = "4242"
	StubCountry = "US"

	// StubPlaylistPageSize is how many playlists the stub returns per page when no limit is given.
	StubPlaylistPageSize = 10
)

// StubTrack is a track served by [TidalStub].
type StubTrack struct {
	ID       int
	Title    string
	Artist   string
	Album    string
	Duration int
}

func (s StubTrack) json() map[string]any {
	t := map[string]any{"id": s.ID, "title": s.Title, "duration": s.Duration}
	if s.Artist != "" {
		t["artist"] = map[string]any{"id": s.ID * 10, "name": s.Artist}
		t["artists"] = []map[string]any{{"id": s.ID * 10, "name": s.Artist}}
	}
	if s.Album != "" {
		t["album"] = map[string]any{"id": s.ID * 100, "title": s.Album}
	}
	return t
}

type stubPlaylist struct {
	uuid        string
	title       string
	description string
	tracks      []string
	etag        int
}

func (p *stubPlaylist) json() map[string]any {
	return map[string]any{
		"uuid":           p.uuid,
		"title":          p.title,
		"description":    p.description,
		"numberOfTracks": len(p.tracks),
		"creator":        map[string]any{"id": StubUserID},
	}
}

// TidalStub is an in-memory stand-in for the TIDAL v1 API, served under /v1.
//
// It rejects requests without the stub bearer token and rejects a limit on the user playlists listing,
// like the real endpoint.
type TidalStub struct {
	*httptest.Server

	mu        sync.Mutex
	tracks    []StubTrack
	favorites []int
	playlists []*stubPlaylist
	failAdds  map[string]bool
	requests  []*url.URL
}

// NewTidalStub starts a stub server that is closed with the test.
func NewTidalStub(t *testing.T) *TidalStub {
	t.Helper()

	s := &TidalStub{failAdds: map[string]bool{}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/sessions", s.session)
	mux.HandleFunc("GET /v1/search/tracks", s.search)
	mux.HandleFunc("GET /v1/users/{uid}/favorites/tracks", s.favoriteTracks)
	mux.HandleFunc("GET /v1/users/{uid}/playlists", s.userPlaylists)
	mux.HandleFunc("POST /v1/users/{uid}/playlists", s.createPlaylist)
	mux.HandleFunc("GET /v1/playlists/{id}", s.playlist)
	mux.HandleFunc("POST /v1/playlists/{id}/items", s.addItems)
	mux.HandleFunc("GET /v1/playlists/{id}/tracks", s.playlistTracks)

	s.Server = httptest.NewServer(s.authorize(mux))
	t.Cleanup(s.Close)
	return s
}

// APIURL is the base url to configure a client with.
func (s *TidalStub) APIURL() string { return s.URL + "/v1" }

// AddTracks adds tracks to the searchable catalog.
func (s *TidalStub) AddTracks(tracks ...StubTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, tracks...)
}

// SetFavorites sets the favorite track ids, most recent first.
func (s *TidalStub) SetFavorites(ids ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.favorites = ids
}

// AddPlaylist adds a playlist owned by the stub user and returns its uuid.
func (s *TidalStub) AddPlaylist(title string, trackIDs ...string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addPlaylistLocked(title, "", trackIDs)
}

func (s *TidalStub) addPlaylistLocked(title, description string, trackIDs []string) string {
	p := &stubPlaylist{
		uuid:        fmt.Sprintf("pl-%d", len(s.playlists)+1),
		title:       title,
		description: description,
		tracks:      append([]string(nil), trackIDs...),
		etag:        1,
	}
	s.playlists = append(s.playlists, p)
	return p.uuid
}

// FailAdd makes adding trackID to any playlist fail.
func (s *TidalStub) FailAdd(trackID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAdds[trackID] = true
}

// PlaylistItems returns the track ids of a playlist.
func (s *TidalStub) PlaylistItems(uuid string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.findLocked(uuid); p != nil {
		return append([]string(nil), p.tracks...)
	}
	return nil
}

// Requests returns every request url received, in order.
func (s *TidalStub) Requests() []*url.URL {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*url.URL(nil), s.requests...)
}

// RequestsTo returns the recorded requests whose path is path.
func (s *TidalStub) RequestsTo(path string) []*url.URL {
	var matched []*url.URL
	for _, u := range s.Requests() {
		if u.Path == path {
			matched = append(matched, u)
		}
	}
	return matched
}

func (s *TidalStub) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		u := *r.URL
		s.requests = append(s.requests, &u)
		s.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+StubToken {
			writeStubError(w, http.StatusUnauthorized, 11002, "The token has expired.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *TidalStub) findLocked(uuid string) *stubPlaylist {
	for _, p := range s.playlists {
		if p.uuid == uuid {
			return p
		}
	}
	return nil
}

func (s *TidalStub) trackLocked(id string) (StubTrack, bool) {
	for _, t := range s.tracks {
		if strconv.Itoa(t.ID) == id {
			return t, true
		}
	}
	return StubTrack{}, false
}

func (s *TidalStub) session(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.Atoi(StubUserID)
	writeStubJSON(w, http.StatusOK, map[string]any{"sessionId": "stub-session", "userId": n, "countryCode": StubCountry})
}

func (s *TidalStub) search(w http.ResponseWriter, r *http.Request) {
	query := strings.ToLower(r.URL.Query().Get("query"))
	limit := queryInt(r, "limit", 10)

	s.mu.Lock()
	var items []map[string]any
	for _, t := range s.tracks {
		if len(items) >= limit {
			break
		}
		if strings.Contains(strings.ToLower(t.Title+" "+t.Artist), query) {
			items = append(items, t.json())
		}
	}
	s.mu.Unlock()

	writeStubPage(w, items, limit, 0, len(items))
}

func (s *TidalStub) favoriteTracks(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)

	s.mu.Lock()
	var items []map[string]any
	for _, id := range s.favorites {
		if len(items) >= limit {
			break
		}
		if t, ok := s.trackLocked(strconv.Itoa(id)); ok {
			items = append(items, map[string]any{"created": "2024-01-01T00:00:00.000+0000", "item": t.json()})
		}
	}
	total := len(s.favorites)
	s.mu.Unlock()

	writeStubPage(w, items, limit, 0, total)
}

func (s *TidalStub) userPlaylists(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Has("limit") {
		writeStubError(w, http.StatusBadRequest, 1002, "Parameter limit is not supported")
		return
	}
	offset := queryInt(r, "offset", 0)

	s.mu.Lock()
	var items []map[string]any
	for i := offset; i < len(s.playlists) && len(items) < StubPlaylistPageSize; i++ {
		items = append(items, s.playlists[i].json())
	}
	total := len(s.playlists)
	s.mu.Unlock()

	writeStubPage(w, items, StubPlaylistPageSize, offset, total)
}

func (s *TidalStub) createPlaylist(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeStubError(w, http.StatusBadRequest, 1001, "Malformed form")
		return
	}
	title := strings.TrimSpace(r.PostForm.Get("title"))
	if title == "" {
		writeStubError(w, http.StatusBadRequest, 1005, "Playlist title must not be empty")
		return
	}

	s.mu.Lock()
	uuid := s.addPlaylistLocked(title, r.PostForm.Get("description"), nil)
	body := s.findLocked(uuid).json()
	s.mu.Unlock()

	writeStubJSON(w, http.StatusCreated, body)
}

func (s *TidalStub) playlist(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	p := s.findLocked(r.PathValue("id"))
	var body map[string]any
	var etag int
	if p != nil {
		body, etag = p.json(), p.etag
	}
	s.mu.Unlock()

	if p == nil {
		writeStubError(w, http.StatusNotFound, 2001, "Playlist could not be found")
		return
	}
	w.Header().Set("ETag", fmt.Sprintf(`"%d"`, etag))
	writeStubJSON(w, http.StatusOK, body)
}

func (s *TidalStub) addItems(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeStubError(w, http.StatusBadRequest, 1001, "Malformed form")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.findLocked(r.PathValue("id"))
	if p == nil {
		writeStubError(w, http.StatusNotFound, 2001, "Playlist could not be found")
		return
	}
	if want := fmt.Sprintf(`"%d"`, p.etag); r.Header.Get("If-None-Match") != want {
		writeStubError(w, http.StatusPreconditionFailed, 6002, "The playlist has been modified")
		return
	}

	ids := strings.Split(r.PostForm.Get("trackIds"), ",")
	for _, id := range ids {
		if id == "" || s.failAdds[id] {
			writeStubError(w, http.StatusBadRequest, 2001, "Track not found: "+id)
			return
		}
	}
	p.tracks = append(p.tracks, ids...)
	p.etag++

	w.Header().Set("ETag", fmt.Sprintf(`"%d"`, p.etag))
	writeStubJSON(w, http.StatusOK, map[string]any{"lastUpdated": 1, "addedItemIds": ids})
}

func (s *TidalStub) playlistTracks(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)

	s.mu.Lock()
	p := s.findLocked(r.PathValue("id"))
	var items []map[string]any
	total := 0
	if p != nil {
		total = len(p.tracks)
		for _, id := range p.tracks {
			if len(items) >= limit {
				break
			}
			if t, ok := s.trackLocked(id); ok {
				items = append(items, t.json())
			} else {
				items = append(items, map[string]any{"id": id, "title": ""})
			}
		}
	}
	s.mu.Unlock()

	if p == nil {
		writeStubError(w, http.StatusNotFound, 2001, "Playlist could not be found")
		return
	}
	writeStubPage(w, items, limit, 0, total)
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil {
		return v
	}
	return fallback
}

func writeStubPage(w http.ResponseWriter, items []map[string]any, limit, offset, total int) {
	if items == nil {
		items = []map[string]any{}
	}
	writeStubJSON(w, http.StatusOK, map[string]any{
		"limit":              limit,
		"offset":             offset,
		"totalNumberOfItems": total,
		"items":              items,
	})
}

func writeStubError(w http.ResponseWriter, status, subStatus int, msg string) {
	writeStubJSON(w, status, map[string]any{"status": status, "subStatus": subStatus, "userMessage": msg})
}

func writeStubJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
