package tidal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/tidal-mcp/internal/shared"
	tu "github.com/desertthunder/tidal-mcp/internal/testing"
)

func stubCredential() Credential {
	return Credential{TokenType: "Bearer", AccessToken: tu.StubToken, UserID: tu.StubUserID, CountryCode: tu.StubCountry}
}

func newStubClient(t *testing.T, stub *tu.TidalStub) *Client {
	t.Helper()
	c, err := NewClient(Config{ClientID: "test-client", APIURL: stub.APIURL(), AuthURL: stub.URL + "/auth"})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return c
}

func TestNewClient(t *testing.T) {
	t.Run("Missing Client ID", func(t *testing.T) {
		_, err := NewClient(Config{})
		if !errors.Is(err, shared.ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})

	t.Run("Defaults", func(t *testing.T) {
		c, err := NewClient(Config{ClientID: "id"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.apiURL != DefaultAPIURL {
			t.Errorf("expected default api url, got %s", c.apiURL)
		}
		if c.oauth.Endpoint.TokenURL != DefaultAuthURL+"/oauth2/token" {
			t.Errorf("unexpected token url %s", c.oauth.Endpoint.TokenURL)
		}
		if len(c.oauth.Scopes) != len(DefaultScopes) {
			t.Errorf("expected default scopes, got %v", c.oauth.Scopes)
		}
	})
}

func TestID(t *testing.T) {
	tc := []struct {
		name string
		in   string
		want ID
	}{
		{"number", `123456`, "123456"},
		{"string", `"0b8e0a4c-uuid"`, "0b8e0a4c-uuid"},
		{"null", `null`, ""},
	}
	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			var id ID
			if err := json.Unmarshal([]byte(tt.in), &id); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id != tt.want {
				t.Errorf("got %q, want %q", id, tt.want)
			}
		})
	}

	t.Run("rejects objects", func(t *testing.T) {
		var id ID
		if err := json.Unmarshal([]byte(`{"id":1}`), &id); err == nil {
			t.Error("expected error decoding an object")
		}
	})
}

func TestClient(t *testing.T) {
	ctx := context.Background()

	t.Run("SearchTracks", func(t *testing.T) {
		stub := tu.NewTidalStub(t)
		stub.AddTracks(
			tu.StubTrack{ID: 1, Title: "Blue Monday", Artist: "New Order", Album: "Substance", Duration: 448},
			tu.StubTrack{ID: 2, Title: "Blue Train", Artist: "John Coltrane", Album: "Blue Train", Duration: 643},
			tu.StubTrack{ID: 3, Title: "Red", Artist: "King Crimson", Album: "Red", Duration: 380},
		)
		c := newStubClient(t, stub)

		tracks, err := c.SearchTracks(ctx, stubCredential(), "blue", 5)
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(tracks) != 2 {
			t.Fatalf("expected 2 tracks, got %d", len(tracks))
		}
		if tracks[0].ID != "1" || tracks[0].Artist.Name != "New Order" || tracks[0].Album.Title != "Substance" {
			t.Errorf("unexpected first track %+v", tracks[0])
		}

		reqs := stub.RequestsTo("/v1/search/tracks")
		if len(reqs) != 1 {
			t.Fatalf("expected one search request, got %d", len(reqs))
		}
		q := reqs[0].Query()
		if q.Get("countryCode") != tu.StubCountry || q.Get("limit") != "5" || q.Get("query") != "blue" {
			t.Errorf("unexpected query %v", q)
		}
	})

	t.Run("FavoriteTracks", func(t *testing.T) {
		stub := tu.NewTidalStub(t)
		stub.AddTracks(tu.StubTrack{ID: 10, Title: "A"}, tu.StubTrack{ID: 11, Title: "B"})
		stub.SetFavorites(11, 10)
		c := newStubClient(t, stub)

		tracks, err := c.FavoriteTracks(ctx, stubCredential(), 20)
		if err != nil {
			t.Fatalf("favorites failed: %v", err)
		}
		if len(tracks) != 2 || tracks[0].ID != "11" {
			t.Errorf("expected favorites in stored order, got %+v", tracks)
		}
	})

	t.Run("Playlist Lifecycle", func(t *testing.T) {
		stub := tu.NewTidalStub(t)
		c := newStubClient(t, stub)
		cred := stubCredential()

		created, err := c.CreatePlaylist(ctx, cred, "Road Trip", "songs for driving")
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if created.UUID == "" || created.Title != "Road Trip" {
			t.Fatalf("unexpected playlist %+v", created)
		}

		_, etag, err := c.Playlist(ctx, cred, created.UUID.String())
		if err != nil {
			t.Fatalf("get playlist failed: %v", err)
		}
		if etag == "" {
			t.Fatal("expected an etag")
		}

		next, err := c.AddTrack(ctx, cred, created.UUID.String(), etag, "77")
		if err != nil {
			t.Fatalf("add failed: %v", err)
		}
		if next == etag {
			t.Error("expected a new etag after modification")
		}
		if items := stub.PlaylistItems(created.UUID.String()); len(items) != 1 || items[0] != "77" {
			t.Errorf("unexpected playlist items %v", items)
		}
	})

	t.Run("Playlist NotFound", func(t *testing.T) {
		stub := tu.NewTidalStub(t)
		c := newStubClient(t, stub)

		_, _, err := c.Playlist(ctx, stubCredential(), "nope")
		if !errors.Is(err, shared.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if !errors.Is(err, shared.ErrUpstream) {
			t.Error("not found should also match ErrUpstream")
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.Status != http.StatusNotFound || apiErr.SubStatus != 2001 {
			t.Errorf("unexpected api error %+v", apiErr)
		}
		if got := shared.Describe(err); got != "Playlist could not be found" {
			t.Errorf("Describe() = %q", got)
		}
	})

	t.Run("UserPlaylists Sends No Limit", func(t *testing.T) {
		stub := tu.NewTidalStub(t)
		for i := range 3 {
			stub.AddPlaylist("p" + string(rune('a'+i)))
		}
		c := newStubClient(t, stub)

		page, err := c.UserPlaylists(ctx, stubCredential(), 1)
		if err != nil {
			t.Fatalf("user playlists failed: %v", err)
		}
		if page.TotalNumberOfItems != 3 || len(page.Items) != 2 {
			t.Errorf("unexpected page %+v", page)
		}
		for _, u := range stub.RequestsTo("/v1/users/" + tu.StubUserID + "/playlists") {
			if u.Query().Has("limit") {
				t.Errorf("user playlists request carried a limit: %s", u)
			}
		}
	})

	t.Run("Validate", func(t *testing.T) {
		stub := tu.NewTidalStub(t)
		c := newStubClient(t, stub)

		if err := c.Validate(ctx, stubCredential()); err != nil {
			t.Errorf("expected valid credential, got %v", err)
		}

		bad := stubCredential()
		bad.AccessToken = "revoked"
		err := c.Validate(ctx, bad)
		if !errors.Is(err, shared.ErrUpstream) {
			t.Errorf("expected upstream error for rejected token, got %v", err)
		}
	})

	t.Run("Transport Failure", func(t *testing.T) {
		c, err := NewClient(Config{
			ClientID:   "id",
			HTTPClient: &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("dial tcp: connection refused"))},
		})
		if err != nil {
			t.Fatalf("failed to create client: %v", err)
		}

		_, err = c.SearchTracks(ctx, stubCredential(), "x", 1)
		if !errors.Is(err, shared.ErrUpstream) {
			t.Fatalf("expected ErrUpstream, got %v", err)
		}
		if got := shared.Describe(err); strings.Contains(got, "dial tcp") {
			t.Errorf("description leaked transport detail: %q", got)
		}
	})

	t.Run("Malformed Body", func(t *testing.T) {
		resp := &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("{not json")), Header: http.Header{}}
		c, _ := NewClient(Config{ClientID: "id", HTTPClient: &http.Client{Transport: tu.NewMockRoundTripper(resp, nil)}})

		_, err := c.SearchTracks(ctx, stubCredential(), "x", 1)
		if !errors.Is(err, shared.ErrUpstream) {
			t.Errorf("expected ErrUpstream for malformed body, got %v", err)
		}
	})

	t.Run("Unreadable Body", func(t *testing.T) {
		tests := []struct {
			name   string
			status int
			want   string
		}{
			{"success", http.StatusOK, "upstream request failed"},
			{"error status", http.StatusBadGateway, "TIDAL returned 502 Bad Gateway"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				resp := &http.Response{StatusCode: tt.status, Body: &tu.FCloser{}, Header: http.Header{}}
				c, _ := NewClient(Config{ClientID: "id", HTTPClient: &http.Client{Transport: tu.NewMockRoundTripper(resp, nil)}})

				_, err := c.SearchTracks(ctx, stubCredential(), "x", 1)
				if !errors.Is(err, shared.ErrUpstream) {
					t.Fatalf("expected ErrUpstream, got %v", err)
				}
				if got := shared.Describe(err); got != tt.want {
					t.Errorf("Describe() = %q, want %q", got, tt.want)
				}
			})
		}
	})

	t.Run("Rate Limited", func(t *testing.T) {
		resp := &http.Response{StatusCode: http.StatusTooManyRequests, Body: io.NopCloser(strings.NewReader(`{}`)), Header: http.Header{}}
		c, _ := NewClient(Config{ClientID: "id", HTTPClient: &http.Client{Transport: tu.NewMockRoundTripper(resp, nil)}})

		_, err := c.FavoriteTracks(ctx, stubCredential(), 1)
		if !errors.Is(err, shared.ErrRateLimited) {
			t.Errorf("expected ErrRateLimited, got %v", err)
		}
	})
}

// authServer fakes the device authorization and token endpoints plus the sessions endpoint.
func authServer(t *testing.T, pending int32, tokenHandler http.HandlerFunc) *httptest.Server {
	t.Helper()
	var polls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/oauth2/device_authorization", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("client_id") != "test-client" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"deviceCode":              "dev-123",
			"userCode":                "ABCDE",
			"verificationUri":         "link.tidal.com",
			"verificationUriComplete": "link.tidal.com/ABCDE",
			"expiresIn":               30,
			"interval":                1,
		})
	})
	mux.HandleFunc("POST /auth/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		if tokenHandler != nil {
			tokenHandler(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if polls.Add(1) <= pending {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "authorization_pending"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "fresh-token",
			"refresh_token": "refresh-1",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("GET /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.Header.Get("Authorization"), "fresh-token") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sessionId":"s","userId":987,"countryCode":"NO"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newAuthClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(Config{ClientID: "test-client", ClientSecret: "secret", APIURL: srv.URL + "/v1", AuthURL: srv.URL + "/auth"})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return c
}

func TestDeviceLogin(t *testing.T) {
	t.Run("Approve", func(t *testing.T) {
		srv := authServer(t, 1, nil)
		c := newAuthClient(t, srv)
		ctx := context.Background()

		dc, err := c.StartDeviceLogin(ctx)
		if err != nil {
			t.Fatalf("start failed: %v", err)
		}
		if dc.VerificationURL != "https://link.tidal.com/ABCDE" {
			t.Errorf("expected scheme to be added, got %s", dc.VerificationURL)
		}
		if dc.UserCode != "ABCDE" {
			t.Errorf("unexpected user code %s", dc.UserCode)
		}

		cred, err := c.CompleteDeviceLogin(ctx, dc)
		if err != nil {
			t.Fatalf("complete failed: %v", err)
		}
		if cred.AccessToken != "fresh-token" || cred.RefreshToken != "refresh-1" {
			t.Errorf("unexpected token fields %+v", cred)
		}
		if cred.UserID != "987" || cred.CountryCode != "NO" {
			t.Errorf("expected identity from sessions endpoint, got %+v", cred)
		}
		if cred.Expiry.IsZero() {
			t.Error("expected an expiry")
		}
	})

	t.Run("Denied", func(t *testing.T) {
		srv := authServer(t, 0, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "access_denied"})
		})
		c := newAuthClient(t, srv)

		_, err := c.CompleteDeviceLogin(context.Background(), &DeviceCode{DeviceCode: "dev-123", Interval: 1, ExpiresIn: 30})
		if !errors.Is(err, shared.ErrAuthentication) {
			t.Fatalf("expected ErrAuthentication, got %v", err)
		}
		if got := shared.Describe(err); got != "login was denied" {
			t.Errorf("Describe() = %q", got)
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		srv := authServer(t, 1000, nil)
		c := newAuthClient(t, srv)

		ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
		defer cancel()

		_, err := c.CompleteDeviceLogin(ctx, &DeviceCode{DeviceCode: "dev-123", Interval: 1})
		if !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
	})

	t.Run("Missing Expiry", func(t *testing.T) {
		prev := deviceExpiry
		deviceExpiry = 2 * time.Second
		t.Cleanup(func() { deviceExpiry = prev })

		mux := http.NewServeMux()
		mux.HandleFunc("POST /auth/oauth2/device_authorization", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"deviceCode":"dev-123","userCode":"ABCDE","verificationUri":"link.tidal.com","expiresIn":0,"interval":1}`))
		})
		srv := httptest.NewServer(mux)
		t.Cleanup(srv.Close)

		dc, err := newAuthClient(t, srv).StartDeviceLogin(context.Background())
		if err != nil {
			t.Fatalf("start failed: %v", err)
		}
		if dc.ExpiresIn != 2 {
			t.Errorf("expected the default lifetime, got %d", dc.ExpiresIn)
		}

		pending := newAuthClient(t, authServer(t, 1000, nil))
		done := make(chan error, 1)
		go func() {
			_, err := pending.CompleteDeviceLogin(context.Background(), &DeviceCode{DeviceCode: "dev-123", Interval: 1})
			done <- err
		}()

		select {
		case err := <-done:
			if !errors.Is(err, shared.ErrTimeout) {
				t.Errorf("expected ErrTimeout, got %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Fatal("polling did not stop without an expiry")
		}
	})

	t.Run("Start Rejected", func(t *testing.T) {
		srv := authServer(t, 0, nil)
		c, _ := NewClient(Config{ClientID: "other-client", APIURL: srv.URL + "/v1", AuthURL: srv.URL + "/auth"})

		_, err := c.StartDeviceLogin(context.Background())
		if !errors.Is(err, shared.ErrAuthentication) {
			t.Errorf("expected ErrAuthentication, got %v", err)
		}
	})
}

func TestRefresh(t *testing.T) {
	t.Run("Exchanges Refresh Token", func(t *testing.T) {
		var grant string
		srv := authServer(t, 0, func(w http.ResponseWriter, r *http.Request) {
			r.ParseForm()
			grant = r.PostForm.Get("grant_type")
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"access_token": "renewed", "token_type": "Bearer", "expires_in": 3600})
		})
		c := newAuthClient(t, srv)

		old := Credential{AccessToken: "stale", RefreshToken: "refresh-1", Expiry: time.Now().Add(-time.Hour), UserID: "987", CountryCode: "NO"}
		cred, err := c.Refresh(context.Background(), old)
		if err != nil {
			t.Fatalf("refresh failed: %v", err)
		}
		if grant != "refresh_token" {
			t.Errorf("expected refresh_token grant, got %q", grant)
		}
		if cred.AccessToken != "renewed" {
			t.Errorf("expected renewed access token, got %s", cred.AccessToken)
		}
		if cred.RefreshToken != "refresh-1" {
			t.Errorf("expected refresh token to be kept, got %s", cred.RefreshToken)
		}
		if cred.UserID != "987" || cred.CountryCode != "NO" {
			t.Errorf("identity should survive refresh, got %+v", cred)
		}
		if old.AccessToken != "stale" {
			t.Error("refresh must not mutate the input credential")
		}
	})

	t.Run("No Refresh Token", func(t *testing.T) {
		c, _ := NewClient(Config{ClientID: "id"})
		_, err := c.Refresh(context.Background(), Credential{AccessToken: "x", UserID: "1"})
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})
}

func TestCredentialFormat(t *testing.T) {
	t.Run("Round Trip", func(t *testing.T) {
		in := Credential{
			TokenType:    "Bearer",
			AccessToken:  "access",
			RefreshToken: "refresh",
			Expiry:       time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC),
			UserID:       "42",
			CountryCode:  "SE",
		}
		data, err := MarshalCredential(in)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		out, err := UnmarshalCredential(data)
		if err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if !out.Expiry.Equal(in.Expiry) {
			t.Errorf("expiry changed: %v != %v", out.Expiry, in.Expiry)
		}
		out.Expiry = in.Expiry
		if out != in {
			t.Errorf("round trip mismatch: %+v != %+v", out, in)
		}
	})

	t.Run("Rejects Bad Input", func(t *testing.T) {
		for name, data := range map[string]string{
			"garbage":       "not json",
			"wrong version": `{"version":99,"access_token":"a","user_id":"1"}`,
			"no token":      `{"version":1,"user_id":"1"}`,
		} {
			t.Run(name, func(t *testing.T) {
				if _, err := UnmarshalCredential([]byte(data)); !errors.Is(err, shared.ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, got %v", err)
				}
			})
		}
	})

	t.Run("ExpiresWithin", func(t *testing.T) {
		now := time.Now()
		if (Credential{}).ExpiresWithin(now, time.Minute) {
			t.Error("a credential without expiry never expires")
		}
		if !(Credential{Expiry: now.Add(10 * time.Second)}).ExpiresWithin(now, time.Minute) {
			t.Error("expected credential to be near expiry")
		}
	})
}
