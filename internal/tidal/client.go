package tidal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/tidal-mcp/internal/shared"
	"golang.org/x/oauth2"
)

const (
	DefaultAPIURL  = "https://api.tidal.com/v1"
	DefaultAuthURL = "https://auth.tidal.com/v1"

	// BrowseURL is the public web prefix for tracks and playlists.
	BrowseURL = "https://tidal.com/browse"
)

// DefaultScopes are requested when the configuration names none.
var DefaultScopes = []string{"r_usr", "w_usr", "w_sub"}

// Config holds the client credentials and endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	APIURL       string
	AuthURL      string
	Scopes       []string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// Client talks to the TIDAL v1 API on behalf of a [Credential].
type Client struct {
	apiURL     string
	authURL    string
	oauth      *oauth2.Config
	httpClient *http.Client
}

// NewClient creates a Client. A client id is required; endpoints default to the public TIDAL hosts.
func NewClient(cfg Config) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: missing tidal client_id", shared.ErrMissingConfig)
	}

	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	authURL := strings.TrimSuffix(cfg.AuthURL, "/")
	return &Client{
		apiURL:  strings.TrimSuffix(cfg.APIURL, "/"),
		authURL: authURL,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				DeviceAuthURL: authURL + "/oauth2/device_authorization",
				TokenURL:      authURL + "/oauth2/token",
				AuthStyle:     oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
	}, nil
}

// request describes one API call.
type request struct {
	op     string
	method string
	path   string
	query  url.Values
	form   url.Values
	header http.Header
}

// do sends req as cred and decodes a 2xx body into result. It returns the response headers.
func (c *Client) do(ctx context.Context, cred Credential, req request, result any) (http.Header, error) {
	query := req.query
	if query == nil {
		query = url.Values{}
	}
	if cred.CountryCode != "" && query.Get("countryCode") == "" {
		query.Set("countryCode", cred.CountryCode)
	}

	endpoint := c.apiURL + req.path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if req.form != nil {
		body = strings.NewReader(req.form.Encode())
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Authorization", cred.Token().Type()+" "+cred.AccessToken)
	httpReq.Header.Set("Accept", "application/json")
	if req.form != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &APIError{Op: req.op, cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.Header, decodeAPIError(req.op, resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return resp.Header, fmt.Errorf("%w: failed to decode %s response: %w", shared.ErrUpstream, req.op, err)
		}
	}
	return resp.Header, nil
}

func decodeAPIError(op string, resp *http.Response) *APIError {
	apiErr := &APIError{Op: op, Status: resp.StatusCode}

	var body struct {
		Status      int    `json:"status"`
		SubStatus   int    `json:"subStatus"`
		UserMessage string `json:"userMessage"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &body) == nil {
		apiErr.SubStatus = body.SubStatus
		apiErr.UserMessage = body.UserMessage
	}
	return apiErr
}

// Session calls the sessions endpoint with cred's access token.
func (c *Client) Session(ctx context.Context, cred Credential) (*SessionInfo, error) {
	var info SessionInfo
	if _, err := c.do(ctx, cred, request{op: "session", method: http.MethodGet, path: "/sessions"}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Validate reports whether TIDAL still accepts cred.
func (c *Client) Validate(ctx context.Context, cred Credential) error {
	_, err := c.Session(ctx, cred)
	return err
}

// SearchTracks searches the catalog for tracks matching query.
func (c *Client) SearchTracks(ctx context.Context, cred Credential, query string, limit int) ([]Track, error) {
	var page Page[Track]
	_, err := c.do(ctx, cred, request{
		op:     "search tracks",
		method: http.MethodGet,
		path:   "/search/tracks",
		query:  url.Values{"query": {query}, "limit": {strconv.Itoa(limit)}, "offset": {"0"}},
	}, &page)
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// FavoriteTracks lists the user's favorite tracks, most recently added first.
func (c *Client) FavoriteTracks(ctx context.Context, cred Credential, limit int) ([]Track, error) {
	var page Page[FavoriteTrack]
	_, err := c.do(ctx, cred, request{
		op:     "favorite tracks",
		method: http.MethodGet,
		path:   "/users/" + url.PathEscape(cred.UserID) + "/favorites/tracks",
		query: url.Values{
			"limit":          {strconv.Itoa(limit)},
			"offset":         {"0"},
			"order":          {"DATE"},
			"orderDirection": {"DESC"},
		},
	}, &page)
	if err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(page.Items))
	for _, fav := range page.Items {
		tracks = append(tracks, fav.Item)
	}
	return tracks, nil
}

// CreatePlaylist creates a playlist owned by the user.
func (c *Client) CreatePlaylist(ctx context.Context, cred Credential, title, description string) (*Playlist, error) {
	var playlist Playlist
	_, err := c.do(ctx, cred, request{
		op:     "create playlist",
		method: http.MethodPost,
		path:   "/users/" + url.PathEscape(cred.UserID) + "/playlists",
		form:   url.Values{"title": {title}, "description": {description}},
	}, &playlist)
	if err != nil {
		return nil, err
	}
	return &playlist, nil
}

// Playlist fetches a playlist and the ETag required to modify it.
func (c *Client) Playlist(ctx context.Context, cred Credential, id string) (*Playlist, string, error) {
	var playlist Playlist
	header, err := c.do(ctx, cred, request{
		op:     "get playlist",
		method: http.MethodGet,
		path:   "/playlists/" + url.PathEscape(id),
	}, &playlist)
	if err != nil {
		return nil, "", err
	}
	return &playlist, header.Get("ETag"), nil
}

// AddTrack appends one track to a playlist. It returns the playlist's new ETag, or etag when TIDAL sends none.
func (c *Client) AddTrack(ctx context.Context, cred Credential, playlistID, etag, trackID string) (string, error) {
	header := http.Header{}
	if etag != "" {
		header.Set("If-None-Match", etag)
	}

	respHeader, err := c.do(ctx, cred, request{
		op:     "add track",
		method: http.MethodPost,
		path:   "/playlists/" + url.PathEscape(playlistID) + "/items",
		form:   url.Values{"trackIds": {trackID}, "onDupes": {"FAIL"}, "onArtifactNotFound": {"FAIL"}},
		header: header,
	}, nil)
	if err != nil {
		return etag, err
	}
	if next := respHeader.Get("ETag"); next != "" {
		return next, nil
	}
	return etag, nil
}

// UserPlaylists fetches one page of the user's playlists starting at offset.
//
// The endpoint misbehaves when given a limit, so none is sent; callers page by offset.
func (c *Client) UserPlaylists(ctx context.Context, cred Credential, offset int) (*Page[Playlist], error) {
	var page Page[Playlist]
	_, err := c.do(ctx, cred, request{
		op:     "user playlists",
		method: http.MethodGet,
		path:   "/users/" + url.PathEscape(cred.UserID) + "/playlists",
		query:  url.Values{"offset": {strconv.Itoa(offset)}},
	}, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// PlaylistTracks lists up to limit tracks of a playlist in playlist order.
func (c *Client) PlaylistTracks(ctx context.Context, cred Credential, id string, limit int) ([]Track, error) {
	var page Page[Track]
	_, err := c.do(ctx, cred, request{
		op:     "playlist tracks",
		method: http.MethodGet,
		path:   "/playlists/" + url.PathEscape(id) + "/tracks",
		query:  url.Values{"limit": {strconv.Itoa(limit)}, "offset": {"0"}},
	}, &page)
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}
