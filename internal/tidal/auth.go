package tidal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/tidal-mcp/internal/shared"
	"golang.org/x/oauth2"
)

// deviceExpiry bounds polling when TIDAL reports no lifetime for a device code.
var deviceExpiry = 300 * time.Second

// StartDeviceLogin requests a device code for the configured client.
func (c *Client) StartDeviceLogin(ctx context.Context) (*DeviceCode, error) {
	form := url.Values{
		"client_id": {c.oauth.ClientID},
		"scope":     {strings.Join(c.oauth.Scopes, " ")},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.oauth.Endpoint.DeviceAuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrAuthentication, &APIError{Op: "device authorization", cause: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %w", shared.ErrAuthentication, decodeAPIError("device authorization", resp))
	}

	var da deviceAuthorization
	if err := json.NewDecoder(resp.Body).Decode(&da); err != nil {
		return nil, fmt.Errorf("%w: failed to decode device authorization: %w", shared.ErrAuthentication, err)
	}
	if da.DeviceCode == "" {
		return nil, shared.Errorf(shared.ErrAuthentication, "TIDAL returned no device code")
	}

	verification := da.VerificationURIComplete
	if verification == "" {
		verification = da.VerificationURI
	}
	if verification != "" && !strings.Contains(verification, "://") {
		verification = "https://" + verification
	}

	if da.ExpiresIn <= 0 {
		da.ExpiresIn = int(deviceExpiry / time.Second)
	}

	return &DeviceCode{
		DeviceCode:      da.DeviceCode,
		UserCode:        da.UserCode,
		VerificationURL: verification,
		ExpiresIn:       da.ExpiresIn,
		Interval:        da.Interval,
	}, nil
}

// CompleteDeviceLogin polls until the user approves dc, the code expires, or ctx ends. A code without a
// positive lifetime expires after [deviceExpiry].
// The returned credential carries the identity reported by the sessions endpoint.
func (c *Client) CompleteDeviceLogin(ctx context.Context, dc *DeviceCode) (Credential, error) {
	da := &oauth2.DeviceAuthResponse{
		DeviceCode:              dc.DeviceCode,
		UserCode:                dc.UserCode,
		VerificationURI:         dc.VerificationURL,
		VerificationURIComplete: dc.VerificationURL,
		Interval:                int64(dc.Interval),
	}
	expiresIn := time.Duration(dc.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = deviceExpiry
	}
	da.Expiry = time.Now().Add(expiresIn)

	tok, err := c.oauth.DeviceAccessToken(c.oauthContext(ctx), da)
	if err != nil {
		return Credential{}, loginError(err)
	}

	cred := Credential{}.WithToken(tok)
	info, err := c.Session(ctx, cred)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: failed to load session: %w", shared.ErrAuthentication, err)
	}
	cred.UserID = info.UserID.String()
	cred.CountryCode = info.CountryCode
	return cred, nil
}

func loginError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return shared.Errorf(shared.ErrTimeout, "login timed out before the device code was approved")
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch re.ErrorCode {
		case "access_denied":
			return shared.Errorf(shared.ErrAuthentication, "login was denied")
		case "expired_token":
			return shared.Errorf(shared.ErrAuthentication, "device code expired")
		}
		if re.ErrorDescription != "" {
			return shared.Errorf(shared.ErrAuthentication, "%s", re.ErrorDescription)
		}
	}
	return fmt.Errorf("%w: %w", shared.ErrAuthentication, err)
}

// Refresh exchanges cred's refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, cred Credential) (Credential, error) {
	if cred.RefreshToken == "" {
		return Credential{}, shared.Errorf(shared.ErrNotAuthenticated, "session has no refresh token")
	}

	expired := cred.Token()
	expired.Expiry = time.Now().Add(-time.Minute)

	tok, err := c.oauth.TokenSource(c.oauthContext(ctx), expired).Token()
	if err != nil {
		return Credential{}, fmt.Errorf("%w: token refresh failed: %w", shared.ErrNotAuthenticated, err)
	}
	return cred.WithToken(tok), nil
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}
