package tidal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/tidal-mcp/internal/shared"
	"golang.org/x/oauth2"
)

// credentialVersion is bumped when the persisted layout changes.
const credentialVersion = 1

// Credential is an authenticated TIDAL identity. Values are copied, never mutated in place.
type Credential struct {
	TokenType    string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	UserID       string
	CountryCode  string
}

// Token returns the OAuth2 token carried by c.
func (c Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		TokenType:    c.TokenType,
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		Expiry:       c.Expiry,
	}
}

// WithToken returns a copy of c carrying tok. An empty refresh token keeps the previous one.
func (c Credential) WithToken(tok *oauth2.Token) Credential {
	c.TokenType = tok.TokenType
	c.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		c.RefreshToken = tok.RefreshToken
	}
	c.Expiry = tok.Expiry
	return c
}

// Usable reports whether c carries an access token and the identity fields every call needs.
func (c Credential) Usable() bool {
	return c.AccessToken != "" && c.UserID != ""
}

// ExpiresWithin reports whether the access token expires within d of now. Tokens without an expiry never do.
func (c Credential) ExpiresWithin(now time.Time, d time.Duration) bool {
	return !c.Expiry.IsZero() && c.Expiry.Before(now.Add(d))
}

type credentialFile struct {
	Version      int       `json:"version"`
	TokenType    string    `json:"token_type"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiryTime   time.Time `json:"expiry_time,omitzero"`
	UserID       string    `json:"user_id"`
	CountryCode  string    `json:"country_code"`
}

// MarshalCredential encodes c in the persisted session format.
func MarshalCredential(c Credential) ([]byte, error) {
	return shared.MarshalJSON(credentialFile{
		Version:      credentialVersion,
		TokenType:    c.TokenType,
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		ExpiryTime:   c.Expiry,
		UserID:       c.UserID,
		CountryCode:  c.CountryCode,
	})
}

// UnmarshalCredential decodes a persisted session. Unreadable or incomplete data yields an error.
func UnmarshalCredential(data []byte) (Credential, error) {
	var f credentialFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Credential{}, fmt.Errorf("%w: malformed session: %w", shared.ErrInvalidInput, err)
	}
	if f.Version != credentialVersion {
		return Credential{}, fmt.Errorf("%w: unsupported session version %d", shared.ErrInvalidInput, f.Version)
	}

	c := Credential{
		TokenType:    f.TokenType,
		AccessToken:  f.AccessToken,
		RefreshToken: f.RefreshToken,
		Expiry:       f.ExpiryTime,
		UserID:       f.UserID,
		CountryCode:  f.CountryCode,
	}
	if !c.Usable() {
		return Credential{}, fmt.Errorf("%w: session is missing its token or user id", shared.ErrInvalidInput)
	}
	return c, nil
}
