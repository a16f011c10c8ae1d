// Package session owns the single authenticated TIDAL identity of the process.
//
// A [Store] loads the persisted credential lazily, runs the interactive device login, validates the
// credential against TIDAL before each use, and refreshes it ahead of expiry. The credential is
// immutable and swapped by pointer, so readers always see one complete identity.
package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tidal-mcp/internal/shared"
	"github.com/desertthunder/tidal-mcp/internal/tidal"
)

// refreshWindow is how far ahead of expiry a credential is refreshed.
const refreshWindow = 30 * time.Second

// Authenticator is the upstream side of a session.
type Authenticator interface {
	StartDeviceLogin(ctx context.Context) (*tidal.DeviceCode, error)
	CompleteDeviceLogin(ctx context.Context, dc *tidal.DeviceCode) (tidal.Credential, error)
	Validate(ctx context.Context, cred tidal.Credential) error
	Refresh(ctx context.Context, cred tidal.Credential) (tidal.Credential, error)
}

// Options configures a [Store].
type Options struct {
	Path   string
	Auth   Authenticator
	Logger *log.Logger
	// OpenURL opens the verification url during login. Defaults to [shared.OpenBrowser].
	OpenURL func(url string) error
	// Notify receives the device code before polling starts.
	Notify func(dc *tidal.DeviceCode)
}

// Status is a point-in-time description of the session.
type Status struct {
	HasCredential bool      `json:"has_credential"`
	UserID        string    `json:"user_id,omitempty"`
	CountryCode   string    `json:"country_code,omitempty"`
	Expiry        time.Time `json:"expiry,omitzero"`
	Path          string    `json:"path"`
}

// Store holds the process-wide credential.
type Store struct {
	path    string
	auth    Authenticator
	logger  *log.Logger
	openURL func(string) error
	notify  func(*tidal.DeviceCode)
	now     func() time.Time

	mu   sync.RWMutex
	cred *tidal.Credential

	loginMu   sync.Mutex
	persistMu sync.Mutex
}

// New creates a Store. Nothing is read from disk until the credential is first needed.
func New(opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.OpenURL == nil {
		opts.OpenURL = shared.OpenBrowser
	}
	return &Store{
		path:    opts.Path,
		auth:    opts.Auth,
		logger:  shared.WithLogger(opts.Logger, "component", "session"),
		openURL: opts.OpenURL,
		notify:  opts.Notify,
		now:     time.Now,
	}
}

// Path is the credential file location.
func (s *Store) Path() string { return s.path }

// IsAuthenticated reports whether a credential is held and TIDAL accepts it.
func (s *Store) IsAuthenticated(ctx context.Context) bool {
	cred, err := s.Credential(ctx)
	if err != nil {
		s.logger.Debug("no usable credential", "error", err)
		return false
	}

	if err := s.auth.Validate(ctx, cred); err != nil {
		s.logger.Warn("credential rejected by TIDAL", "error", err)
		return false
	}
	return true
}

// EnsureAuthenticated loads the persisted credential whenever none is held, then validates it.
// Missing or unreadable files yield false; they never abort the process.
func (s *Store) EnsureAuthenticated(ctx context.Context) bool {
	s.load()
	return s.IsAuthenticated(ctx)
}

func (s *Store) load() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred != nil {
		return
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("no persisted session", "path", s.path)
		return
	}
	if err != nil {
		s.logger.Warn("failed to read session file", "path", s.path, "error", err)
		return
	}

	cred, err := tidal.UnmarshalCredential(data)
	if err != nil {
		s.logger.Warn("ignoring unreadable session file", "path", s.path, "error", err)
		return
	}

	s.cred = &cred
	s.logger.Info("loaded persisted session", "user_id", cred.UserID)
}

// Login runs the interactive device flow. On success the new credential replaces any previous one and is
// persisted; a failed login leaves the previous credential in place. When the session file cannot be written
// the new credential is still held for this process, but Login reports the failure.
func (s *Store) Login(ctx context.Context) error {
	s.loginMu.Lock()
	defer s.loginMu.Unlock()

	dc, err := s.auth.StartDeviceLogin(ctx)
	if err != nil {
		return authError(err)
	}

	s.logger.Info("approve this device to finish logging in", "url", dc.VerificationURL, "code", dc.UserCode, "expires_in", dc.ExpiresIn)
	if s.notify != nil {
		s.notify(dc)
	}
	if err := s.openURL(dc.VerificationURL); err != nil {
		s.logger.Warn("could not open a browser; visit the url manually", "url", dc.VerificationURL, "error", err)
	}

	cred, err := s.auth.CompleteDeviceLogin(ctx, dc)
	if err != nil {
		return authError(err)
	}
	if !cred.Usable() {
		return shared.Errorf(shared.ErrAuthentication, "TIDAL returned an incomplete session")
	}

	if err := s.swap(cred); err != nil {
		return fmt.Errorf("%w: %w", shared.Errorf(shared.ErrAuthentication, "could not persist session"), err)
	}
	s.logger.Info("logged in", "user_id", cred.UserID, "country_code", cred.CountryCode)
	return nil
}

// authError makes every login failure match [shared.ErrAuthentication].
func authError(err error) error {
	if errors.Is(err, shared.ErrAuthentication) {
		return err
	}
	return fmt.Errorf("%w: %w", shared.ErrAuthentication, err)
}

// Credential returns a snapshot of the held credential, refreshing it first when it is about to expire.
func (s *Store) Credential(ctx context.Context) (tidal.Credential, error) {
	s.mu.RLock()
	cur := s.cred
	s.mu.RUnlock()

	if cur == nil {
		return tidal.Credential{}, shared.ErrNotAuthenticated
	}
	if !cur.ExpiresWithin(s.now(), refreshWindow) || cur.RefreshToken == "" {
		return *cur, nil
	}
	return s.refresh(ctx, cur)
}

func (s *Store) refresh(ctx context.Context, seen *tidal.Credential) (tidal.Credential, error) {
	s.mu.Lock()
	if s.cred != seen {
		// Another caller refreshed or logged in first.
		cur := s.cred
		s.mu.Unlock()
		if cur == nil {
			return tidal.Credential{}, shared.ErrNotAuthenticated
		}
		return *cur, nil
	}
	old := *s.cred
	s.mu.Unlock()

	next, err := s.auth.Refresh(ctx, old)
	if err != nil {
		return tidal.Credential{}, fmt.Errorf("refresh session: %w", err)
	}

	s.mu.Lock()
	if s.cred != seen {
		cur := s.cred
		s.mu.Unlock()
		if cur == nil {
			return tidal.Credential{}, shared.ErrNotAuthenticated
		}
		return *cur, nil
	}
	s.cred = &next
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		s.logger.Error("failed to persist refreshed session", "path", s.path, "error", err)
	}
	s.logger.Debug("refreshed access token", "expiry", next.Expiry)
	return next, nil
}

func (s *Store) swap(cred tidal.Credential) error {
	s.mu.Lock()
	s.cred = &cred
	s.mu.Unlock()

	return s.persist()
}

// persist writes the current credential to disk. Concurrent persists serialize, so the file always ends up
// holding the latest credential.
func (s *Store) persist() error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	cur := s.cred
	s.mu.RUnlock()
	if cur == nil {
		return nil
	}
	return s.save(*cur)
}

func (s *Store) save(cred tidal.Credential) error {
	data, err := tidal.MarshalCredential(cred)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	return shared.WriteFileAtomic(s.path, data, 0600)
}

// Status describes the held credential without contacting TIDAL.
func (s *Store) Status() Status {
	s.load()

	s.mu.RLock()
	cur := s.cred
	s.mu.RUnlock()

	st := Status{Path: s.path}
	if cur != nil {
		st.HasCredential = true
		st.UserID = cur.UserID
		st.CountryCode = cur.CountryCode
		st.Expiry = cur.Expiry
	}
	return st
}

// Logout forgets the held credential and removes the persisted file.
func (s *Store) Logout() error {
	s.mu.Lock()
	s.cred = nil
	s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
