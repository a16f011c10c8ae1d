package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/tidal-mcp/internal/shared"
	tu "github.com/desertthunder/tidal-mcp/internal/testing"
	"github.com/desertthunder/tidal-mcp/internal/tidal"
)

// fakeAuth issues numbered credentials whose fields all share the login number.
type fakeAuth struct {
	logins    atomic.Int32
	refreshes atomic.Int32
	validates atomic.Int32

	startErr    error
	completeErr error
	refreshErr  error
	expiresIn   time.Duration
	rejected    map[string]bool
	mu          sync.Mutex
}

func credentialN(n int32, expiry time.Time) tidal.Credential {
	return tidal.Credential{
		TokenType:    "Bearer",
		AccessToken:  fmt.Sprintf("access-%d", n),
		RefreshToken: fmt.Sprintf("refresh-%d", n),
		Expiry:       expiry,
		UserID:       fmt.Sprintf("user-%d", n),
		CountryCode:  fmt.Sprintf("c%d", n),
	}
}

func (f *fakeAuth) StartDeviceLogin(ctx context.Context) (*tidal.DeviceCode, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &tidal.DeviceCode{DeviceCode: "dev", UserCode: "ABCDE", VerificationURL: "https://link.tidal.com/ABCDE", ExpiresIn: 300}, nil
}

func (f *fakeAuth) CompleteDeviceLogin(ctx context.Context, dc *tidal.DeviceCode) (tidal.Credential, error) {
	if f.completeErr != nil {
		return tidal.Credential{}, f.completeErr
	}
	n := f.logins.Add(1)
	expiresIn := f.expiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}
	return credentialN(n, time.Now().Add(expiresIn).UTC()), nil
}

func (f *fakeAuth) Validate(ctx context.Context, cred tidal.Credential) error {
	f.validates.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejected[cred.AccessToken] {
		return fmt.Errorf("%w: token rejected", shared.ErrUpstream)
	}
	return nil
}

func (f *fakeAuth) Refresh(ctx context.Context, cred tidal.Credential) (tidal.Credential, error) {
	if f.refreshErr != nil {
		return tidal.Credential{}, f.refreshErr
	}
	f.refreshes.Add(1)
	next := cred
	next.AccessToken = cred.AccessToken + "-renewed"
	next.Expiry = time.Now().Add(time.Hour).UTC()
	return next, nil
}

func (f *fakeAuth) reject(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejected == nil {
		f.rejected = map[string]bool{}
	}
	f.rejected[token] = true
}

func newStore(t *testing.T, path string, auth Authenticator) *Store {
	t.Helper()
	return New(Options{
		Path:    path,
		Auth:    auth,
		Logger:  shared.NewLogger(io.Discard),
		OpenURL: func(string) error { return nil },
	})
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("No Session File", func(t *testing.T) {
		auth := &fakeAuth{}
		s := newStore(t, filepath.Join(t.TempDir(), "session.json"), auth)

		if s.EnsureAuthenticated(ctx) {
			t.Error("expected unauthenticated store without a session file")
		}
		if auth.validates.Load() != 0 {
			t.Error("nothing to validate without a credential")
		}
		if _, err := s.Credential(ctx); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("Corrupt Session File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		if err := os.WriteFile(path, []byte("{definitely not a session"), 0600); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}
		var logs strings.Builder
		s := New(Options{Path: path, Auth: &fakeAuth{}, Logger: shared.NewLogger(&logs), OpenURL: func(string) error { return nil }})

		if s.EnsureAuthenticated(ctx) {
			t.Error("corrupt session file must yield false")
		}
		if !strings.Contains(logs.String(), "component=session") {
			t.Errorf("expected the session component in logs, got %q", logs.String())
		}
	})

	t.Run("Login Persists And Reloads", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "session.json")
		auth := &fakeAuth{}
		first := newStore(t, path, auth)

		var notified *tidal.DeviceCode
		first.notify = func(dc *tidal.DeviceCode) { notified = dc }

		if err := first.Login(ctx); err != nil {
			t.Fatalf("login failed: %v", err)
		}
		if notified == nil || notified.UserCode != "ABCDE" {
			t.Errorf("expected device code notification, got %+v", notified)
		}
		tu.AssertFileExists(t, path)
		tu.AssertFileMode(t, path, 0600)

		second := newStore(t, path, &fakeAuth{startErr: errors.New("login must not be needed")})
		if !second.EnsureAuthenticated(ctx) {
			t.Fatal("expected persisted session to authenticate a fresh store")
		}

		cred, err := second.Credential(ctx)
		if err != nil {
			t.Fatalf("credential failed: %v", err)
		}
		if cred.UserID != "user-1" || cred.AccessToken != "access-1" {
			t.Errorf("unexpected reloaded credential %+v", cred)
		}
	})

	t.Run("Login Reports Unwritable Session File", func(t *testing.T) {
		dir := t.TempDir()
		blocker := filepath.Join(dir, "blocker")
		if err := os.WriteFile(blocker, []byte("not a directory"), 0600); err != nil {
			t.Fatalf("failed to write blocker: %v", err)
		}
		path := filepath.Join(blocker, "session.json")
		s := newStore(t, path, &fakeAuth{})

		err := s.Login(ctx)
		if !errors.Is(err, shared.ErrAuthentication) {
			t.Fatalf("expected an authentication error, got %v", err)
		}
		if !strings.Contains(err.Error(), "could not persist session") {
			t.Errorf("expected a persistence message, got %v", err)
		}

		if cred, err := s.Credential(ctx); err != nil || cred.UserID != "user-1" {
			t.Errorf("expected the new credential to stay usable in memory, got %+v (err %v)", cred, err)
		}

		restarted := newStore(t, path, &fakeAuth{})
		if restarted.EnsureAuthenticated(ctx) {
			t.Error("expected no session after a restart when nothing was saved")
		}
	})

	t.Run("Login Replaces Previous Session", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		s := newStore(t, path, &fakeAuth{})

		for range 2 {
			if err := s.Login(ctx); err != nil {
				t.Fatalf("login failed: %v", err)
			}
		}

		cred, _ := s.Credential(ctx)
		if cred.UserID != "user-2" {
			t.Errorf("expected second login to win, got %s", cred.UserID)
		}
		if !strings.Contains(tu.MustReadFile(t, path), "access-2") {
			t.Error("session file should hold the newest credential")
		}
	})

	t.Run("Failed Login Keeps Previous Session", func(t *testing.T) {
		auth := &fakeAuth{}
		s := newStore(t, filepath.Join(t.TempDir(), "session.json"), auth)
		if err := s.Login(ctx); err != nil {
			t.Fatalf("login failed: %v", err)
		}

		auth.completeErr = shared.Errorf(shared.ErrTimeout, "login timed out")
		err := s.Login(ctx)
		if !errors.Is(err, shared.ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got %v", err)
		}

		cred, err := s.Credential(ctx)
		if err != nil || cred.UserID != "user-1" {
			t.Errorf("expected previous credential to survive, got %+v (%v)", cred, err)
		}
	})

	t.Run("Upstream Rejection", func(t *testing.T) {
		auth := &fakeAuth{}
		s := newStore(t, filepath.Join(t.TempDir(), "session.json"), auth)
		if err := s.Login(ctx); err != nil {
			t.Fatalf("login failed: %v", err)
		}
		if !s.IsAuthenticated(ctx) {
			t.Fatal("expected authenticated store")
		}

		auth.reject("access-1")
		if s.IsAuthenticated(ctx) {
			t.Error("a credential TIDAL rejects must not count as authenticated")
		}
	})

	t.Run("Refreshes Near Expiry", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		auth := &fakeAuth{expiresIn: 10 * time.Second}
		s := newStore(t, path, auth)
		if err := s.Login(ctx); err != nil {
			t.Fatalf("login failed: %v", err)
		}

		cred, err := s.Credential(ctx)
		if err != nil {
			t.Fatalf("credential failed: %v", err)
		}
		if cred.AccessToken != "access-1-renewed" {
			t.Errorf("expected refreshed token, got %s", cred.AccessToken)
		}
		if cred.UserID != "user-1" {
			t.Errorf("refresh must keep the identity, got %s", cred.UserID)
		}
		if !strings.Contains(tu.MustReadFile(t, path), "access-1-renewed") {
			t.Error("refreshed credential should be persisted")
		}

		if _, err := s.Credential(ctx); err != nil {
			t.Fatalf("second credential failed: %v", err)
		}
		if n := auth.refreshes.Load(); n != 1 {
			t.Errorf("expected one refresh, got %d", n)
		}
	})

	t.Run("Refresh Failure", func(t *testing.T) {
		auth := &fakeAuth{expiresIn: time.Second}
		s := newStore(t, filepath.Join(t.TempDir(), "session.json"), auth)
		if err := s.Login(ctx); err != nil {
			t.Fatalf("login failed: %v", err)
		}

		auth.refreshErr = fmt.Errorf("%w: refresh token revoked", shared.ErrNotAuthenticated)
		if s.IsAuthenticated(ctx) {
			t.Error("expected false when refresh fails")
		}
	})

	t.Run("Status And Logout", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		s := newStore(t, path, &fakeAuth{})

		if st := s.Status(); st.HasCredential || st.Path != path {
			t.Errorf("unexpected status before login %+v", st)
		}
		if err := s.Login(ctx); err != nil {
			t.Fatalf("login failed: %v", err)
		}
		if st := s.Status(); !st.HasCredential || st.UserID != "user-1" || st.CountryCode != "c1" {
			t.Errorf("unexpected status after login %+v", st)
		}

		if err := s.Logout(); err != nil {
			t.Fatalf("logout failed: %v", err)
		}
		if s.EnsureAuthenticated(ctx) {
			t.Error("expected unauthenticated store after logout")
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("logout should remove the session file")
		}
	})
}

func TestStoreConcurrency(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, filepath.Join(t.TempDir(), "session.json"), &fakeAuth{})
	if err := s.Login(ctx); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	var (
		wg       sync.WaitGroup
		stop     = make(chan struct{})
		mismatch atomic.Int32
	)

	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				cred, err := s.Credential(ctx)
				if err != nil {
					mismatch.Add(1)
					return
				}
				n := strings.TrimPrefix(cred.UserID, "user-")
				if cred.AccessToken != "access-"+n || cred.CountryCode != "c"+n || cred.RefreshToken != "refresh-"+n {
					mismatch.Add(1)
				}
			}
		}()
	}

	for range 20 {
		if err := s.Login(ctx); err != nil {
			t.Errorf("login failed: %v", err)
		}
	}
	close(stop)
	wg.Wait()

	if n := mismatch.Load(); n != 0 {
		t.Errorf("observed %d torn or missing credential reads", n)
	}
}
