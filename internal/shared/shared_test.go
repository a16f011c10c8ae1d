package shared

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestLogger(t *testing.T) {
	t.Run("writes to the given writer", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf)
		WithLogger(logger, "tool", "search_tracks").Info("hello")

		out := buf.String()
		if !strings.Contains(out, "hello") || !strings.Contains(out, "tool=search_tracks") {
			t.Errorf("unexpected log output: %q", out)
		}
	})

	t.Run("respects level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf)
		SetLogLevel(logger, log.WarnLevel)
		logger.Info("hidden")
		if buf.Len() != 0 {
			t.Errorf("info should be suppressed at warn level, got %q", buf.String())
		}
	})

	t.Run("ParseLogLevel", func(t *testing.T) {
		tc := []struct {
			in   string
			want log.Level
		}{
			{"", log.InfoLevel},
			{"debug", log.DebugLevel},
			{"WARN", log.WarnLevel},
			{"error", log.ErrorLevel},
			{"loud", log.InfoLevel},
		}
		for _, tt := range tc {
			if got := ParseLogLevel(tt.in); got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		}
	})
}

func TestDescribe(t *testing.T) {
	tc := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "described", err: fmt.Errorf("wrap: %w", Errorf(ErrNotFound, "playlist %q not found", "x")), want: `playlist "x" not found`},
		{name: "not found sentinel", err: fmt.Errorf("lookup: %w", ErrNotFound), want: ErrNotFound.Error()},
		{name: "upstream sentinel", err: fmt.Errorf("search: %w", ErrUpstream), want: "upstream request failed"},
		{name: "deadline", err: fmt.Errorf("poll: %w", context.DeadlineExceeded), want: "operation timed out"},
		{name: "unknown", err: errors.New(`Get "https://api.tidal.com/v1": dial tcp: refused`), want: "internal error"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := Describe(tt.err); got != tt.want {
				t.Errorf("Describe() = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("sentinel hierarchy", func(t *testing.T) {
		if !errors.Is(ErrNotFound, ErrUpstream) {
			t.Error("ErrNotFound should match ErrUpstream")
		}
		if !errors.Is(ErrRateLimited, ErrUpstream) {
			t.Error("ErrRateLimited should match ErrUpstream")
		}
		if !errors.Is(Errorf(ErrNotFound, "gone"), ErrUpstream) {
			t.Error("described errors should keep their sentinel chain")
		}
	})
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")

	if err := WriteFileAtomic(path, []byte("one"), 0600); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("two"), 0600); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	if string(data) != "two" {
		t.Errorf("expected latest contents, got %q", data)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	if got := ExpandPath("~/.tidal-mcp/session.json"); got != filepath.Join(home, ".tidal-mcp", "session.json") {
		t.Errorf("ExpandPath() = %q", got)
	}
	if got := ExpandPath("/tmp/x"); got != "/tmp/x" {
		t.Errorf("absolute paths should be unchanged, got %q", got)
	}
}

func TestOpenBrowser(t *testing.T) {
	origRuntime, origStart := getRuntime, startCommand
	t.Cleanup(func() { getRuntime, startCommand = origRuntime, origStart })

	var started *exec.Cmd
	startCommand = func(cmd *exec.Cmd) error { started = cmd; return nil }

	tc := []struct {
		goos string
		want string
	}{
		{"darwin", "open"},
		{"linux", "xdg-open"},
		{"windows", "rundll32"},
	}
	for _, tt := range tc {
		t.Run(tt.goos, func(t *testing.T) {
			getRuntime = func() string { return tt.goos }
			if err := OpenBrowser("https://link.tidal.com/ABCDE"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if filepath.Base(started.Path) != tt.want && started.Args[0] != tt.want {
				t.Errorf("expected %s, got %v", tt.want, started.Args)
			}
		})
	}

	t.Run("unsupported", func(t *testing.T) {
		getRuntime = func() string { return "plan9" }
		if err := OpenBrowser("https://tidal.com"); err == nil {
			t.Error("expected error for unsupported platform")
		}
	})
}
