package models

import (
	"fmt"
	"time"
)

// Model defines the base interface for all persistent models.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the read side shared by the cache repositories.
type Repository[T Model] interface {
	Get(id string) (T, error)    // Get retrieves a model by its ID
	List(limit int) ([]T, error) // List retrieves the most recently updated models
	Count() (int, error)         // Count reports how many models are stored
	Clear() (int64, error)       // Clear removes every model and reports how many were removed
}

// Track is the normalized, client-facing view of a TIDAL track.
type Track struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Artist          string `json:"artist"`
	Album           string `json:"album"`
	DurationSeconds int    `json:"duration_seconds"`
	URL             string `json:"url"`
}

// Playlist is the normalized, client-facing view of a TIDAL playlist.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	TrackCount  int    `json:"track_count"`
	URL         string `json:"url"`
}

// CachedTrack is a [Track] persisted in the local cache.
type CachedTrack struct {
	id        string
	track     Track
	hits      int
	createdAt time.Time
	updatedAt time.Time
}

// NewCachedTrack creates a CachedTrack for a track seen for the first time.
func NewCachedTrack(id string, track Track) *CachedTrack {
	now := time.Now().UTC()
	return &CachedTrack{id: id, track: track, hits: 1, createdAt: now, updatedAt: now}
}

// RestoreCachedTrack rebuilds a CachedTrack from stored columns.
func RestoreCachedTrack(id string, track Track, hits int, createdAt, updatedAt time.Time) *CachedTrack {
	return &CachedTrack{id: id, track: track, hits: hits, createdAt: createdAt, updatedAt: updatedAt}
}

func (c *CachedTrack) ID() string           { return c.id }
func (c *CachedTrack) CreatedAt() time.Time { return c.createdAt }
func (c *CachedTrack) UpdatedAt() time.Time { return c.updatedAt }
func (c *CachedTrack) Track() Track         { return c.track }
func (c *CachedTrack) Hits() int            { return c.hits }

// Validate requires a cache id and a TIDAL track id.
func (c *CachedTrack) Validate() error {
	if c.id == "" {
		return fmt.Errorf("cached track id is required")
	}
	if c.track.ID == "" {
		return fmt.Errorf("cached track %s has no tidal id", c.id)
	}
	return nil
}

// ToolCall records one dispatched tool call.
type ToolCall struct {
	id        string
	tool      string
	status    string
	message   string
	duration  time.Duration
	createdAt time.Time
}

// NewToolCall creates a ToolCall stamped with the current time.
func NewToolCall(id, tool, status, message string, duration time.Duration) *ToolCall {
	return &ToolCall{id: id, tool: tool, status: status, message: message, duration: duration, createdAt: time.Now().UTC()}
}

// RestoreToolCall rebuilds a ToolCall from stored columns.
func RestoreToolCall(id, tool, status, message string, duration time.Duration, createdAt time.Time) *ToolCall {
	return &ToolCall{id: id, tool: tool, status: status, message: message, duration: duration, createdAt: createdAt}
}

func (c *ToolCall) ID() string              { return c.id }
func (c *ToolCall) CreatedAt() time.Time    { return c.createdAt }
func (c *ToolCall) UpdatedAt() time.Time    { return c.createdAt }
func (c *ToolCall) Tool() string            { return c.tool }
func (c *ToolCall) Status() string          { return c.status }
func (c *ToolCall) Message() string         { return c.message }
func (c *ToolCall) Duration() time.Duration { return c.duration }

// Validate requires an id, a tool name and a status.
func (c *ToolCall) Validate() error {
	switch {
	case c.id == "":
		return fmt.Errorf("tool call id is required")
	case c.tool == "":
		return fmt.Errorf("tool call %s has no tool name", c.id)
	case c.status == "":
		return fmt.Errorf("tool call %s has no status", c.id)
	}
	return nil
}
