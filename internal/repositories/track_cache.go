package repositories

import (
	"fmt"
	"time"

	"github.com/desertthunder/tidal-mcp/internal/models"
)

// TrackCacheAdapter implements tools.TrackCacher using TrackRepository.
//
// A batch is written in one transaction; repeated ids bump the hit counter instead of failing.
type TrackCacheAdapter struct {
	repo *TrackRepository
}

// NewTrackCacheAdapter creates a new TrackCacheAdapter with the given repository
func NewTrackCacheAdapter(repo *TrackRepository) *TrackCacheAdapter {
	return &TrackCacheAdapter{repo: repo}
}

// CacheTracks upserts every track with a TIDAL id; tracks without one are skipped.
func (a *TrackCacheAdapter) CacheTracks(tracks []models.Track) error {
	if len(tracks) == 0 {
		return nil
	}

	tx, err := a.repo.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin cache transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, track := range tracks {
		if track.ID == "" {
			continue
		}
		if err := upsertTrack(tx, track, now); err != nil {
			return fmt.Errorf("failed to cache track: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache transaction: %w", err)
	}
	return nil
}
