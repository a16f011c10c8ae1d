package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tidal-mcp/internal/models"
	"github.com/desertthunder/tidal-mcp/internal/shared"
)

// ErrTrackNotFound is returned when no cached track matches a lookup.
var ErrTrackNotFound = errors.New("cached track not found")

const trackColumns = `id, tidal_id, title, artist, album, duration_seconds, url, hits, created_at, updated_at`

// TrackRepository implements models.Repository[*models.CachedTrack] over the cached_tracks table.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// Upsert stores track, or bumps the hit counter and refreshes the metadata of an existing row with the same TIDAL id.
func (r *TrackRepository) Upsert(track models.Track) error {
	return upsertTrack(r.db, track, time.Now().UTC())
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func upsertTrack(db execer, track models.Track, now time.Time) error {
	cached := models.NewCachedTrack(shared.GenerateID(), track)
	if err := cached.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO cached_tracks (` + trackColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (tidal_id) DO UPDATE SET
			title = excluded.title,
			artist = excluded.artist,
			album = excluded.album,
			duration_seconds = excluded.duration_seconds,
			url = excluded.url,
			hits = cached_tracks.hits + 1,
			updated_at = excluded.updated_at
	`
	_, err := db.Exec(query,
		cached.ID(),
		track.ID,
		track.Title,
		track.Artist,
		track.Album,
		track.DurationSeconds,
		track.URL,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert track %s: %w", track.ID, err)
	}
	return nil
}

// Get retrieves a cached track by its cache id
func (r *TrackRepository) Get(id string) (*models.CachedTrack, error) {
	query := `SELECT ` + trackColumns + ` FROM cached_tracks WHERE id = ?`
	return scanTrack(r.db.QueryRow(query, id))
}

// GetByTidalID retrieves a cached track by its TIDAL id
func (r *TrackRepository) GetByTidalID(tidalID string) (*models.CachedTrack, error) {
	query := `SELECT ` + trackColumns + ` FROM cached_tracks WHERE tidal_id = ?`
	return scanTrack(r.db.QueryRow(query, tidalID))
}

// List returns up to limit cached tracks, most recently seen first. A non-positive limit returns every row.
func (r *TrackRepository) List(limit int) ([]*models.CachedTrack, error) {
	if limit <= 0 {
		limit = -1
	}

	query := `SELECT ` + trackColumns + ` FROM cached_tracks ORDER BY updated_at DESC, hits DESC LIMIT ?`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*models.CachedTrack
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return tracks, nil
}

// Count reports how many tracks are cached
func (r *TrackRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM cached_tracks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tracks: %w", err)
	}
	return n, nil
}

// Clear removes every cached track
func (r *TrackRepository) Clear() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM cached_tracks`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear tracks: %w", err)
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrack(row scanner) (*models.CachedTrack, error) {
	var (
		id        string
		track     models.Track
		hits      int
		createdAt time.Time
		updatedAt time.Time
	)

	err := row.Scan(&id, &track.ID, &track.Title, &track.Artist, &track.Album, &track.DurationSeconds, &track.URL, &hits, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTrackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}

	return models.RestoreCachedTrack(id, track, hits, createdAt, updatedAt), nil
}
