package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/tidal-mcp/internal/models"
)

// ToolCallStats aggregates the stored history for one tool.
type ToolCallStats struct {
	Tool     string `json:"tool"`
	Calls    int    `json:"calls"`
	Failures int    `json:"failures"`
}

// ToolCallRepository persists [models.ToolCall] rows.
type ToolCallRepository struct {
	db *sql.DB
}

// NewToolCallRepository creates a new ToolCallRepository with the given database connection
func NewToolCallRepository(db *sql.DB) *ToolCallRepository {
	return &ToolCallRepository{db: db}
}

// Create inserts call
func (r *ToolCallRepository) Create(call *models.ToolCall) error {
	if err := call.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	_, err := r.db.Exec(
		`INSERT INTO tool_calls (id, tool, status, message, duration_ms, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		call.ID(), call.Tool(), call.Status(), call.Message(), call.Duration().Milliseconds(), call.CreatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert tool call: %w", err)
	}
	return nil
}

// RecordCall implements the dispatcher's call recorder.
func (r *ToolCallRepository) RecordCall(id, tool, status, message string, duration time.Duration) error {
	return r.Create(models.NewToolCall(id, tool, status, message, duration))
}

// List returns up to limit tool calls, newest first. A non-positive limit returns every row.
func (r *ToolCallRepository) List(limit int) ([]*models.ToolCall, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(`
		SELECT id, tool, status, message, duration_ms, created_at
		FROM tool_calls
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tool calls: %w", err)
	}
	defer rows.Close()

	var calls []*models.ToolCall
	for rows.Next() {
		var (
			id, tool, status, message string
			durationMS                int64
			createdAt                 time.Time
		)
		if err := rows.Scan(&id, &tool, &status, &message, &durationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan tool call: %w", err)
		}
		calls = append(calls, models.RestoreToolCall(id, tool, status, message, time.Duration(durationMS)*time.Millisecond, createdAt))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return calls, nil
}

// Stats groups stored calls by tool name.
func (r *ToolCallRepository) Stats() ([]ToolCallStats, error) {
	rows, err := r.db.Query(`
		SELECT tool, COUNT(*), SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END)
		FROM tool_calls
		GROUP BY tool
		ORDER BY tool
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate tool calls: %w", err)
	}
	defer rows.Close()

	var stats []ToolCallStats
	for rows.Next() {
		var s ToolCallStats
		if err := rows.Scan(&s.Tool, &s.Calls, &s.Failures); err != nil {
			return nil, fmt.Errorf("failed to scan tool call stats: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Clear removes every stored call
func (r *ToolCallRepository) Clear() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM tool_calls`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear tool calls: %w", err)
	}
	return result.RowsAffected()
}
