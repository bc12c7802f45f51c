package diagnoses

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"leafdoc-backend/internal/shared/telemetry"
)

// PGStore implements HistoryStore using Postgres. The whole history is
// replaced inside one transaction on every save so reload order matches the
// in-memory order exactly.
type PGStore struct {
	DB *sql.DB
}

// Load returns the stored history ordered newest first. Rows that fail to
// decode are skipped with a warning so one corrupt record cannot take down
// the whole history.
func (s *PGStore) Load(ctx context.Context) (History, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, payload FROM analysis_history ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	h := History{}
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		var record AnalysisResult
		if err := json.Unmarshal(payload, &record); err != nil {
			telemetry.Warn("history.corrupt_row", map[string]any{"id": id, "error": err.Error()})
			continue
		}
		h = append(h, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return h, nil
}

// Save replaces the durable history with h.
func (s *PGStore) Save(ctx context.Context, h History) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM analysis_history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}

	const insert = `INSERT INTO analysis_history (id, position, payload, created_at) VALUES ($1, $2, $3, $4)`
	for i, record := range h {
		payload, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", record.ID, err)
		}
		if _, err := tx.ExecContext(ctx, insert, record.ID, i, payload, record.CreatedAt); err != nil {
			return fmt.Errorf("insert record %s: %w", record.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

var _ HistoryStore = (*PGStore)(nil)
