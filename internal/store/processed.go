package store

import (
	"context"
	"database/sql"
	"time"
)

// ProcessedFiles is the "already processed" guard backed by the leads
// database. It is an eventually-consistent check, not a lock: two
// overlapping runs can both see a file as unprocessed. Accepted risk.
type ProcessedFiles struct {
	DB *sql.DB
}

func (p ProcessedFiles) IsProcessed(ctx context.Context, filename string) (bool, error) {
	var one int
	err := p.DB.QueryRowContext(ctx,
		`SELECT 1 FROM processed_files WHERE filename = ? LIMIT 1;`, filename).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p ProcessedFiles) ListProcessed(ctx context.Context) (map[string]bool, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT filename FROM processed_files;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		out[f] = true
	}
	return out, rows.Err()
}

func (p ProcessedFiles) MarkProcessed(ctx context.Context, filename string, leadCount int) error {
	_, err := p.DB.ExecContext(ctx, `
INSERT OR REPLACE INTO processed_files (filename, processed_at, lead_count)
VALUES (?, ?, ?);`,
		filename, time.Now().UTC().Format(time.RFC3339), leadCount)
	return err
}
