package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"leadscout-engine/internal/domain"
)

// Lead is one stored row, the durable form a listing takes after a run.
type Lead struct {
	ID            int64           `json:"id"`
	SourceFile    string          `json:"sourceFile"`
	Address       string          `json:"address"`
	City          string          `json:"city"`
	Zip           string          `json:"zip"`
	Price         string          `json:"price"`
	Beds          string          `json:"beds"`
	Baths         string          `json:"baths"`
	SqFt          string          `json:"sqft"`
	DOM           string          `json:"dom"`
	CDOM          string          `json:"cdom"`
	PreviousAgent string          `json:"previousAgent"`
	OwnerName     *string         `json:"ownerName"`
	OwnerPhone    *string         `json:"ownerPhone"`
	OwnerEmail    *string         `json:"ownerEmail"`
	OwnerMailAddr *string         `json:"ownerMailAddr"`
	UrgencyScore  float64         `json:"urgencyScore"`
	Status        string          `json:"status"`
	Analysis      json.RawMessage `json:"analysis"`
	CreatedAt     string          `json:"createdAt"`
}

// InsertLead stores one scored (possibly enriched) listing with its
// serialized analysis payload.
func InsertLead(ctx context.Context, db *sql.DB, l domain.Listing, a domain.Analysis) error {
	analysisJSON, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}

	_, err = db.ExecContext(ctx, `
INSERT INTO leads (
  source_file, address, city, zip, price, beds, baths, sqft, dom, cdom,
  previous_agent, owner_name, owner_phone, owner_email, owner_mail_addr,
  urgency_score, status, analysis, created_at
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?);`,
		l.SourceFile, l.Address, l.City, l.Zip, l.Price, l.Beds, l.Baths, l.SqFt, l.DOM, l.CDOM,
		l.AgentName, nullable(l.OwnerName), nullable(l.OwnerPhone), nullable(l.OwnerEmail), nullable(l.OwnerMailAddr),
		l.UrgencyScore, "new", string(analysisJSON), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type ListLeadsOpts struct {
	SourceFile string // filter, "" for all
	Limit      int
}

// ListLeads returns leads sorted by urgency score descending.
func ListLeads(ctx context.Context, db *sql.DB, opts ListLeadsOpts) ([]Lead, error) {
	if opts.Limit <= 0 {
		opts.Limit = 500
	}

	where := ""
	args := []any{}
	if opts.SourceFile != "" {
		where = "WHERE source_file = ?"
		args = append(args, opts.SourceFile)
	}
	args = append(args, opts.Limit)

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
SELECT id, source_file, address, city, zip, price, beds, baths, sqft, dom, cdom,
       previous_agent, owner_name, owner_phone, owner_email, owner_mail_addr,
       urgency_score, status, analysis, created_at
FROM leads
%s
ORDER BY urgency_score DESC, id ASC
LIMIT ?;`, where), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Lead
	for rows.Next() {
		var l Lead
		var analysisStr string
		if err := rows.Scan(
			&l.ID, &l.SourceFile, &l.Address, &l.City, &l.Zip, &l.Price, &l.Beds, &l.Baths,
			&l.SqFt, &l.DOM, &l.CDOM, &l.PreviousAgent,
			&l.OwnerName, &l.OwnerPhone, &l.OwnerEmail, &l.OwnerMailAddr,
			&l.UrgencyScore, &l.Status, &analysisStr, &l.CreatedAt,
		); err != nil {
			return nil, err
		}
		l.Analysis = json.RawMessage(analysisStr)
		out = append(out, l)
	}
	return out, rows.Err()
}

// CountLeadsByFile reports how many leads a given export produced; used by
// the idempotency tests and the run summary.
func CountLeadsByFile(ctx context.Context, db *sql.DB, filename string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM leads WHERE source_file = ?;`, filename).Scan(&n)
	return n, err
}
