package store

import "database/sql"

func Migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}
	if v >= 1 {
		return tx.Commit()
	}

	// ---- Schema v1 ----

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS leads (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  source_file TEXT NOT NULL,
  address TEXT NOT NULL,
  city TEXT NOT NULL DEFAULT '',
  zip TEXT NOT NULL DEFAULT '',
  price TEXT NOT NULL DEFAULT '',
  beds TEXT NOT NULL DEFAULT '',
  baths TEXT NOT NULL DEFAULT '',
  sqft TEXT NOT NULL DEFAULT '',
  dom TEXT NOT NULL DEFAULT '',
  cdom TEXT NOT NULL DEFAULT '',
  previous_agent TEXT NOT NULL DEFAULT '',
  owner_name TEXT,
  owner_phone TEXT,
  owner_email TEXT,
  owner_mail_addr TEXT,
  urgency_score REAL NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'new',
  analysis TEXT NOT NULL DEFAULT '{}',
  created_at TEXT NOT NULL
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS processed_files (
  filename TEXT PRIMARY KEY,
  processed_at TEXT NOT NULL,
  lead_count INTEGER NOT NULL DEFAULT 0
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE INDEX IF NOT EXISTS idx_leads_score
ON leads(urgency_score DESC);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE INDEX IF NOT EXISTS idx_leads_source_file
ON leads(source_file);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`PRAGMA user_version = 1;`); err != nil {
		return err
	}

	return tx.Commit()
}
