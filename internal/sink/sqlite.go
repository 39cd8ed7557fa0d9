package sink

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rei-strategy/bots/internal/types"
)

const leadsSchema = `
CREATE TABLE IF NOT EXISTS leads (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	sale_date    TEXT NOT NULL DEFAULT '',
	file_number  TEXT NOT NULL DEFAULT '',
	property     TEXT NOT NULL DEFAULT '',
	city         TEXT NOT NULL DEFAULT '',
	zip          TEXT NOT NULL DEFAULT '',
	county       TEXT NOT NULL DEFAULT '',
	bid          TEXT NOT NULL DEFAULT '',
	equity       REAL NOT NULL DEFAULT 0,
	owner_first  TEXT NOT NULL DEFAULT '',
	owner_last   TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL DEFAULT '',
	lookup_error TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_leads_source ON leads(source, id);
`

// SQLiteSink stores committed leads in a local SQLite database. Insertion
// order is the resume order, carried by the autoincrement id.
type SQLiteSink struct {
	db     *sql.DB
	count  int
	logger *slog.Logger
}

// NewSQLiteSink opens the database file and ensures the schema.
func NewSQLiteSink(path string, logger *slog.Logger) (*SQLiteSink, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &types.SinkError{Backend: "sqlite", Err: err}
	}

	// Single writer keeps sqlite happy under the sequential pipeline.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &types.SinkError{Backend: "sqlite", Err: err}
	}

	if _, err := db.ExecContext(ctx, leadsSchema); err != nil {
		db.Close()
		return nil, &types.SinkError{Backend: "sqlite", Err: fmt.Errorf("apply schema: %w", err)}
	}

	return &SQLiteSink{
		db:     db,
		logger: logger.With("component", "sqlite_sink", "path", path),
	}, nil
}

func (s *SQLiteSink) Append(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO leads (sale_date, file_number, property, city, zip, county, bid, equity, owner_first, owner_last, source, lookup_error, status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		rec.SaleDate, rec.FileNumber, rec.Property, rec.City, rec.Zip, rec.County,
		rec.Bid, rec.EstEquity, rec.OwnerFirst, rec.OwnerLast, rec.Source, rec.LookupError, rec.Status,
	)
	if err != nil {
		return &types.SinkError{Backend: "sqlite", Err: err}
	}

	s.count++
	s.logger.Debug("record appended", "source", rec.Source, "property", rec.Property, "total", s.count)
	return nil
}

func (s *SQLiteSink) Rows(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT sale_date, file_number, property, city, zip, county, bid, equity, owner_first, owner_last, source, lookup_error, status
FROM leads ORDER BY id;`)
	if err != nil {
		return nil, &types.SinkError{Backend: "sqlite", Err: err}
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.SaleDate, &rec.FileNumber, &rec.Property, &rec.City, &rec.Zip, &rec.County,
			&rec.Bid, &rec.EstEquity, &rec.OwnerFirst, &rec.OwnerLast, &rec.Source, &rec.LookupError, &rec.Status,
		); err != nil {
			return nil, &types.SinkError{Backend: "sqlite", Err: err}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.SinkError{Backend: "sqlite", Err: err}
	}
	return records, nil
}

func (s *SQLiteSink) LastForSource(ctx context.Context, source string) (Record, bool, error) {
	var rec Record
	err := s.db.QueryRowContext(ctx, `
SELECT sale_date, file_number, property, city, zip, county, bid, equity, owner_first, owner_last, source, lookup_error, status
FROM leads WHERE source = ? ORDER BY id DESC LIMIT 1;`, source).Scan(
		&rec.SaleDate, &rec.FileNumber, &rec.Property, &rec.City, &rec.Zip, &rec.County,
		&rec.Bid, &rec.EstEquity, &rec.OwnerFirst, &rec.OwnerLast, &rec.Source, &rec.LookupError, &rec.Status,
	)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, &types.SinkError{Backend: "sqlite", Err: err}
	}
	return rec, true, nil
}

func (s *SQLiteSink) Update(ctx context.Context, match, updated Record) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE leads SET
	sale_date = ?, file_number = ?, property = ?, city = ?, zip = ?, county = ?,
	bid = ?, equity = ?, owner_first = ?, owner_last = ?, source = ?, lookup_error = ?, status = ?
WHERE id = (
	SELECT id FROM leads
	WHERE source = ? AND UPPER(TRIM(property)) = UPPER(TRIM(?)) AND UPPER(TRIM(city)) = UPPER(TRIM(?)) AND zip = ?
	ORDER BY id LIMIT 1
);`,
		updated.SaleDate, updated.FileNumber, updated.Property, updated.City, updated.Zip, updated.County,
		updated.Bid, updated.EstEquity, updated.OwnerFirst, updated.OwnerLast, updated.Source, updated.LookupError, updated.Status,
		match.Source, match.Property, match.City, match.Zip,
	)
	if err != nil {
		return &types.SinkError{Backend: "sqlite", Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &types.SinkError{Backend: "sqlite", Err: fmt.Errorf("no row matches %s/%s", match.Source, match.Property)}
	}
	return nil
}

func (s *SQLiteSink) Close() error {
	s.logger.Info("sqlite sink closing", "appended", s.count)
	return s.db.Close()
}
