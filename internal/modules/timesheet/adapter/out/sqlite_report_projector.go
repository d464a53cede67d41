package out

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"tmk/internal/modules/timesheet/domain"
	sheetout "tmk/internal/modules/timesheet/port/out"

	_ "modernc.org/sqlite"
)

// SQLiteReportProjector mirrors the sheet into a SQLite table so report
// queries never touch (or lock) the shared file.
type SQLiteReportProjector struct {
	db *sql.DB
}

func NewSQLiteReportProjector(dbPath string) (*SQLiteReportProjector, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	p := &SQLiteReportProjector{db: db}
	if err := p.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *SQLiteReportProjector) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS timesheet_entries (
  host TEXT NOT NULL,
  user TEXT NOT NULL,
  project TEXT NOT NULL,
  job TEXT NOT NULL,
  start INTEGER NOT NULL,
  accumulated INTEGER NOT NULL,
  marker INTEGER NOT NULL,
  status TEXT NOT NULL,
  note TEXT NOT NULL,
  PRIMARY KEY (host, user, project, job)
);
CREATE INDEX IF NOT EXISTS idx_entries_project ON timesheet_entries(project, job);
`
	if _, err := p.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create entries table: %w", err)
	}
	return nil
}

// Project replaces the mirror with the given entries. The sheet is
// small; a full rewrite inside one transaction keeps this trivial.
func (p *SQLiteReportProjector) Project(ctx context.Context, entries []domain.SectionEntry) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin projection: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM timesheet_entries;`); err != nil {
		return fmt.Errorf("clear projection: %w", err)
	}
	const stmt = `
INSERT INTO timesheet_entries (host, user, project, job, start, accumulated, marker, status, note)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`
	for _, item := range entries {
		entry := item.Entry
		if _, err := tx.ExecContext(ctx, stmt,
			item.Section.Host, item.Section.User,
			entry.Project, entry.Job, entry.Start,
			entry.Accumulated, entry.Marker, string(entry.Status), entry.Note,
		); err != nil {
			return fmt.Errorf("insert projection row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit projection: %w", err)
	}
	return nil
}

func (p *SQLiteReportProjector) Totals(ctx context.Context) ([]sheetout.ReportRow, error) {
	rows, err := p.db.QueryContext(ctx, `
SELECT host, user, project, job, accumulated, accumulated - marker, status
FROM timesheet_entries
ORDER BY project ASC, job ASC, host ASC, user ASC;
`)
	if err != nil {
		return nil, fmt.Errorf("query totals: %w", err)
	}
	defer rows.Close()

	out := []sheetout.ReportRow{}
	for rows.Next() {
		row := sheetout.ReportRow{}
		if err := rows.Scan(&row.Host, &row.User, &row.Project, &row.Job, &row.Accumulated, &row.Pending, &row.Status); err != nil {
			return nil, fmt.Errorf("scan total: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate totals: %w", err)
	}
	return out, nil
}

func (p *SQLiteReportProjector) Close() error {
	return p.db.Close()
}
