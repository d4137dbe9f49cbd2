// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package catalog records completed issues in a SQLite database so the
// archive can be listed without scanning manifests.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/epaper/pkg/types"
)

// ErrNotFound is returned by Lookup when no issue is recorded for a date.
var ErrNotFound = errors.New("issue not in catalog")

// Store manages the catalog database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the catalog at path, creating its directory and
// schema if needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS issues (
			date TEXT PRIMARY KEY,
			epaper_date TEXT NOT NULL,
			identifier TEXT NOT NULL,
			index_url TEXT,
			pdf_path TEXT NOT NULL,
			manifest_path TEXT,
			run_id TEXT,
			page_count INTEGER NOT NULL,
			fetched_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pages (
			date TEXT NOT NULL REFERENCES issues(date) ON DELETE CASCADE,
			number INTEGER NOT NULL,
			url TEXT NOT NULL,
			bytes INTEGER NOT NULL,
			PRIMARY KEY (date, number)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Record stores issue, replacing any earlier record for the same date.
func (s *Store) Record(ctx context.Context, issue types.Issue) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE date = ?`, issue.Date); err != nil {
		return fmt.Errorf("clearing pages for %s: %w", issue.Date, err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO issues
		(date, epaper_date, identifier, index_url, pdf_path, manifest_path, run_id, page_count, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			epaper_date = excluded.epaper_date,
			identifier = excluded.identifier,
			index_url = excluded.index_url,
			pdf_path = excluded.pdf_path,
			manifest_path = excluded.manifest_path,
			run_id = excluded.run_id,
			page_count = excluded.page_count,
			fetched_at = excluded.fetched_at`,
		issue.Date, issue.EpaperDate, issue.Identifier, issue.IndexURL, issue.PDFPath,
		issue.ManifestPath, issue.RunID, len(issue.Pages), issue.FetchedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording issue %s: %w", issue.Date, err)
	}

	for _, p := range issue.Pages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pages (date, number, url, bytes) VALUES (?, ?, ?, ?)`,
			issue.Date, p.Number, p.URL, p.Bytes,
		); err != nil {
			return fmt.Errorf("recording page %d of %s: %w", p.Number, issue.Date, err)
		}
	}

	return tx.Commit()
}

// Entry is a catalog row as listed: the issue without its pages, plus the
// number of pages it had.
type Entry struct {
	types.Issue
	PageCount int `json:"page_count" yaml:"page_count"`
}

// List returns all recorded issues, newest date first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		date, epaper_date, identifier, index_url, pdf_path, manifest_path, run_id, page_count, fetched_at
		FROM issues ORDER BY date DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing issues: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		issue, pageCount, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Issue: issue, PageCount: pageCount})
	}
	return entries, rows.Err()
}

// Count returns the number of recorded issues.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM issues`).Scan(&n)
	return n, err
}

// Lookup returns the issue recorded for date (YYYYMMDD) with its pages.
func (s *Store) Lookup(ctx context.Context, date string) (types.Issue, error) {
	row := s.db.QueryRowContext(ctx, `SELECT
		date, epaper_date, identifier, index_url, pdf_path, manifest_path, run_id, page_count, fetched_at
		FROM issues WHERE date = ?`, date)
	issue, _, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Issue{}, fmt.Errorf("%w: %s", ErrNotFound, date)
	}
	if err != nil {
		return types.Issue{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT number, url, bytes FROM pages WHERE date = ? ORDER BY number`, date)
	if err != nil {
		return types.Issue{}, fmt.Errorf("loading pages for %s: %w", date, err)
	}
	defer rows.Close()
	for rows.Next() {
		var p types.Page
		if err := rows.Scan(&p.Number, &p.URL, &p.Bytes); err != nil {
			return types.Issue{}, fmt.Errorf("scanning page: %w", err)
		}
		issue.Pages = append(issue.Pages, p)
	}
	return issue, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

// scanIssue reads one issues row. The stored page count is returned
// separately because List does not load the pages themselves.
func scanIssue(sc scanner) (types.Issue, int, error) {
	var (
		issue                     types.Issue
		indexURL, manifest, runID sql.NullString
		pageCount                 int
		fetchedAt                 string
	)
	if err := sc.Scan(&issue.Date, &issue.EpaperDate, &issue.Identifier, &indexURL,
		&issue.PDFPath, &manifest, &runID, &pageCount, &fetchedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return issue, 0, err
		}
		return issue, 0, fmt.Errorf("scanning issue: %w", err)
	}
	issue.IndexURL = indexURL.String
	issue.ManifestPath = manifest.String
	issue.RunID = runID.String
	if t, err := time.Parse(time.RFC3339Nano, fetchedAt); err == nil {
		issue.FetchedAt = t
	}
	return issue, pageCount, nil
}
