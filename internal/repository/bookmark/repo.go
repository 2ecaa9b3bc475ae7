// Package bookmark persists normalized bookmark urls in the relational store.
package bookmark

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/bookmarkd/internal/db/sqldb"
	"github.com/kailas-cloud/bookmarkd/internal/domain"
	dombm "github.com/kailas-cloud/bookmarkd/internal/domain/bookmark"
)

// conn is the consumer interface over database/sql (ISP).
type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Rebind(query string) string
}

// Repo implements the bookmark store used by ingestion and backfill.
type Repo struct {
	db conn
}

// New creates a bookmark repository.
func New(db conn) *Repo {
	return &Repo{db: db}
}

var _ conn = (*sqldb.DB)(nil)

// Exists reports whether a bookmark with this exact url is stored.
func (r *Repo) Exists(ctx context.Context, url string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT 1 FROM bookmarks WHERE url = ? LIMIT 1`), url).Scan(&one)
	switch {
	case isNoRows(err):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("select bookmark %s: %w", url, err)
	}
	return true, nil
}

// Create inserts a bookmark. A row for the same url yields domain.ErrConflict.
func (r *Repo) Create(ctx context.Context, url, title string) error {
	res, err := r.db.ExecContext(ctx,
		r.db.Rebind(`INSERT INTO bookmarks(url, title) VALUES (?, ?) ON CONFLICT (url) DO NOTHING`),
		url, title,
	)
	if err != nil {
		if sqldb.IsUniqueViolation(err) {
			return fmt.Errorf("bookmark %s: %w", url, domain.ErrConflict)
		}
		return fmt.Errorf("insert bookmark %s: %w", url, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("bookmark %s: %w", url, domain.ErrConflict)
	}
	return nil
}

// List returns the newest bookmarks first. limit <= 0 means 100.
func (r *Repo) List(ctx context.Context, limit int) ([]dombm.Bookmark, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx,
		r.db.Rebind(`SELECT url, title, created_at FROM bookmarks ORDER BY created_at DESC, url LIMIT ?`),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []dombm.Bookmark
	for rows.Next() {
		var (
			b       dombm.Bookmark
			title   sql.NullString
			created time.Time
		)
		if err := rows.Scan(&b.URL, &title, &created); err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		b.Title = title.String
		b.CreatedAt = created
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookmarks: %w", err)
	}
	return out, nil
}

// Count returns the number of stored bookmarks.
func (r *Repo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookmarks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count bookmarks: %w", err)
	}
	return n, nil
}

// isNoRows matches sql.ErrNoRows through driver or wrapper error chains.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
