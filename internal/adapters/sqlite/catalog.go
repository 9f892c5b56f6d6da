// Package sqlite stores the artifact inventory in a SQLite database: the
// jar table lists artifacts with their MD5 hash, the class table lists the
// classes each artifact defines.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/bft-labs/serially/internal/domain"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS jar (filename text, hash text);
CREATE TABLE IF NOT EXISTS class (jarID integer, fqdn text, serialVersionUID text);
`

const selectRows = `
SELECT filename, fqdn FROM jar j JOIN class c ON j.rowid = c.jarID
ORDER BY j.rowid, c.rowid`

// Catalog implements ports.CatalogReader over a catalog file.
type Catalog struct {
	path string
}

// NewCatalog returns a reader for the catalog at path. The file is opened
// per read.
func NewCatalog(path string) *Catalog {
	return &Catalog{path: path}
}

// Path returns the catalog file.
func (c *Catalog) Path() string { return c.path }

// Rows returns every (artifact, class) pair in insertion order.
func (c *Catalog) Rows(ctx context.Context) ([]domain.CatalogRow, error) {
	db, err := c.open(ctx)
	if err != nil || db == nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, selectRows)
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	defer rows.Close()

	var out []domain.CatalogRow
	for rows.Next() {
		var filename, fqdn sql.NullString
		if err := rows.Scan(&filename, &fqdn); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		if !filename.Valid || !fqdn.Valid {
			continue
		}
		out = append(out, domain.CatalogRow{Handle: filename.String, Class: fqdn.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return out, nil
}

// open opens the catalog read-only. It returns a nil database when the file
// holds no catalog tables yet.
func (c *Catalog) open(ctx context.Context) (*sql.DB, error) {
	if _, err := os.Stat(c.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrCatalogNotFound, c.path)
		}
		return nil, err
	}
	db, err := sql.Open(driverName, c.path+"?_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	ok, err := hasTables(ctx, db)
	if err != nil || !ok {
		db.Close()
		return nil, err
	}
	return db, nil
}

// hasTables reports whether both catalog tables exist. An empty file is a
// valid catalog without rows.
func hasTables(ctx context.Context, db *sql.DB) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('jar', 'class')",
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check catalog tables: %w", err)
	}
	return n == 2, nil
}
