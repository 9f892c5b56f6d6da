package sqlite

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/serially/internal/ports"
	"github.com/bft-labs/serially/pkg/classpath"
	"github.com/bft-labs/serially/pkg/log"
)

// IndexResult reports what an indexing pass added.
type IndexResult struct {
	Added   []string
	Classes int
	Skipped int
}

// Indexer adds artifacts to a catalog. Indexing calls are serialized.
type Indexer struct {
	mu      sync.Mutex
	db      *sql.DB
	path    string
	logger  ports.Logger
	workers int
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithWorkers bounds how many artifacts are scanned concurrently.
func WithWorkers(n int) IndexerOption {
	return func(ix *Indexer) {
		if n > 0 {
			ix.workers = n
		}
	}
}

// OpenIndexer opens or creates the catalog at path.
// Creates the parent directory if it does not exist.
func OpenIndexer(path string, logger ports.Logger, opts ...IndexerOption) (*Indexer, error) {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create catalog dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create catalog schema: %w", err)
	}
	ix := &Indexer{db: db, path: path, logger: logger, workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// Close closes the catalog.
func (ix *Indexer) Close() error {
	return ix.db.Close()
}

// IndexDir adds every .jar file under dir that the catalog does not list
// yet. Handles are paths relative to dir. Artifacts that cannot be read are
// skipped with a warning.
func (ix *Indexer) IndexDir(ctx context.Context, dir string) (IndexResult, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var res IndexResult
	handles, err := findJars(dir)
	if err != nil {
		return res, err
	}
	known, err := ix.knownHandles(ctx)
	if err != nil {
		return res, err
	}
	var pending []string
	for _, h := range handles {
		if !known[h] {
			pending = append(pending, h)
		}
	}
	if len(pending) == 0 {
		ix.logger.Info("No new jar files found in " + dir)
		return res, nil
	}

	scans := make([]*jarScan, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)
	for i, h := range pending {
		g.Go(func() error {
			s, err := scanJar(gctx, filepath.Join(dir, filepath.FromSlash(h)))
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				ix.logger.Warn("Skipping jar file", log.String("jar", h), log.Err(err))
				return nil
			}
			scans[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	for i, s := range scans {
		if s == nil {
			res.Skipped++
			continue
		}
		if err := ix.insert(ctx, pending[i], s); err != nil {
			return res, err
		}
		res.Added = append(res.Added, pending[i])
		res.Classes += len(s.classes)
	}
	return res, nil
}

// IndexFile adds the artifact at dir/handle, or refreshes its hash and
// class rows when the file no longer matches the catalogued hash. It reports
// whether the catalog changed.
func (ix *Indexer) IndexFile(ctx context.Context, dir, handle string) (bool, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	path := filepath.Join(dir, filepath.FromSlash(handle))
	jarID, hash, known, err := ix.lookup(ctx, handle)
	if err != nil {
		return false, err
	}
	if known {
		sum, err := md5File(path)
		if err != nil {
			return false, err
		}
		if sum == hash {
			return false, nil
		}
	}
	s, err := scanJar(ctx, path)
	if err != nil {
		return false, err
	}
	if known {
		err = ix.replace(ctx, jarID, handle, s)
	} else {
		err = ix.insert(ctx, handle, s)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// lookup returns the row ID and hash of the first catalog entry for handle.
func (ix *Indexer) lookup(ctx context.Context, handle string) (int64, string, bool, error) {
	var (
		jarID int64
		hash  sql.NullString
	)
	err := ix.db.QueryRowContext(ctx,
		"SELECT rowid, hash FROM jar WHERE filename = ? ORDER BY rowid LIMIT 1", handle,
	).Scan(&jarID, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, fmt.Errorf("query jar %s: %w", handle, err)
	}
	return jarID, hash.String, true, nil
}

func (ix *Indexer) knownHandles(ctx context.Context) (map[string]bool, error) {
	rows, err := ix.db.QueryContext(ctx, "SELECT filename FROM jar")
	if err != nil {
		return nil, fmt.Errorf("query jars: %w", err)
	}
	defer rows.Close()
	known := make(map[string]bool)
	for rows.Next() {
		var name sql.NullString
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan jar: %w", err)
		}
		known[name.String] = true
	}
	return known, rows.Err()
}

func (ix *Indexer) insert(ctx context.Context, handle string, s *jarScan) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, "INSERT INTO jar(filename,hash) VALUES(?,?)", handle, s.hash)
	if err != nil {
		return fmt.Errorf("insert jar %s: %w", handle, err)
	}
	jarID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert jar %s: %w", handle, err)
	}
	if err := ix.insertClasses(ctx, tx, jarID, s.classes); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit jar %s: %w", handle, err)
	}
	return nil
}

// replace rewrites the hash and classes of an existing jar row, keeping its
// position in catalog order.
func (ix *Indexer) replace(ctx context.Context, jarID int64, handle string, s *jarScan) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "UPDATE jar SET hash = ? WHERE rowid = ?", s.hash, jarID); err != nil {
		return fmt.Errorf("update jar %s: %w", handle, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM class WHERE jarID = ?", jarID); err != nil {
		return fmt.Errorf("delete classes of %s: %w", handle, err)
	}
	if err := ix.insertClasses(ctx, tx, jarID, s.classes); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit jar %s: %w", handle, err)
	}
	return nil
}

func (ix *Indexer) insertClasses(ctx context.Context, tx *sql.Tx, jarID int64, classes []classRow) error {
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO class(jarID, fqdn, serialVersionUID) VALUES(?,?,?)")
	if err != nil {
		return fmt.Errorf("prepare class insert: %w", err)
	}
	defer stmt.Close()
	for _, c := range classes {
		ix.logger.Debug("Adding to database",
			log.Int64("jarID", jarID),
			log.String("class", c.name),
			log.String("serialVersionUID", c.suid.String),
		)
		if _, err := stmt.ExecContext(ctx, jarID, c.name, c.suid); err != nil {
			return fmt.Errorf("insert class %s: %w", c.name, err)
		}
	}
	return nil
}

type classRow struct {
	name string
	suid sql.NullString
}

type jarScan struct {
	hash    string
	classes []classRow
}

// scanJar hashes an artifact and lists its classes with the stream
// identifier of every class that resolves as serializable within the
// artifact itself.
func scanJar(ctx context.Context, path string) (*jarScan, error) {
	hash, err := md5File(path)
	if err != nil {
		return nil, err
	}
	reg := classpath.NewRegistry()
	defer reg.Close()
	if _, err := reg.Load(path); err != nil {
		return nil, err
	}

	s := &jarScan{hash: hash}
	for _, name := range reg.ClassesIn(path) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := classRow{name: name}
		if t, err := reg.Resolve(name); err == nil && t.IsSerializable() {
			if suid, ok := t.SerialVersionUID(); ok {
				row.suid = sql.NullString{String: strconv.FormatInt(suid, 10), Valid: true}
			}
		}
		s.classes = append(s.classes, row)
	}
	return s, nil
}

func md5File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// findJars lists .jar files under dir as slash-separated relative paths in
// lexical order.
func findJars(dir string) ([]string, error) {
	var handles []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsJar(path) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		handles = append(handles, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan jar dir: %w", err)
	}
	return handles, nil
}

// IsJar reports whether path names a JAR file.
func IsJar(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".jar")
}
