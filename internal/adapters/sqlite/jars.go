package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// JarInfo summarizes one catalogued artifact.
type JarInfo struct {
	Filename     string `yaml:"filename"`
	Hash         string `yaml:"hash"`
	Classes      int    `yaml:"classes"`
	Serializable int    `yaml:"serializable"`
}

const selectJars = `
SELECT j.filename, j.hash, c.fqdn, c.serialVersionUID
FROM jar j LEFT JOIN class c ON j.rowid = c.jarID
ORDER BY j.rowid, c.rowid`

// Jars lists catalogued artifacts with class counts. With a non-empty
// filter only classes whose name contains it are counted and artifacts
// without such a class are left out.
func (c *Catalog) Jars(ctx context.Context, filter string) ([]JarInfo, error) {
	db, err := c.open(ctx)
	if err != nil || db == nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, selectJars)
	if err != nil {
		return nil, fmt.Errorf("query jars: %w", err)
	}
	defer rows.Close()

	var (
		jars  []JarInfo
		index = make(map[string]int)
	)
	for rows.Next() {
		var filename, hash, fqdn, suid sql.NullString
		if err := rows.Scan(&filename, &hash, &fqdn, &suid); err != nil {
			return nil, fmt.Errorf("scan jar row: %w", err)
		}
		i, ok := index[filename.String]
		if !ok {
			i = len(jars)
			index[filename.String] = i
			jars = append(jars, JarInfo{Filename: filename.String, Hash: hash.String})
		}
		if !fqdn.Valid || (filter != "" && !strings.Contains(fqdn.String, filter)) {
			continue
		}
		jars[i].Classes++
		if suid.Valid {
			jars[i].Serializable++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read jars: %w", err)
	}
	if filter == "" {
		return jars, nil
	}
	var matched []JarInfo
	for _, j := range jars {
		if j.Classes > 0 {
			matched = append(matched, j)
		}
	}
	return matched, nil
}
