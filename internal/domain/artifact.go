package domain

import "strings"

// CatalogRow is one (artifact, class) pair read from the catalog.
type CatalogRow struct {
	Handle string
	Class  string
}

// Artifact is a catalogued JAR and the classes it defines, in catalog order.
type Artifact struct {
	Handle  string
	Classes []string
}

// GroupArtifacts groups rows by artifact handle, keeping only classes whose
// name contains filter (all classes when filter is empty). Artifacts keep the
// order in which their handle first appears; class names are deduplicated
// per artifact and keep catalog order. Artifacts without a matching class
// are dropped.
func GroupArtifacts(rows []CatalogRow, filter string) []Artifact {
	var (
		artifacts []Artifact
		index     = make(map[string]int)
		seen      = make(map[CatalogRow]bool)
	)
	for _, row := range rows {
		if filter != "" && !strings.Contains(row.Class, filter) {
			continue
		}
		if seen[row] {
			continue
		}
		seen[row] = true
		i, ok := index[row.Handle]
		if !ok {
			i = len(artifacts)
			index[row.Handle] = i
			artifacts = append(artifacts, Artifact{Handle: row.Handle})
		}
		artifacts[i].Classes = append(artifacts[i].Classes, row.Class)
	}
	return artifacts
}

// ProbeAttempt is a single try of one class of an artifact. Instance and
// Payload are nil when instantiation or serialization failed.
type ProbeAttempt struct {
	Artifact string
	Class    string
	Instance any
	Payload  []byte
	Outcome  Outcome
}
