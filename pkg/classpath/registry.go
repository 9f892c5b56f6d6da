// Package classpath keeps the set of JAR archives registered with the
// process and resolves class names against them.
//
// A Registry is the Go stand-in for a JVM class loader: archives are added
// at runtime with Load, classes become resolvable by fully-qualified name,
// and nothing is ever unloaded. Resolution parses class files and links the
// supertype graph; no bytecode runs.
package classpath

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bft-labs/serially/pkg/classfile"
)

var (
	// ErrArtifactNotFound is returned when the archive file does not exist.
	ErrArtifactNotFound = errors.New("classpath: artifact not found")

	// ErrMalformedArtifact is returned when the file is not a readable archive.
	ErrMalformedArtifact = errors.New("classpath: malformed artifact")

	// ErrAccessDenied is returned when the archive cannot be opened for reading.
	ErrAccessDenied = errors.New("classpath: access denied")

	// ErrClassNotFound is returned when no registered archive defines the class.
	ErrClassNotFound = errors.New("classpath: class not found")
)

type classEntry struct {
	archive string
	file    *zip.File
}

// Registry is an append-only arena of loaded archives keyed by absolute
// path. It is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	archives map[string]*zip.ReadCloser
	order    []string
	classes  map[string]classEntry
	parsed   map[string]*classfile.Class
	types    map[string]*Type
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		archives: make(map[string]*zip.ReadCloser),
		classes:  make(map[string]classEntry),
		parsed:   make(map[string]*classfile.Class),
		types:    make(map[string]*Type),
	}
}

// Load registers the archive at path. Loading an archive that is already
// registered is a no-op; added reports whether this call registered it.
// Classes already defined by an earlier archive keep their first definition.
func (r *Registry) Load(path string) (added bool, err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrArtifactNotFound, err)
	}
	abs = filepath.Clean(abs)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.archives[abs]; ok {
		return false, nil
	}

	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return false, fmt.Errorf("%w: %s", ErrArtifactNotFound, abs)
	case errors.Is(err, os.ErrPermission):
		return false, fmt.Errorf("%w: %s", ErrAccessDenied, abs)
	case err != nil:
		return false, fmt.Errorf("stat %s: %w", abs, err)
	case info.IsDir():
		return false, fmt.Errorf("%w: %s is a directory", ErrMalformedArtifact, abs)
	}

	zr, err := zip.OpenReader(abs)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return false, fmt.Errorf("%w: %s", ErrAccessDenied, abs)
		}
		return false, fmt.Errorf("%w: %s: %v", ErrMalformedArtifact, abs, err)
	}

	r.archives[abs] = zr
	r.order = append(r.order, abs)
	for _, f := range zr.File {
		name, ok := ClassName(f.Name)
		if !ok {
			continue
		}
		if _, exists := r.classes[name]; exists {
			continue
		}
		r.classes[name] = classEntry{archive: abs, file: f}
	}
	return true, nil
}

// ClassesIn returns the sorted class names the given archive contributed.
func (r *Registry) ClassesIn(path string) []string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil
	}
	abs = filepath.Clean(abs)

	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for name, e := range r.classes {
		if e.archive == abs {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (r *Registry) classFileLocked(name string) (*classfile.Class, error) {
	if c, ok := r.parsed[name]; ok {
		return c, nil
	}
	e, ok := r.classes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
	}
	rc, err := e.file.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s in %s: %w", name, e.archive, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s in %s: %w", name, e.archive, err)
	}
	c, err := classfile.Parse(b)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	if c.Name != name {
		return nil, fmt.Errorf("%w: %s defines %s", classfile.ErrMalformed, e.file.Name, c.Name)
	}
	r.parsed[name] = c
	return c, nil
}

// Close releases every archive. The registry must not be used afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, path := range r.order {
		if err := r.archives[path].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.archives = map[string]*zip.ReadCloser{}
	r.order = nil
	r.classes = map[string]classEntry{}
	r.parsed = map[string]*classfile.Class{}
	r.types = map[string]*Type{}
	return errors.Join(errs...)
}

// ClassName converts an archive entry path to a class name. Entries under
// META-INF/, module and package descriptors are not classes.
func ClassName(entry string) (string, bool) {
	if !strings.HasSuffix(entry, ".class") || strings.HasPrefix(entry, "META-INF/") {
		return "", false
	}
	base := entry[strings.LastIndex(entry, "/")+1:]
	if base == "module-info.class" || base == "package-info.class" {
		return "", false
	}
	return strings.ReplaceAll(strings.TrimSuffix(entry, ".class"), "/", "."), true
}
