package importer

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cleared-dev/stmtledger/internal/model"
)

// Source turns a statement document into physical lines.
type Source interface {
	Read(document string, r io.Reader) ([]model.RawLine, error)
	Format() string // file extension without the dot
}

// Registry holds sources keyed by file extension.
type Registry struct {
	sources map[string]Source
}

// FileInfo describes a statement file in an import directory.
type FileInfo struct {
	Name string
	Path string
	Size int64
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds a source. Panics on duplicate format.
func (r *Registry) Register(s Source) {
	key := strings.ToLower(s.Format())
	if _, ok := r.sources[key]; ok {
		panic("duplicate source format: " + key)
	}
	r.sources[key] = s
}

// Get returns the source for format, or nil.
func (r *Registry) Get(format string) Source {
	return r.sources[strings.ToLower(strings.TrimPrefix(format, "."))]
}

// ForPath returns the source matching path's extension, or nil.
func (r *Registry) ForPath(path string) Source {
	return r.Get(filepath.Ext(path))
}

// DefaultRegistry returns a registry with all built-in sources.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&TextSource{})
	r.Register(&PDFSource{})
	return r
}

// Load reads the file at path with the source registered for its extension.
// The document identifier is the file's base name.
func (r *Registry) Load(path string) (string, []model.RawLine, error) {
	src := r.ForPath(path)
	if src == nil {
		return "", nil, fmt.Errorf("%s: unsupported input format %q", path, filepath.Ext(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("reading %s: %w", path, err)
	}

	doc := filepath.Base(path)
	lines, err := src.Read(doc, bytes.NewReader(data))
	if err != nil {
		return "", nil, fmt.Errorf("reading %s as %s: %w", doc, src.Format(), err)
	}
	return doc, lines, nil
}

// Dir is the workspace subdirectory scanned when no input is given.
const Dir = "import"

// ProcessedDir is created inside a scanned directory.
const ProcessedDir = "processed"

// Scan returns the files in dir that a registered source can read, sorted by name.
func (r *Registry) Scan(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading import dir: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if r.ForPath(e.Name()) == nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// MarkProcessed moves dir/fileName to dir/processed/fileName.
func MarkProcessed(dir, fileName string) error {
	src := filepath.Join(dir, fileName)
	dstDir := filepath.Join(dir, ProcessedDir)

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating processed dir: %w", err)
	}

	dst := filepath.Join(dstDir, fileName)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to processed: %w", fileName, err)
	}
	return nil
}
