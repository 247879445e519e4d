// Package fs selects the files an import command operates on and detects
// which export format each one holds.
package fs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"fitrec/internal/model"
)

// ImportFile is one file selected for import.
type ImportFile struct {
	Path   string
	Source model.Source
	Size   int64
}

// ErrUnknownFormat is returned when a file's source cannot be detected.
var ErrUnknownFormat = errors.New("cannot detect export format")

// DetectSource maps a file name to the export it most likely holds.
func DetectSource(name string) (model.Source, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".zip":
		return model.SourceImportApple, nil
	case ".csv":
		return model.SourceImportHevy, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, name)
}

// ImportResolver expands command-line paths into import files.
type ImportResolver struct {
	exclude *ExcludeMatcher
	maxSize int64
}

// NewImportResolver creates a resolver that skips files matching exclude.
// Files larger than maxSize bytes are rejected; zero means no limit.
func NewImportResolver(exclude []string, maxSize int64) *ImportResolver {
	return &ImportResolver{exclude: NewExcludeMatcher(exclude), maxSize: maxSize}
}

// Resolve returns the files under rawPath. A file path is returned as is
// and must have a detectable format unless source is set. A directory is
// scanned for files with a detectable format, skipping hidden and excluded
// entries; subdirectories are included when recursive is true. A non-empty
// source overrides detection for every file.
func (r *ImportResolver) Resolve(rawPath string, recursive bool, source model.Source) ([]ImportFile, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}

	if !info.IsDir() {
		f, err := r.file(absPath, info, source)
		if err != nil {
			return nil, err
		}
		return []ImportFile{f}, nil
	}
	return r.scan(absPath, recursive, source)
}

func (r *ImportResolver) file(path string, info fs.FileInfo, source model.Source) (ImportFile, error) {
	if !info.Mode().IsRegular() {
		return ImportFile{}, fmt.Errorf("not a regular file: %s", path)
	}
	if r.maxSize > 0 && info.Size() > r.maxSize {
		return ImportFile{}, fmt.Errorf("%s is %d bytes, above the %d byte limit", path, info.Size(), r.maxSize)
	}
	if source == "" {
		detected, err := DetectSource(path)
		if err != nil {
			return ImportFile{}, err
		}
		source = detected
	}
	return ImportFile{Path: path, Source: source, Size: info.Size()}, nil
}

func (r *ImportResolver) scan(root string, recursive bool, source model.Source) ([]ImportFile, error) {
	var files []ImportFile
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		hidden := strings.HasPrefix(d.Name(), ".")
		if d.IsDir() {
			if !recursive || hidden || r.exclude.Match(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if hidden || !d.Type().IsRegular() || r.exclude.Match(rel) {
			return nil
		}
		if source == "" {
			if _, err := DetectSource(p); err != nil {
				return nil
			}
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		f, err := r.file(p, info, source)
		if err != nil {
			return err
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Read returns the contents of f.
func (r *ImportResolver) Read(f ImportFile) ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.Path, err)
	}
	return data, nil
}
