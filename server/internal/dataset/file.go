package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrRejectedRows is returned by SaveFile while rows rejected by the last
// LoadFile or ReloadFile would be lost by overwriting the file.
var ErrRejectedRows = errors.New("dataset: file has rejected rows")

// LoadFile imports the file at path with ModeReplace. A missing file is not
// an error: the store is left empty and the result carries no rows.
//
// Rejected rows are remembered, and SaveFile refuses to overwrite the file
// until they are fixed on disk or the dataset is replaced.
func (s *Store) LoadFile(path string) (ImportResult, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ImportResult{}, nil
	}
	if err != nil {
		return ImportResult{}, fmt.Errorf("dataset: open %q: %w", path, err)
	}
	defer f.Close()

	return s.importFile(f)
}

func (s *Store) importFile(r io.Reader) (ImportResult, error) {
	return s.importRows(r, ModeReplace, true)
}

// Rejected returns the number of rows the last file load rejected. It drops
// to 0 when a reload parses cleanly or the records are replaced.
func (s *Store) Rejected() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rejected
}

// ReloadFile re-imports path after an external edit. It reports false and
// leaves the store alone when the file already matches the current export,
// which is the case right after SaveFile.
func (s *Store) ReloadFile(path string) (bool, ImportResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, ImportResult{}, fmt.Errorf("dataset: read %q: %w", path, err)
	}
	var cur bytes.Buffer
	if err := s.Export(&cur); err != nil {
		return false, ImportResult{}, err
	}
	if bytes.Equal(data, cur.Bytes()) {
		return false, ImportResult{}, nil
	}
	res, err := s.importFile(bytes.NewReader(data))
	if err != nil {
		return false, res, err
	}
	return true, res, nil
}

// SaveFile writes the current records to path. The file is replaced
// atomically: data goes to a temporary sibling that is renamed over path,
// so a concurrent reader never sees a truncated file.
//
// SaveFile fails with ErrRejectedRows while Rejected is non-zero.
func (s *Store) SaveFile(path string) error {
	if n := s.Rejected(); n > 0 {
		return fmt.Errorf("%w: %d row(s) in %q would be lost", ErrRejectedRows, n, path)
	}
	var buf bytes.Buffer
	if err := s.Export(&buf); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes())
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".pgilab-*.tmp")
	if err != nil {
		return fmt.Errorf("dataset: create temp in %q: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("dataset: write %q: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("dataset: close %q: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("dataset: rename to %q: %w", path, err)
	}
	return nil
}
