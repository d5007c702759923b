package dataset

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/pgilab/pgilab/pkg/types"
)

// ErrNothingToUndo is returned by UndoDelete when no delete is pending.
var ErrNothingToUndo = errors.New("dataset: nothing to undo")

// Mode selects how Import combines parsed rows with the current records.
type Mode int

const (
	// ModeReplace discards the current records.
	ModeReplace Mode = iota
	// ModeAppend adds the parsed rows after the current records.
	ModeAppend
)

// ParseMode maps "replace" and "append" to a Mode. Empty selects replace.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "replace":
		return ModeReplace, nil
	case "append":
		return ModeAppend, nil
	}
	return 0, fmt.Errorf("dataset: unknown import mode %q: want replace|append", s)
}

func (m Mode) String() string {
	if m == ModeAppend {
		return "append"
	}
	return "replace"
}

// deleted remembers the last removed record for UndoDelete.
type deleted struct {
	index  int
	record types.Record
}

// Store is the ordered, in-memory collection of measurement records.
// Records are addressed by position. The store owns its slice; every
// accessor hands out copies.
//
// Store is safe for concurrent use. Each method runs to completion under
// the store lock, so callers always observe whole operations.
type Store struct {
	codec Codec

	mu       sync.RWMutex
	records  []types.Record
	undo     *deleted
	version  uint64
	onChange []func()

	// rejected counts the rows the last LoadFile or ReloadFile could not
	// parse. Those rows exist only on disk.
	rejected int
}

// New creates an empty Store that imports and exports with codec.
func New(codec Codec) *Store {
	return &Store{codec: codec}
}

// Codec returns the tabular codec the store was created with.
func (s *Store) Codec() Codec { return s.codec }

// OnChange registers fn to be called after every successful mutation.
// Callbacks run outside the store lock, on the mutating goroutine.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Version increases by one on every mutation. Two reads with the same
// version saw the same records.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Records returns a copy of all records in order.
func (s *Store) Records() []types.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Record, len(s.records))
	copy(out, s.records)
	return out
}

// Get returns the record at index.
func (s *Store) Get(index int) (types.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.records) {
		return types.Record{}, &types.IndexError{Index: index, Len: len(s.records)}
	}
	return s.records[index], nil
}

// Add validates rec and appends it. It returns the new record's index.
func (s *Store) Add(rec types.Record) (int, error) {
	rec = rec.Normalize()
	if err := rec.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.records = append(s.records, rec)
	idx := len(s.records) - 1
	s.touchLocked()
	s.mu.Unlock()

	s.notify()
	return idx, nil
}

// Update replaces the record at index. The index is checked before the
// record, so an out-of-range call reports an IndexError even for bad data.
func (s *Store) Update(index int, rec types.Record) error {
	rec = rec.Normalize()
	s.mu.Lock()
	if index < 0 || index >= len(s.records) {
		n := len(s.records)
		s.mu.Unlock()
		return &types.IndexError{Index: index, Len: n}
	}
	if err := rec.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.records[index] = rec
	s.touchLocked()
	s.mu.Unlock()

	s.notify()
	return nil
}

// Delete removes the record at index and returns it. The removed record can
// be restored with UndoDelete until the next mutation.
func (s *Store) Delete(index int) (types.Record, error) {
	s.mu.Lock()
	if index < 0 || index >= len(s.records) {
		n := len(s.records)
		s.mu.Unlock()
		return types.Record{}, &types.IndexError{Index: index, Len: n}
	}
	rec := s.records[index]
	s.records = append(s.records[:index], s.records[index+1:]...)
	s.touchLocked()
	s.undo = &deleted{index: index, record: rec}
	s.mu.Unlock()

	s.notify()
	return rec, nil
}

// UndoDelete reinserts the most recently deleted record at its former
// position, or at the end if the dataset has since shrunk below it.
func (s *Store) UndoDelete() (int, error) {
	s.mu.Lock()
	if s.undo == nil {
		s.mu.Unlock()
		return 0, ErrNothingToUndo
	}
	d := *s.undo
	idx := d.index
	if idx > len(s.records) {
		idx = len(s.records)
	}
	s.records = append(s.records, types.Record{})
	copy(s.records[idx+1:], s.records[idx:])
	s.records[idx] = d.record
	s.touchLocked()
	s.mu.Unlock()

	s.notify()
	return idx, nil
}

// Clear removes every record.
func (s *Store) Clear() {
	s.Replace(nil)
}

// Replace swaps in records wholesale. The caller must have validated them;
// records produced by Codec.Parse always are.
func (s *Store) Replace(records []types.Record) {
	cp := make([]types.Record, len(records))
	copy(cp, records)

	s.mu.Lock()
	s.records = cp
	s.rejected = 0
	s.touchLocked()
	s.mu.Unlock()

	s.notify()
}

// Import parses tabular text and merges the valid rows according to mode.
// Row-level failures are returned in the result and do not prevent the
// valid rows from being applied. A fatal parse error leaves the store
// untouched.
func (s *Store) Import(r io.Reader, mode Mode) (ImportResult, error) {
	return s.importRows(r, mode, false)
}

// importRows is Import. fromFile marks a load of the backing file, whose
// rejected rows are counted before any OnChange callback can save.
func (s *Store) importRows(r io.Reader, mode Mode, fromFile bool) (ImportResult, error) {
	res, err := s.codec.Parse(r)
	if err != nil {
		return res, err
	}

	s.mu.Lock()
	switch mode {
	case ModeAppend:
		s.records = append(s.records, res.Records...)
	default:
		cp := make([]types.Record, len(res.Records))
		copy(cp, res.Records)
		s.records = cp
		s.rejected = 0
		if fromFile {
			s.rejected = len(res.Errors)
		}
	}
	s.touchLocked()
	s.mu.Unlock()

	s.notify()
	return res, nil
}

// Export writes every record in the fixed column order.
func (s *Store) Export(w io.Writer) error {
	return s.codec.Write(w, s.Records())
}

// Isolates returns the distinct isolate names, sorted.
func (s *Store) Isolates() []string {
	return s.distinct(func(r types.Record) string { return r.Isolate })
}

// Fungi returns the distinct fungus names, sorted.
func (s *Store) Fungi() []string {
	return s.distinct(func(r types.Record) string { return r.Fungus })
}

func (s *Store) distinct(field func(types.Record) string) []string {
	s.mu.RLock()
	seen := make(map[string]struct{})
	for _, r := range s.records {
		seen[field(r)] = struct{}{}
	}
	s.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// touchLocked bumps the version and drops any pending undo. Delete re-arms
// the undo slot after calling it. Callers hold s.mu.
func (s *Store) touchLocked() {
	s.version++
	s.undo = nil
}

func (s *Store) notify() {
	s.mu.RLock()
	fns := make([]func(), len(s.onChange))
	copy(fns, s.onChange)
	s.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}
