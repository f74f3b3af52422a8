package ltable

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/ValentinKolb/dCoord/lib/table"
	"github.com/spf13/afero"
)

type tableData struct {
	Columns []string    `json:"columns"`
	Rows    []table.Row `json:"rows"`
}

// Store is an in-memory table store.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*tableData

	fs   afero.Fs
	path string
}

// NewStore creates an empty, volatile store.
func NewStore() *Store {
	return &Store{tables: make(map[string]*tableData)}
}

// Open creates a store persisted at path on fsys. An existing snapshot is loaded.
func Open(fsys afero.Fs, path string) (*Store, error) {
	s := NewStore()
	s.fs = fsys
	s.path = path

	raw, err := afero.ReadFile(fsys, path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read table snapshot: %w", err)
	}
	if err := json.Unmarshal(raw, &s.tables); err != nil {
		return nil, fmt.Errorf("decode table snapshot %s: %w", path, err)
	}
	if s.tables == nil {
		s.tables = make(map[string]*tableData)
	}
	return s, nil
}

// CreateTable creates the table if missing and adds any missing columns.
func (s *Store) CreateTable(name string, columns ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[name]
	if !ok {
		t = &tableData{Rows: make([]table.Row, 0)}
		s.tables[name] = t
	}
	prevColumns := t.Columns
	var added []string
	for _, c := range columns {
		if !contains(t.Columns, c) && !contains(added, c) {
			added = append(added, c)
		}
	}
	if len(added) == 0 && ok {
		return nil
	}
	t.Columns = append(append([]string(nil), t.Columns...), added...)
	for _, r := range t.Rows {
		for _, c := range added {
			r[c] = ""
		}
	}

	if err := s.persistLocked(); err != nil {
		if !ok {
			delete(s.tables, name)
			return err
		}
		t.Columns = prevColumns
		for _, r := range t.Rows {
			for _, c := range added {
				delete(r, c)
			}
		}
		return err
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docs see table/interface.go)
// --------------------------------------------------------------------------

func (s *Store) ReadTable(name string) (table.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readLocked(name)
}

func (s *Store) AppendRow(name string, row table.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, r, err := s.prepareLocked(name, row)
	if err != nil {
		return err
	}
	next := make([]table.Row, len(t.Rows), len(t.Rows)+1)
	copy(next, t.Rows)
	return s.commitLocked(t, append(next, r))
}

func (s *Store) OverwriteRange(name string, startRow int, rows []table.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[name]
	if !ok {
		return &table.StructuralError{Table: name}
	}
	if startRow < 0 || startRow > len(t.Rows) {
		return fmt.Errorf("%w: %d (table %s has %d rows)", table.ErrRowOutOfRange, startRow, name, len(t.Rows))
	}
	prepared := make([]table.Row, len(rows))
	for i, row := range rows {
		_, r, err := s.prepareLocked(name, row)
		if err != nil {
			return err
		}
		prepared[i] = r
	}
	next := append([]table.Row(nil), t.Rows...)
	for i, r := range prepared {
		idx := startRow + i
		if idx < len(next) {
			next[idx] = r
		} else {
			next = append(next, r)
		}
	}
	return s.commitLocked(t, next)
}

func (s *Store) DeleteRow(name string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[name]
	if !ok {
		return &table.StructuralError{Table: name}
	}
	if index < 0 || index >= len(t.Rows) {
		return fmt.Errorf("%w: %d (table %s has %d rows)", table.ErrRowOutOfRange, index, name, len(t.Rows))
	}
	next := make([]table.Row, 0, len(t.Rows)-1)
	next = append(next, t.Rows[:index]...)
	return s.commitLocked(t, append(next, t.Rows[index+1:]...))
}

func (s *Store) Rewrite(name string, fn func(current table.Table) ([]table.Row, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.readLocked(name)
	if err != nil {
		return err
	}
	rows, err := fn(current)
	if err != nil {
		return err
	}
	next := make([]table.Row, len(rows))
	for i, row := range rows {
		_, r, err := s.prepareLocked(name, row)
		if err != nil {
			return err
		}
		next[i] = r
	}
	return s.commitLocked(s.tables[name], next)
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// readLocked returns a deep copy of the table.
func (s *Store) readLocked(name string) (table.Table, error) {
	t, ok := s.tables[name]
	if !ok {
		return table.Table{}, &table.StructuralError{Table: name}
	}
	out := table.Table{
		Name:    name,
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([]table.Row, len(t.Rows)),
	}
	for i, r := range t.Rows {
		out.Rows[i] = r.Clone()
	}
	return out, nil
}

// prepareLocked validates row against the header and returns a full copy of it.
func (s *Store) prepareLocked(name string, row table.Row) (*tableData, table.Row, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, nil, &table.StructuralError{Table: name}
	}
	for col := range row {
		if !contains(t.Columns, col) {
			return nil, nil, &table.StructuralError{Table: name, Column: col}
		}
	}
	r := make(table.Row, len(t.Columns))
	for _, c := range t.Columns {
		r[c] = row[c]
	}
	return t, r, nil
}

// commitLocked installs rows as the content of t and persists the store.
// If the snapshot cannot be written the previous rows are put back.
func (s *Store) commitLocked(t *tableData, rows []table.Row) error {
	prev := t.Rows
	t.Rows = rows
	if err := s.persistLocked(); err != nil {
		t.Rows = prev
		return err
	}
	return nil
}

func (s *Store) persistLocked() error {
	if s.fs == nil {
		return nil
	}
	raw, err := json.Marshal(s.tables)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("persist tables: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, raw, 0o644); err != nil {
		return fmt.Errorf("persist tables: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("persist tables: %w", err)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var _ table.IBatchStore = (*Store)(nil)
