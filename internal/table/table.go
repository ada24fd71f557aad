// Package table implements the per-table storage primitive described in
// spec §4.1: one typed row sequence, its on-disk JSON file, and the
// primary-key / foreign-key discipline the Store relies on. A Table
// knows nothing about other tables or about directory-state resolution;
// that belongs to internal/store.
package table

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/khvorov45/hcwstudyapp/internal/errs"
	"github.com/khvorov45/hcwstudyapp/internal/types"
)

// Keyed is the minimal constraint a row type must satisfy: a primary-key
// projection. The PK method lives on the row type itself (per the design
// notes: "the PK is a trait/interface method on the current row type
// rather than a separate phantom parameter"), not on Table.
type Keyed interface {
	PK() types.Key
}

// Table owns one typed row sequence and its on-disk path.
type Table[C Keyed] struct {
	name string
	path string
	rows []C
}

// Open constructs an empty table handle rooted at dir, materialising an
// empty persisted form ("[]") on disk if one is not already present.
func Open[C Keyed](name, dir string) (*Table[C], error) {
	t := &Table[C]{name: name, path: filepath.Join(dir, name+".json")}
	if _, err := os.Stat(t.path); os.IsNotExist(err) {
		if err := os.WriteFile(t.path, []byte("[]"), 0o644); err != nil {
			return nil, errs.IO("table.open "+name, err)
		}
	} else if err != nil {
		return nil, errs.IO("table.open "+name, err)
	}
	return t, nil
}

// Name returns the table's name, as used in its file name.
func (t *Table[C]) Name() string { return t.name }

// Path returns the table's on-disk path.
func (t *Table[C]) Path() string { return t.path }

// Rows returns a shallow copy of the in-memory row sequence; callers
// must not mutate row interiors through it (rows are values, not
// pointers, so this is enforced by the type system for every row type
// used in this package).
func (t *Table[C]) Rows() []C {
	out := make([]C, len(t.rows))
	copy(out, t.rows)
	return out
}

// Len reports the number of rows currently held in memory.
func (t *Table[C]) Len() int { return len(t.rows) }

// SetRows replaces the in-memory row sequence wholesale, as used by
// ingestion sync and by migration's convert step. It does not persist;
// callers call Write afterwards under the Store lock.
func (t *Table[C]) SetRows(rows []C) { t.rows = rows }

// Append adds a single row to the in-memory sequence without persisting.
func (t *Table[C]) Append(row C) { t.rows = append(t.rows, row) }

// Read loads the table's JSON file into memory, replacing whatever rows
// were previously held.
func (t *Table[C]) Read() error {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return errs.IO("table.read "+t.name, err)
	}
	var rows []C
	if err := json.Unmarshal(data, &rows); err != nil {
		return errs.Parse("table.read "+t.name, err)
	}
	t.rows = rows
	return nil
}

// Write serialises the current in-memory rows to the table's path.
// Atomicity against concurrent writers is the enclosing Store lock's
// responsibility, not this method's; Write itself writes to a temp file
// in the same directory and renames over the target so a reader never
// observes a half-written file.
func (t *Table[C]) Write() error {
	data, err := json.Marshal(t.rows)
	if err != nil {
		return errs.Serialize("table.write "+t.name, err)
	}
	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errs.IO("table.write "+t.name, err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return errs.IO("table.write "+t.name, err)
	}
	return nil
}

// PkAbsent verifies no row in the table already carries row's primary
// key, returning Conflict(PrimaryKey) otherwise.
func (t *Table[C]) PkAbsent(row C) error {
	pk := row.PK()
	for _, r := range t.rows {
		if r.PK().Equal(pk) {
			return errs.Conflict(errs.VariantPrimaryKey, "primary key already present in "+t.name)
		}
	}
	return nil
}

// Lookup returns the first row whose PK equals key, and whether one was found.
func (t *Table[C]) Lookup(key types.Key) (C, bool) {
	for _, r := range t.rows {
		if r.PK().Equal(key) {
			return r, true
		}
	}
	var zero C
	return zero, false
}

// TryLookup is Lookup but fails with Conflict(PrimaryKey, "missing") on a miss,
// matching the source's try_lookup naming (it is a lookup that is
// expected to succeed; failure is the caller's bug, not routine control flow).
func (t *Table[C]) TryLookup(key types.Key) (C, error) {
	row, ok := t.Lookup(key)
	if !ok {
		return row, errs.Conflict(errs.VariantPrimaryKey, "missing")
	}
	return row, nil
}

// ReplaceAt overwrites the row at the position matching key's PK,
// reporting whether a row was found and replaced.
func (t *Table[C]) ReplaceAt(key types.Key, row C) bool {
	for i := range t.rows {
		if t.rows[i].PK().Equal(key) {
			t.rows[i] = row
			return true
		}
	}
	return false
}

// RemoveWhere deletes every row for which keep returns false, preserving
// the relative order of the rows that remain.
func (t *Table[C]) RemoveWhere(keep func(C) bool) {
	out := t.rows[:0:0]
	for _, r := range t.rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	t.rows = out
}

// KeyIssue groups rows sharing a problematic key: a duplicated primary
// key, or a foreign key absent from its parent table.
type KeyIssue[C any] struct {
	Value types.Key
	Rows  []C
}

// FindPkIssues groups rows (after filtering by subset) whose primary key
// is shared by two or more rows, sorted by key for stable output across
// re-runs given stable input.
func (t *Table[C]) FindPkIssues(subset func(C) bool) []KeyIssue[C] {
	var filtered []C
	for _, r := range t.rows {
		if subset == nil || subset(r) {
			filtered = append(filtered, r)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].PK().Less(filtered[j].PK())
	})

	var issues []KeyIssue[C]
	i := 0
	for i < len(filtered) {
		j := i + 1
		for j < len(filtered) && filtered[j].PK().Equal(filtered[i].PK()) {
			j++
		}
		if j-i > 1 {
			rows := make([]C, j-i)
			copy(rows, filtered[i:j])
			issues = append(issues, KeyIssue[C]{Value: filtered[i].PK(), Rows: rows})
		}
		i = j
	}
	return issues
}

// FindFkIssues groups rows (after filtering by subset) whose fk
// projection does not appear in parentKeys, sorted by the projected key.
func (t *Table[C]) FindFkIssues(subset func(C) bool, parentKeys []types.Key, fk func(C) types.Key) []KeyIssue[C] {
	present := func(k types.Key) bool {
		for _, pk := range parentKeys {
			if pk.Equal(k) {
				return true
			}
		}
		return false
	}

	var filtered []C
	for _, r := range t.rows {
		if subset != nil && !subset(r) {
			continue
		}
		if !present(fk(r)) {
			filtered = append(filtered, r)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return fk(filtered[i]).Less(fk(filtered[j]))
	})

	var issues []KeyIssue[C]
	i := 0
	for i < len(filtered) {
		j := i + 1
		for j < len(filtered) && fk(filtered[j]).Equal(fk(filtered[i])) {
			j++
		}
		rows := make([]C, j-i)
		copy(rows, filtered[i:j])
		issues = append(issues, KeyIssue[C]{Value: fk(filtered[i]), Rows: rows})
		i = j
	}
	return issues
}
