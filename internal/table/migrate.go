package table

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/khvorov45/hcwstudyapp/internal/errs"
)

// ReadLegacy loads the previous-slot JSON file for name under dir into
// the legacy row type L. It is a free function rather than a Table
// method because the previous-slot shape is a distinct type parameter
// from the table's own current-slot type C (per the design notes: "the
// previous type introduced at the migration boundary as a distinct
// legacy-row module").
func ReadLegacy[L any](dir, name string) ([]L, error) {
	path := filepath.Join(dir, name+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.IO("table.readLegacy "+name, err)
	}
	var rows []L
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, errs.Parse("table.readLegacy "+name, err)
	}
	return rows, nil
}

// Convert maps every legacy row through convert, replacing t's in-memory
// rows with the result. The caller is responsible for calling Write
// afterwards, once the migration driver has decided it is safe to create
// the current/ directory (spec §4.3: directory creation is deferred
// until immediately before the first write).
func Convert[L any, C Keyed](t *Table[C], legacyRows []L, convert func(L) C) {
	rows := make([]C, len(legacyRows))
	for i, l := range legacyRows {
		rows[i] = convert(l)
	}
	t.SetRows(rows)
}

// Identity is the converter for row types whose shape did not change
// across this schema generation: the legacy and current types coincide.
func Identity[C Keyed](row C) C { return row }
