// Package dataset defines the tabular model returned by the external
// accounting system: an ordered list of free-text column descriptors and
// index-aligned rows of untyped cells. Semantic meaning is inferred at read
// time by the schema resolver; cells stay text until a consumer parses them.
package dataset

// ColumnDescriptor describes one column of a result set. The external system
// exposes no stable column identifiers, only display names and aliases, so
// columns are addressed by keyword matching over Name and Alias.
type ColumnDescriptor struct {
	Name  string `json:"name"`
	Alias string `json:"alias"`
	Type  string `json:"type"`
}

// Row is an ordered sequence of cell values, index-aligned to the column
// descriptors of its dataset.
type Row []string

// Dataset is one flat result set. Once produced by the protocol adapter and
// the normalizer it is treated as immutable; later stages operate on derived
// views and never mutate a cached dataset in place.
type Dataset struct {
	Columns []ColumnDescriptor `json:"columns"`
	Rows    []Row              `json:"rows"`
}

// Aligned reports whether every row has exactly one cell per column.
func (d Dataset) Aligned() bool {
	for _, r := range d.Rows {
		if len(r) != len(d.Columns) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy. Callers that need to derive a mutated dataset
// must clone first; the originals handed out by the cache are shared.
func (d Dataset) Clone() Dataset {
	out := Dataset{
		Columns: make([]ColumnDescriptor, len(d.Columns)),
		Rows:    make([]Row, len(d.Rows)),
	}
	copy(out.Columns, d.Columns)
	for i, r := range d.Rows {
		out.Rows[i] = append(Row(nil), r...)
	}
	return out
}

// Cell returns the cell at the given column index, or "" when the index is
// out of range. Absent columns resolve to -1, so every consumer funnels
// through this bounds check instead of indexing rows directly.
func (r Row) Cell(idx int) string {
	if idx < 0 || idx >= len(r) {
		return ""
	}
	return r[idx]
}
