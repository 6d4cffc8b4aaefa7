package dataset

import (
	"math"
	"strconv"
	"strings"
)

// Direction labels follow the accounting display convention of the external
// system: a negative closing balance is a debit (money owed to us), a
// positive one a credit.
const (
	DirectionDebit  = "Dr"
	DirectionCredit = "Cr"
)

// Normalize derives the signed-magnitude/direction representation from the
// closing-balance column: each balance cell is replaced with its absolute
// value and a synthetic Dr/Cr cell is spliced in immediately after it, with a
// matching descriptor inserted once for the whole dataset.
//
// Normalize is a no-op in two cases: the dataset already carries a direction
// column (normalizing twice must not splice twice), or no closing-balance
// column resolves at all. In the pass-through case no synthetic column is
// added and downstream consumers must check for the direction role's absence.
func Normalize(d Dataset) Dataset {
	schema := ResolveSchema(d.Columns)
	if schema.Has(RoleDirection) {
		return d
	}
	bal := schema.Index(RoleClosingBalance)
	if bal < 0 {
		return d
	}

	out := Dataset{
		Columns: spliceColumn(d.Columns, bal+1, ColumnDescriptor{
			Name:  "DrCr",
			Alias: "Dr/Cr",
			Type:  "VarChar",
		}),
		Rows: make([]Row, len(d.Rows)),
	}

	for i, row := range d.Rows {
		value := ParseAmount(row.Cell(bal))
		direction := DirectionCredit
		if value < 0 {
			direction = DirectionDebit
		}
		nr := make(Row, 0, len(row)+1)
		nr = append(nr, row[:bal]...)
		nr = append(nr, FormatAmount(math.Abs(value)), direction)
		if bal+1 <= len(row) {
			nr = append(nr, row[bal+1:]...)
		}
		out.Rows[i] = nr
	}
	return out
}

// ParseAmount parses a cell as a float, tolerating surrounding whitespace and
// thousands separators. Non-numeric input parses to 0; it never errors, so a
// garbage balance cell degrades to a zero-magnitude credit row.
func ParseAmount(cell string) float64 {
	s := strings.TrimSpace(cell)
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// FormatAmount renders a magnitude back to cell text without a forced number
// of decimals, matching how the upstream system prints balances.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func spliceColumn(cols []ColumnDescriptor, at int, c ColumnDescriptor) []ColumnDescriptor {
	out := make([]ColumnDescriptor, 0, len(cols)+1)
	out = append(out, cols[:at]...)
	out = append(out, c)
	out = append(out, cols[at:]...)
	return out
}
