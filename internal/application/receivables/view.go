package receivables

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ledgerlens/backend/internal/domain/aging"
	"github.com/ledgerlens/backend/internal/domain/dataset"
)

// equalityEpsilon is the tolerance for numeric equality filters. Balances
// come back from the wire as printed decimals, so exact float comparison
// would reject values that round-trip imperfectly.
const equalityEpsilon = 0.01

// defaultPageSize matches the table widget's initial page length.
const defaultPageSize = 25

// SortDirection orders a sorted view.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// ColumnSelector addresses either a real column by index or the synthetic
// days-overdue pseudo-column, which exists only as classifier output and has
// no backing cell.
type ColumnSelector struct {
	Index       int
	DaysOverdue bool
}

// Column selects a real column.
func Column(idx int) ColumnSelector {
	return ColumnSelector{Index: idx}
}

// DaysOverdueColumn selects the synthetic days-overdue pseudo-column.
func DaysOverdueColumn() ColumnSelector {
	return ColumnSelector{Index: -1, DaysOverdue: true}
}

// PageResult is one page of a filtered, sorted view.
type PageResult struct {
	Rows       []dataset.Row `json:"rows"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalRows  int           `json:"total_rows"`
	TotalPages int           `json:"total_pages"`
}

// View is the filter/sort/page engine for one scope: either the flat dataset
// or one group's row subset. Every scope owns its whole state (filters, sort,
// page) so a drill-in table never disturbs the flat table behind it.
// State transitions are pure over the underlying dataset and replayable.
type View struct {
	data    dataset.Dataset
	schema  dataset.Schema
	today   time.Time
	scope   []int // row indexes in scope; nil means every row
	filters map[ColumnSelector]string
	sortCol ColumnSelector
	sortDir SortDirection
	sorted  bool
	page    int
	pageSize int
}

func newView(d dataset.Dataset, schema dataset.Schema, today time.Time, scope []int) *View {
	return &View{
		data:     d,
		schema:   schema,
		today:    today,
		scope:    scope,
		filters:  make(map[ColumnSelector]string),
		page:     1,
		pageSize: defaultPageSize,
	}
}

// NewView creates the flat-scope engine over a dataset.
func NewView(d dataset.Dataset, schema dataset.Schema, today time.Time) *View {
	return newView(d, schema, today, nil)
}

// ApplyFilter sets (or, with an empty value, clears) the filter for a
// column and resets to the first page.
func (v *View) ApplyFilter(col ColumnSelector, value string) {
	if value == "" {
		delete(v.filters, col)
	} else {
		v.filters[col] = value
	}
	v.page = 1
}

// ApplySort sets the sort column and direction and resets to the first page.
func (v *View) ApplySort(col ColumnSelector, dir SortDirection) {
	v.sortCol = col
	v.sortDir = dir
	v.sorted = true
	v.page = 1
}

// SetPageSize changes the page length and resets to the first page.
func (v *View) SetPageSize(n int) {
	if n > 0 {
		v.pageSize = n
	}
	v.page = 1
}

// SetPage moves to a 1-based page index.
func (v *View) SetPage(n int) {
	if n >= 1 {
		v.page = n
	}
}

// Rows returns the full filtered and sorted row sequence for the scope.
func (v *View) Rows() []dataset.Row {
	idxs := v.visible()
	rows := make([]dataset.Row, len(idxs))
	for i, ri := range idxs {
		rows[i] = v.data.Rows[ri]
	}
	return rows
}

// Page returns the current page of the filtered, sorted sequence.
func (v *View) Page() PageResult {
	rows := v.Rows()
	total := len(rows)
	totalPages := total / v.pageSize
	if total%v.pageSize > 0 {
		totalPages++
	}

	start := (v.page - 1) * v.pageSize
	if start > total {
		start = total
	}
	end := start + v.pageSize
	if end > total {
		end = total
	}

	return PageResult{
		Rows:       rows[start:end],
		Page:       v.page,
		PageSize:   v.pageSize,
		TotalRows:  total,
		TotalPages: totalPages,
	}
}

// visible computes the filtered, sorted scope indexes.
func (v *View) visible() []int {
	idxs := make([]int, 0)
	if v.scope == nil {
		for i := range v.data.Rows {
			if v.matches(v.data.Rows[i]) {
				idxs = append(idxs, i)
			}
		}
	} else {
		for _, i := range v.scope {
			if i >= 0 && i < len(v.data.Rows) && v.matches(v.data.Rows[i]) {
				idxs = append(idxs, i)
			}
		}
	}

	if v.sorted {
		v.sortIndexes(idxs)
	}
	return idxs
}

func (v *View) matches(row dataset.Row) bool {
	for col, value := range v.filters {
		if !v.matchesColumn(row, col, value) {
			return false
		}
	}
	return true
}

// matchesColumn applies the predicate shape selected by the column's role.
func (v *View) matchesColumn(row dataset.Row, col ColumnSelector, value string) bool {
	if col.DaysOverdue {
		days, ok := v.daysOverdue(row)
		if !ok {
			return false
		}
		op, operand, numeric := parseComparison(value)
		if !numeric {
			return false
		}
		return compareNumeric(float64(days), op, operand)
	}

	cell := row.Cell(col.Index)
	role, hasRole := v.schema.RoleAt(col.Index)
	if hasRole {
		switch role {
		case dataset.RoleOpeningBalance, dataset.RoleClosingBalance:
			op, operand, numeric := parseComparison(value)
			if !numeric {
				return containsFold(cell, value)
			}
			return compareNumeric(dataset.ParseAmount(cell), op, operand)
		case dataset.RoleLedger, dataset.RoleSalesperson, dataset.RoleDirection:
			// Dropdown-backed columns filter by exact selection.
			return strings.ToLower(cell) == strings.ToLower(value)
		}
	}
	return containsFold(cell, value)
}

func (v *View) daysOverdue(row dataset.Row) (int, bool) {
	idx := v.schema.Index(dataset.RoleDueDate)
	if idx < 0 {
		return 0, false
	}
	return aging.DaysOverdue(row.Cell(idx), v.today)
}

// sortIndexes stably sorts scope indexes by the active sort column.
//
// Rows with no days-overdue value (not overdue, or unparseable date) sort
// after every valued row in both directions; only valued rows flip with the
// direction. Date columns flip wholesale, placing unparseable cells last
// ascending and first descending.
func (v *View) sortIndexes(idxs []int) {
	desc := v.sortDir == SortDesc

	if v.sortCol.DaysOverdue {
		sort.SliceStable(idxs, func(i, j int) bool {
			a, aok := v.daysOverdue(v.data.Rows[idxs[i]])
			b, bok := v.daysOverdue(v.data.Rows[idxs[j]])
			switch {
			case aok && bok:
				if desc {
					return a > b
				}
				return a < b
			case aok:
				return true
			default:
				return false
			}
		})
		return
	}

	role, hasRole := v.schema.RoleAt(v.sortCol.Index)
	isDate := hasRole && (role == dataset.RoleDueDate || role == dataset.RoleBillDate)

	sort.SliceStable(idxs, func(i, j int) bool {
		a := v.data.Rows[idxs[i]].Cell(v.sortCol.Index)
		b := v.data.Rows[idxs[j]].Cell(v.sortCol.Index)

		var cmp int
		if isDate {
			cmp = compareDates(a, b)
		} else {
			cmp = compareCells(a, b)
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
}

// compareDates orders parsed dates ascending with unparseable cells at the
// end.
func compareDates(a, b string) int {
	at, aok := aging.ParseDueDate(a)
	bt, bok := aging.ParseDueDate(b)
	switch {
	case aok && bok:
		if at.Before(bt) {
			return -1
		}
		if at.After(bt) {
			return 1
		}
		return 0
	case aok:
		return -1
	case bok:
		return 1
	default:
		return 0
	}
}

// compareCells orders numerically when both sides parse as numbers, else as
// case-insensitive strings.
func compareCells(a, b string) int {
	av, aerr := strconv.ParseFloat(strings.TrimSpace(a), 64)
	bv, berr := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if aerr == nil && berr == nil {
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

// parseComparison splits a filter like ">=1000" into operator and operand.
// numeric is false when the remainder does not parse as a number, which
// sends the caller down the substring-fallback path.
func parseComparison(s string) (op string, operand float64, numeric bool) {
	s = strings.TrimSpace(s)
	op = "="
	for _, candidate := range []string{">=", "<=", ">", "<", "="} {
		if strings.HasPrefix(s, candidate) {
			op = candidate
			s = strings.TrimSpace(strings.TrimPrefix(s, candidate))
			break
		}
	}
	operand, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", 0, false
	}
	return op, operand, true
}

func compareNumeric(value float64, op string, operand float64) bool {
	switch op {
	case ">":
		return value > operand
	case ">=":
		return value >= operand
	case "<":
		return value < operand
	case "<=":
		return value <= operand
	default:
		return math.Abs(value-operand) < equalityEpsilon
	}
}

func containsFold(cell, value string) bool {
	return strings.Contains(strings.ToLower(cell), strings.ToLower(value))
}
