package dataset

import "strings"

// ColumnRole is a semantic role a column can play in a receivables result
// set. Roles are resolved against descriptors by keyword matching, never by
// fixed position (with one documented due-date exception, see ResolveSchema).
type ColumnRole int

const (
	RoleLedger ColumnRole = iota
	RoleSalesperson
	RoleBillName
	RoleBillDate
	RoleDueDate
	RoleOpeningBalance
	RoleClosingBalance
	RoleDirection
)

// String returns the role name for logging.
func (r ColumnRole) String() string {
	switch r {
	case RoleLedger:
		return "ledger"
	case RoleSalesperson:
		return "salesperson"
	case RoleBillName:
		return "bill_name"
	case RoleBillDate:
		return "bill_date"
	case RoleDueDate:
		return "due_date"
	case RoleOpeningBalance:
		return "opening_balance"
	case RoleClosingBalance:
		return "closing_balance"
	case RoleDirection:
		return "direction"
	}
	return "unknown"
}

// KeywordTable maps each role to the substrings that identify it. Matching is
// case-insensitive containment over both Name and Alias, first column wins.
type KeywordTable map[ColumnRole][]string

// DefaultKeywords covers the column names the upstream projection is known to
// emit (LedgerName, SalesPerson, BillName, BillDate, DueDate, OpeningBalance,
// ClosingBalance) plus the aliases seen from older report formats.
func DefaultKeywords() KeywordTable {
	return KeywordTable{
		RoleLedger:         {"ledger", "party", "customer"},
		RoleSalesperson:    {"sales"},
		RoleBillName:       {"billname", "bill name", "bill no", "bill ref"},
		RoleBillDate:       {"billdate", "bill date"},
		RoleDueDate:        {"due"},
		RoleOpeningBalance: {"opening"},
		RoleClosingBalance: {"closing", "pending", "outstanding"},
		RoleDirection:      {"drcr", "dr/cr"},
	}
}

// dueDateFallbackIndex is the position DueDate occupies in the fixed upstream
// projection order. It is only trusted when keyword resolution fails and the
// column at that position at least mentions a date. The upstream shape is not
// otherwise validated, so this stays a fallback, not a primary rule.
const dueDateFallbackIndex = 4

// Schema is the result of resolving every role against one dataset's
// columns. It is computed once per dataset and carried alongside it so that
// consumers do not rescan the descriptor list on every cell read.
type Schema struct {
	indexes map[ColumnRole]int
}

// ResolveSchema resolves all roles with the default keyword table.
func ResolveSchema(columns []ColumnDescriptor) Schema {
	return ResolveSchemaWith(columns, DefaultKeywords())
}

// ResolveSchemaWith resolves all roles with a custom keyword table. Absent
// roles resolve to -1; that is a valid state, never an error, and consumers
// must degrade (for example, no due-date column means no row is overdue).
func ResolveSchemaWith(columns []ColumnDescriptor, table KeywordTable) Schema {
	s := Schema{indexes: make(map[ColumnRole]int, len(table))}
	for role, keywords := range table {
		s.indexes[role] = ResolveColumn(columns, keywords)
	}
	if s.indexes[RoleDueDate] < 0 && dueDateFallbackIndex < len(columns) {
		c := columns[dueDateFallbackIndex]
		if containsFold(c.Name, "date") || containsFold(c.Alias, "date") {
			s.indexes[RoleDueDate] = dueDateFallbackIndex
		}
	}
	return s
}

// ResolveColumn returns the index of the first column whose name or alias
// contains any of the keywords, or -1 when no column matches. It never errors.
func ResolveColumn(columns []ColumnDescriptor, keywords []string) int {
	for i, c := range columns {
		for _, kw := range keywords {
			if containsFold(c.Name, kw) || containsFold(c.Alias, kw) {
				return i
			}
		}
	}
	return -1
}

// Index returns the column index for a role, or -1 when the role is absent.
func (s Schema) Index(role ColumnRole) int {
	if s.indexes == nil {
		return -1
	}
	if idx, ok := s.indexes[role]; ok {
		return idx
	}
	return -1
}

// Has reports whether the role resolved to a column.
func (s Schema) Has(role ColumnRole) bool {
	return s.Index(role) >= 0
}

// rolePrecedence fixes the order RoleAt scans roles in. Two roles can resolve
// to the same index (the due-date positional fallback can land on a column
// another role already matched); the earlier role in this list wins, every
// run.
var rolePrecedence = []ColumnRole{
	RoleLedger,
	RoleSalesperson,
	RoleBillName,
	RoleBillDate,
	RoleDueDate,
	RoleOpeningBalance,
	RoleClosingBalance,
	RoleDirection,
}

// RoleAt returns the role resolved to the given column index, or false when
// the index carries no recognized role. When several roles share the index,
// the first by rolePrecedence is returned.
func (s Schema) RoleAt(idx int) (ColumnRole, bool) {
	if idx < 0 {
		return 0, false
	}
	for _, role := range rolePrecedence {
		if i, ok := s.indexes[role]; ok && i == idx {
			return role, true
		}
	}
	return 0, false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
