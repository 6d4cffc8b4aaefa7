// Package aging classifies receivable rows by how overdue they are: it turns
// a free-text due-date cell into a days-overdue count and buckets that count
// against an ordered, configurable boundary list.
package aging

import (
	"strings"
	"time"
)

// dueDateLayouts are the two textual conventions the external system emits:
// day-month-abbreviation-year (two or four digit) and the compact numeric
// form used by exports.
var dueDateLayouts = []string{
	"2-Jan-2006",
	"2-Jan-06",
	"20060102",
}

// ParseDueDate parses a due-date cell. Any shape outside the known layouts
// reports ok=false.
func ParseDueDate(cell string) (time.Time, bool) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DaysOverdue returns the whole days elapsed since the due date, measured
// midnight to midnight. It reports ok=false both for unparseable cells and
// for bills due today or in the future; "not overdue" and "unknown" flow
// through the same downstream path.
func DaysOverdue(cell string, today time.Time) (int, bool) {
	due, ok := ParseDueDate(cell)
	if !ok {
		return 0, false
	}
	days := int(midnight(today).Sub(midnight(due)).Hours() / 24)
	if days <= 0 {
		return 0, false
	}
	return days, true
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
