package receivables

import (
	"time"

	"github.com/ledgerlens/backend/internal/domain/dataset"
)

// ViewSet hands out the flat view and one independent view per expanded
// group. All views share the same engine; they differ only in which row
// subset they cover and which state slot they read and write. Nothing is
// shared between the flat view's filters and any group's.
type ViewSet struct {
	data   dataset.Dataset
	schema dataset.Schema
	today  time.Time
	flat   *View
	groups map[string]*View
}

// NewViewSet creates a view set over one normalized dataset.
func NewViewSet(d dataset.Dataset, schema dataset.Schema, today time.Time) *ViewSet {
	return &ViewSet{
		data:   d,
		schema: schema,
		today:  today,
		flat:   NewView(d, schema, today),
		groups: make(map[string]*View),
	}
}

// Flat returns the whole-dataset view.
func (s *ViewSet) Flat() *View {
	return s.flat
}

// Group returns the view for one group, creating it scoped to the given row
// indexes on first use. Subsequent calls for the same key keep the group's
// accumulated filter/sort/page state; the scope argument is only consulted
// on creation.
func (s *ViewSet) Group(key string, scope []int) *View {
	if v, ok := s.groups[key]; ok {
		return v
	}
	v := newView(s.data, s.schema, s.today, scope)
	s.groups[key] = v
	return v
}

// DropGroup discards a group's state, e.g. when its detail table collapses.
func (s *ViewSet) DropGroup(key string) {
	delete(s.groups, key)
}
