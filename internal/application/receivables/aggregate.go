// Package receivables orchestrates the receivables engine: fetching and
// caching result sets from the external accounting system, and answering
// aggregate and tabular queries over the normalized dataset.
package receivables

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerlens/backend/internal/domain/aging"
	"github.com/ledgerlens/backend/internal/domain/dataset"
)

// Unassigned is the salesperson value attributed to rows whose salesperson
// cell is empty or whose dataset has no salesperson column at all.
const Unassigned = "Unassigned"

type inclusionMode int

const (
	inclusionAll inclusionMode = iota
	inclusionNone
	inclusionOnly
)

// Inclusion is a tagged selection set: everything, nothing, or an explicit
// subset. "No filter" and "empty selection" are distinct: deselecting every
// salesperson must show zero rows, not all of them, so the type carries the
// tag explicitly instead of overloading an empty collection.
type Inclusion struct {
	mode inclusionMode
	only map[string]struct{}
}

// IncludeAll selects everything (no filtering).
func IncludeAll() Inclusion {
	return Inclusion{mode: inclusionAll}
}

// IncludeNone selects nothing; every row is excluded.
func IncludeNone() Inclusion {
	return Inclusion{mode: inclusionNone}
}

// IncludeOnly selects exactly the given values. An empty list is an empty
// selection, which is IncludeNone, never IncludeAll.
func IncludeOnly(values []string) Inclusion {
	if len(values) == 0 {
		return IncludeNone()
	}
	only := make(map[string]struct{}, len(values))
	for _, v := range values {
		only[v] = struct{}{}
	}
	return Inclusion{mode: inclusionOnly, only: only}
}

// Allows reports whether the value passes the selection.
func (i Inclusion) Allows(v string) bool {
	switch i.mode {
	case inclusionNone:
		return false
	case inclusionOnly:
		_, ok := i.only[v]
		return ok
	default:
		return true
	}
}

// Criteria is the active filter state shared by every aggregate query.
// Filters apply in a fixed order, all conjunctive: the salesperson inclusion
// set, then the single-salesperson drill-in, then the selected aging bucket.
type Criteria struct {
	Salespersons Inclusion
	Salesperson  string
	Bucket       string
}

// GroupRole selects the grouping column for GroupBy.
type GroupRole string

const (
	GroupByLedger      GroupRole = "ledger"
	GroupBySalesperson GroupRole = "salesperson"
)

// GroupAggregate is the total for one distinct value of the grouping column,
// with the contributing rows. Recomputed per query, never persisted.
type GroupAggregate struct {
	Key          string          `json:"key"`
	TotalBalance decimal.Decimal `json:"total_balance"`
	Rows         []dataset.Row   `json:"rows"`
}

// BucketTotal is the magnitude classified into one aging bucket.
type BucketTotal struct {
	Label string          `json:"label"`
	Value decimal.Decimal `json:"value"`
}

// Summary is the scalar roll-up of the filtered dataset. Balance, WithinDue
// and OverDue are signed nets (debit subtracts, credit adds); TotalDebit and
// TotalCredit are magnitudes.
type Summary struct {
	Balance        decimal.Decimal `json:"balance"`
	TotalDebit     decimal.Decimal `json:"total_debit"`
	TotalCredit    decimal.Decimal `json:"total_credit"`
	WithinDue      decimal.Decimal `json:"within_due"`
	OverDue        decimal.Decimal `json:"over_due"`
	OverDuePercent float64         `json:"over_due_percent"`
}

// Aggregator answers grouped and scalar queries over one normalized dataset.
// It holds the dataset's resolved schema so no query rescans the columns,
// and never mutates the dataset it was built over.
type Aggregator struct {
	data    dataset.Dataset
	schema  dataset.Schema
	buckets aging.BucketConfig
	today   time.Time
}

// NewAggregator builds an aggregator for the dataset. today anchors the
// days-overdue computation for the whole query, so one request never
// straddles a midnight boundary.
func NewAggregator(d dataset.Dataset, schema dataset.Schema, buckets aging.BucketConfig, today time.Time) *Aggregator {
	return &Aggregator{data: d, schema: schema, buckets: buckets, today: today}
}

// salesperson returns the row's salesperson attribution.
func (a *Aggregator) salesperson(row dataset.Row) string {
	idx := a.schema.Index(dataset.RoleSalesperson)
	if idx < 0 {
		return Unassigned
	}
	if v := row.Cell(idx); v != "" {
		return v
	}
	return Unassigned
}

// bucketOf classifies the row by its due date. Datasets without a due-date
// column degrade to "nothing is overdue": every row lands in bucket zero.
func (a *Aggregator) bucketOf(row dataset.Row) string {
	days, ok := a.daysOverdue(row)
	return a.buckets.BucketFor(days, ok)
}

func (a *Aggregator) daysOverdue(row dataset.Row) (int, bool) {
	idx := a.schema.Index(dataset.RoleDueDate)
	if idx < 0 {
		return 0, false
	}
	return aging.DaysOverdue(row.Cell(idx), a.today)
}

// signedValue returns the row's closing balance in signed form: negative for
// debit, positive for credit. Normalized datasets carry magnitude plus
// direction; a dataset that skipped normalization still works off the raw
// signed cell.
func (a *Aggregator) signedValue(row dataset.Row) float64 {
	bal := a.schema.Index(dataset.RoleClosingBalance)
	if bal < 0 {
		return 0
	}
	v := dataset.ParseAmount(row.Cell(bal))
	dir := a.schema.Index(dataset.RoleDirection)
	if dir < 0 {
		return v
	}
	if row.Cell(dir) == dataset.DirectionDebit {
		return -math.Abs(v)
	}
	return math.Abs(v)
}

func (a *Aggregator) magnitude(row dataset.Row) float64 {
	return math.Abs(a.signedValue(row))
}

// filtered returns the rows passing the criteria, in dataset order.
func (a *Aggregator) filtered(c Criteria) []dataset.Row {
	rows := make([]dataset.Row, 0, len(a.data.Rows))
	for _, row := range a.data.Rows {
		if !c.Salespersons.Allows(a.salesperson(row)) {
			continue
		}
		if c.Salesperson != "" && a.salesperson(row) != c.Salesperson {
			continue
		}
		if c.Bucket != "" && a.bucketOf(row) != c.Bucket {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// GroupBy totals the filtered rows per distinct value of the grouping
// column, sorted descending by total balance magnitude.
func (a *Aggregator) GroupBy(role GroupRole, c Criteria) []GroupAggregate {
	keyOf := a.salesperson
	if role == GroupByLedger {
		idx := a.schema.Index(dataset.RoleLedger)
		keyOf = func(row dataset.Row) string { return row.Cell(idx) }
	}

	order := make([]string, 0)
	groups := make(map[string]*GroupAggregate)
	for _, row := range a.filtered(c) {
		key := keyOf(row)
		g, ok := groups[key]
		if !ok {
			g = &GroupAggregate{Key: key, TotalBalance: decimal.Zero}
			groups[key] = g
			order = append(order, key)
		}
		g.TotalBalance = g.TotalBalance.Add(decimal.NewFromFloat(a.magnitude(row)))
		g.Rows = append(g.Rows, row)
	}

	out := make([]GroupAggregate, 0, len(order))
	for _, key := range order {
		out = append(out, *groups[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalBalance.GreaterThan(out[j].TotalBalance)
	})
	return out
}

// AgingTotals sums the balance magnitude per configured bucket, in
// configured order. Empty buckets still emit a zero entry; zero-magnitude
// rows never contribute.
func (a *Aggregator) AgingTotals(c Criteria) []BucketTotal {
	totals := make([]BucketTotal, len(a.buckets))
	index := make(map[string]int, len(a.buckets))
	for i, b := range a.buckets {
		totals[i] = BucketTotal{Label: b.Label, Value: decimal.Zero}
		index[b.Label] = i
	}

	for _, row := range a.filtered(c) {
		mag := a.magnitude(row)
		if mag <= 0 {
			continue
		}
		if i, ok := index[a.bucketOf(row)]; ok {
			totals[i].Value = totals[i].Value.Add(decimal.NewFromFloat(mag))
		}
	}
	return totals
}

// Summary rolls the filtered rows up into the headline numbers. The overdue
// percentage is the overdue share of the debit magnitude; a dataset with no
// debit at all reports zero rather than dividing by it.
func (a *Aggregator) Summary(c Criteria) Summary {
	s := Summary{
		Balance:     decimal.Zero,
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
		WithinDue:   decimal.Zero,
		OverDue:     decimal.Zero,
	}
	overdueDebit := decimal.Zero

	for _, row := range a.filtered(c) {
		signed := decimal.NewFromFloat(a.signedValue(row))
		s.Balance = s.Balance.Add(signed)

		if signed.IsNegative() {
			s.TotalDebit = s.TotalDebit.Add(signed.Neg())
		} else {
			s.TotalCredit = s.TotalCredit.Add(signed)
		}

		if _, overdue := a.daysOverdue(row); overdue {
			s.OverDue = s.OverDue.Add(signed)
			if signed.IsNegative() {
				overdueDebit = overdueDebit.Add(signed.Neg())
			}
		} else {
			s.WithinDue = s.WithinDue.Add(signed)
		}
	}

	if s.TotalDebit.IsPositive() {
		ratio, _ := overdueDebit.Div(s.TotalDebit).Mul(decimal.NewFromInt(100)).Float64()
		s.OverDuePercent = ratio
	}
	return s
}
