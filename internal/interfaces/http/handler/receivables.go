package handler

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ledgerlens/backend/internal/application/receivables"
	"github.com/ledgerlens/backend/internal/domain/dataset"
	"github.com/ledgerlens/backend/internal/infrastructure/tally"
	"github.com/ledgerlens/backend/internal/interfaces/http/dto"
)

// ReceivablesHandler serves the outstanding-bills API: the tabular view with
// filtering, sorting and pagination, plus the grouped, bucketed and
// summarized aggregates over the same dataset.
type ReceivablesHandler struct {
	BaseHandler
	svc    *receivables.Service
	logger *zap.Logger
	now    func() time.Time
}

// ReceivablesHandlerOption is a functional option for ReceivablesHandler
type ReceivablesHandlerOption func(*ReceivablesHandler)

// WithClock overrides the time source, for tests
func WithClock(now func() time.Time) ReceivablesHandlerOption {
	return func(h *ReceivablesHandler) { h.now = now }
}

// NewReceivablesHandler creates a new ReceivablesHandler
func NewReceivablesHandler(svc *receivables.Service, logger *zap.Logger, opts ...ReceivablesHandlerOption) *ReceivablesHandler {
	h := &ReceivablesHandler{
		svc:    svc,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers the receivables routes
func (h *ReceivablesHandler) RegisterRoutes(rg *gin.RouterGroup) {
	r := rg.Group("/receivables")
	{
		r.GET("", h.Rows)
		r.POST("/view", h.View)
		r.GET("/summary", h.Summary)
		r.GET("/groups/:role", h.Groups)
		r.GET("/aging", h.Aging)
	}
}

// load fetches the dataset for the query, writing the error response itself
// on failure.
func (h *ReceivablesHandler) load(c *gin.Context, q dto.ReceivablesQuery) (receivables.Result, bool) {
	company := tally.Company{LocationID: q.LocationID, GUID: q.CompanyGUID}
	res, err := h.svc.Fetch(c.Request.Context(), company, q.Formula, q.ForceRefresh)
	if err != nil {
		h.HandleFetchError(c, err)
		return receivables.Result{}, false
	}
	return res, true
}

// parseSelection reads the salespersons parameter. An absent parameter means
// no restriction; a present-but-empty one means an empty selection, which
// excludes every row.
func parseSelection(c *gin.Context) receivables.Inclusion {
	raw, ok := c.GetQuery("salespersons")
	if !ok {
		return receivables.IncludeAll()
	}
	if raw == "" {
		return receivables.IncludeOnly(nil)
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return receivables.IncludeOnly(parts)
}

func criteriaFrom(c *gin.Context, q dto.SelectionQuery) receivables.Criteria {
	return receivables.Criteria{
		Salespersons: parseSelection(c),
		Salesperson:  q.Salesperson,
		Bucket:       q.Bucket,
	}
}

// selector converts the column/days-overdue pair of a request into a view
// column selector.
func selector(col *int, daysOverdue bool) (receivables.ColumnSelector, bool) {
	if daysOverdue {
		return receivables.DaysOverdueColumn(), true
	}
	if col != nil {
		return receivables.Column(*col), true
	}
	return receivables.ColumnSelector{}, false
}

func columnsResponse(cols []dataset.ColumnDescriptor) []dto.ColumnResponse {
	out := make([]dto.ColumnResponse, len(cols))
	for i, col := range cols {
		out[i] = dto.ColumnResponse{Name: col.Name, Alias: col.Alias, Type: col.Type}
	}
	return out
}

func rowsResponse(rows []dataset.Row) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = []string(r)
	}
	return out
}

// Rows returns one page of the flat tabular view, optionally filtered and
// sorted by a single column.
func (h *ReceivablesHandler) Rows(c *gin.Context) {
	var q dto.RowsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	res, ok := h.load(c, q.ReceivablesQuery)
	if !ok {
		return
	}

	view := receivables.NewView(res.Data, res.Schema, h.now())
	if q.FilterValue != "" {
		col, ok := selector(q.FilterCol, q.FilterDays)
		if !ok {
			h.BadRequest(c, "filter_value requires filter_column or filter_days_overdue")
			return
		}
		view.ApplyFilter(col, q.FilterValue)
	}
	if col, ok := selector(q.SortColumn, q.SortDays); ok {
		view.ApplySort(col, receivables.SortDirection(q.SortDir))
	}
	view.SetPageSize(q.PageSize)
	view.SetPage(q.Page)

	page := view.Page()
	h.SuccessWithMeta(c, dto.RowsResponse{
		Columns: columnsResponse(res.Data.Columns),
		Rows:    rowsResponse(page.Rows),
	}, dto.Meta{
		Total:      page.TotalRows,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: page.TotalPages,
		FromCache:  res.FromCache,
	})
}

// View evaluates a complete view description in one round trip: every filter,
// the sort, and the page window. No view state is kept between requests.
func (h *ReceivablesHandler) View(c *gin.Context) {
	var req dto.ViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, dto.GetHTTPStatus(dto.ErrCodeInvalidJSON), dto.ErrCodeInvalidJSON, err.Error())
		return
	}

	res, ok := h.load(c, req.ReceivablesQuery)
	if !ok {
		return
	}

	view := receivables.NewView(res.Data, res.Schema, h.now())

	// A group drill-in restricts the view to one ledger, which filters by
	// exact match.
	if req.Group != "" {
		ledger := res.Schema.Index(dataset.RoleLedger)
		if ledger < 0 {
			h.BadRequest(c, "dataset has no ledger column to group by")
			return
		}
		view.ApplyFilter(receivables.Column(ledger), req.Group)
	}

	for _, f := range req.Filters {
		col, ok := selector(f.Column, f.DaysOverdue)
		if !ok {
			h.BadRequest(c, "each filter requires column or days_overdue")
			return
		}
		view.ApplyFilter(col, f.Value)
	}
	if req.Sort != nil {
		col, ok := selector(req.Sort.Column, req.Sort.DaysOverdue)
		if !ok {
			h.BadRequest(c, "sort requires column or days_overdue")
			return
		}
		dir := receivables.SortDirection(req.Sort.Direction)
		if dir == "" {
			dir = receivables.SortAsc
		}
		view.ApplySort(col, dir)
	}
	view.SetPageSize(req.PageSize)
	view.SetPage(req.Page)

	page := view.Page()
	h.SuccessWithMeta(c, dto.RowsResponse{
		Columns: columnsResponse(res.Data.Columns),
		Rows:    rowsResponse(page.Rows),
	}, dto.Meta{
		Total:      page.TotalRows,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: page.TotalPages,
		FromCache:  res.FromCache,
	})
}

// Summary returns the signed totals and overdue share of the selection.
func (h *ReceivablesHandler) Summary(c *gin.Context) {
	var q dto.ReceivablesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	var sel dto.SelectionQuery
	if err := c.ShouldBindQuery(&sel); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	res, ok := h.load(c, q)
	if !ok {
		return
	}

	agg := receivables.NewAggregator(res.Data, res.Schema, h.svc.Buckets(), h.now())
	h.Success(c, agg.Summary(criteriaFrom(c, sel)))
}

// Groups returns per-ledger or per-salesperson aggregates, largest balance
// first.
func (h *ReceivablesHandler) Groups(c *gin.Context) {
	role := receivables.GroupRole(c.Param("role"))
	if role != receivables.GroupByLedger && role != receivables.GroupBySalesperson {
		h.BadRequest(c, "role must be ledger or salesperson")
		return
	}

	var q dto.ReceivablesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	var sel dto.SelectionQuery
	if err := c.ShouldBindQuery(&sel); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	res, ok := h.load(c, q)
	if !ok {
		return
	}

	agg := receivables.NewAggregator(res.Data, res.Schema, h.svc.Buckets(), h.now())
	h.Success(c, agg.GroupBy(role, criteriaFrom(c, sel)))
}

// Aging returns the overdue amount per bucket, in configured bucket order.
func (h *ReceivablesHandler) Aging(c *gin.Context) {
	var q dto.ReceivablesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	var sel dto.SelectionQuery
	if err := c.ShouldBindQuery(&sel); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	res, ok := h.load(c, q)
	if !ok {
		return
	}

	buckets := h.svc.Buckets()
	agg := receivables.NewAggregator(res.Data, res.Schema, buckets, h.now())
	totals := agg.AgingTotals(criteriaFrom(c, sel))

	out := make([]dto.AgingBucketResponse, len(totals))
	for i, bt := range totals {
		out[i] = dto.AgingBucketResponse{Label: bt.Label, Value: bt.Value.String()}
		if i < len(buckets) {
			out[i].Color = buckets[i].Color
		}
	}
	h.Success(c, out)
}
