package dto

import (
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		// "required" accepts strings of pure whitespace; filter values and
		// dataset identifiers must carry actual content.
		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
	}
}

// ReceivablesQuery identifies one upstream dataset. LocationID is optional;
// without it the result is served live on every request instead of cached.
type ReceivablesQuery struct {
	LocationID   string `form:"location_id" json:"location_id"`
	CompanyGUID  string `form:"company_guid" json:"company_guid" binding:"required,notblank"`
	Formula      string `form:"formula" json:"formula"`
	ForceRefresh bool   `form:"force_refresh" json:"force_refresh"`
}

// PageQuery carries pagination parameters
type PageQuery struct {
	Page     int `form:"page,default=1" json:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size,default=25" json:"page_size" binding:"omitempty,min=1,max=500"`
}

// SelectionQuery carries the criteria shared by the aggregate endpoints
type SelectionQuery struct {
	// Salespersons is a comma separated selection; see ParseSelection for
	// the absent-versus-empty distinction.
	Salespersons string `form:"salespersons" json:"salespersons"`
	Salesperson  string `form:"salesperson" json:"salesperson"`
	Bucket       string `form:"bucket" json:"bucket"`
}

// RowsQuery is the full parameter set of the list endpoint
type RowsQuery struct {
	ReceivablesQuery
	PageQuery
	SortColumn  *int   `form:"sort_column" json:"sort_column" binding:"omitempty,min=0"`
	SortDays    bool   `form:"sort_days_overdue" json:"sort_days_overdue"`
	SortDir     string `form:"sort_dir,default=asc" json:"sort_dir" binding:"omitempty,oneof=asc desc"`
	FilterValue string `form:"filter_value" json:"filter_value"`
	FilterCol   *int   `form:"filter_column" json:"filter_column" binding:"omitempty,min=0"`
	FilterDays  bool   `form:"filter_days_overdue" json:"filter_days_overdue"`
}

// ViewFilter is one column predicate of a view request
type ViewFilter struct {
	Column      *int   `json:"column" binding:"omitempty,min=0"`
	DaysOverdue bool   `json:"days_overdue"`
	Value       string `json:"value" binding:"required,notblank"`
}

// ViewSort selects the sort column and direction of a view request
type ViewSort struct {
	Column      *int   `json:"column" binding:"omitempty,min=0"`
	DaysOverdue bool   `json:"days_overdue"`
	Direction   string `json:"direction" binding:"omitempty,oneof=asc desc"`
}

// ViewRequest describes a complete tabular view in one request: the dataset
// identity plus every filter, the sort, and the page window. The server holds
// no per-client view state.
type ViewRequest struct {
	ReceivablesQuery
	PageQuery
	Group   string       `json:"group"`
	Filters []ViewFilter `json:"filters" binding:"omitempty,dive"`
	Sort    *ViewSort    `json:"sort"`
}

// ColumnResponse is one projected column descriptor
type ColumnResponse struct {
	Name  string `json:"name"`
	Alias string `json:"alias,omitempty"`
	Type  string `json:"type,omitempty"`
}

// RowsResponse is a page of the tabular view
type RowsResponse struct {
	Columns []ColumnResponse `json:"columns"`
	Rows    [][]string       `json:"rows"`
}

// AgingBucketResponse is one overdue bucket with its display color
type AgingBucketResponse struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Color string `json:"color,omitempty"`
}
