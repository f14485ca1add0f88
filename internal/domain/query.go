package domain

import "strings"

// Default query execution limits.
const (
	DefaultPageSize     = 100
	MaxPageSize         = 1000
	DefaultQueryTimeout = 30 // seconds
)

// Sort directions.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// QueryOptions carries pagination, sorting, and filtering parameters for
// a rewritten query. Filters map column names to encoded filter values:
// nil (IS NULL), scalar (equality), []interface{} (IN), or a
// map[string]interface{} with "min"/"max" bounds (BETWEEN / >= / <=).
type QueryOptions struct {
	Page          int
	PageSize      int
	SortColumn    string
	SortDirection string
	Filters       map[string]interface{}
}

// Normalize fills defaults for unset pagination fields.
func (o *QueryOptions) Normalize() {
	if o.Page == 0 {
		o.Page = 1
	}
	if o.PageSize == 0 {
		o.PageSize = DefaultPageSize
	}
	if o.SortDirection != "" {
		o.SortDirection = strings.ToLower(o.SortDirection)
	}
}

// Validate rejects malformed pagination and sort parameters.
func (o *QueryOptions) Validate() error {
	if o.Page < 1 {
		return ErrValidation("page must be a positive integer, got %d", o.Page)
	}
	if o.PageSize < 1 {
		return ErrValidation("pageSize must be a positive integer, got %d", o.PageSize)
	}
	if o.PageSize > MaxPageSize {
		return ErrValidation("pageSize %d exceeds maximum %d", o.PageSize, MaxPageSize)
	}
	if o.SortDirection != "" && o.SortDirection != SortAsc && o.SortDirection != SortDesc {
		return ErrValidation("sortDirection must be %q or %q, got %q", SortAsc, SortDesc, o.SortDirection)
	}
	return nil
}

// QueryPage is one page of query results plus pagination metadata.
type QueryPage struct {
	Columns       []string        `json:"columns"`
	Rows          [][]interface{} `json:"rows"`
	TotalRows     int64           `json:"totalRows"`
	TotalPages    int64           `json:"totalPages"`
	CurrentPage   int             `json:"currentPage"`
	ExecutionTime int64           `json:"executionTime"` // milliseconds
	SQL           string          `json:"sql,omitempty"` // the query actually attempted
}

// DiscoveredTable describes one queryable source as seen by discovery.
type DiscoveredTable struct {
	Name     string             `json:"name"`
	ViewName string             `json:"viewName"`
	Columns  []DiscoveredColumn `json:"columns"`
	RowCount int64              `json:"rowCount"`
	Merges   []MergedColumnDefinition
	Sample   map[string]interface{} `json:"-"`
}

// DiscoveredColumn is one inferred column of a discovered table.
type DiscoveredColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Inferred column types.
const (
	TypeInteger   = "integer"
	TypeNumeric   = "numeric"
	TypeTimestamp = "timestamp"
	TypeBoolean   = "boolean"
	TypeText      = "text"
)
