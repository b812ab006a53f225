package model

import "time"

// Response is the envelope of every read-only API response.
type Response struct {
	Status     string      `json:"status"`
	RequestID  string      `json:"request_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       any         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Error      *APIError   `json:"error"`
}

// Pagination describes one page of a run listing.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// Page builds the pagination block for a listing of total runs.
func (o ListOptions) Page(total int) *Pagination {
	return &Pagination{
		Total:   total,
		Limit:   o.Limit,
		Offset:  o.Offset,
		HasMore: o.Offset+o.Limit < total,
	}
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListOptions selects a page of stored runs, newest first.
type ListOptions struct {
	Limit    int
	Offset   int
	Scenario string // only runs of this scenario name when set
}

// DefaultListOptions returns the first page.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: defaultPageSize}
}

// Clamp brings Limit into [1, 100] and Offset to at least 0.
func (o *ListOptions) Clamp() {
	switch {
	case o.Limit <= 0:
		o.Limit = defaultPageSize
	case o.Limit > maxPageSize:
		o.Limit = maxPageSize
	}
	o.Offset = max(o.Offset, 0)
}

// TimelineFilter narrows a stored timeline query.
type TimelineFilter struct {
	Night *NightIndex
	Site  Site
}
