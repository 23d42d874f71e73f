// Package repository holds the small pieces shared by the data access
// layers, currently the list pagination options.
package repository

// ListOptions carries pagination for list queries. Zero values are valid
// and resolve to the caller's defaults via Normalize.
type ListOptions struct {
	// Offset is the number of records to skip.
	Offset int `json:"offset"`

	// Limit is the maximum number of records to return.
	Limit int `json:"limit"`
}

// Normalize clamps the options into a usable range: a non-positive limit
// becomes def, anything above max is capped, and negative offsets become
// zero. Callers pass the result straight into LIMIT/OFFSET.
func (o ListOptions) Normalize(def, max int) ListOptions {
	if o.Limit <= 0 {
		o.Limit = def
	}
	if o.Limit > max {
		o.Limit = max
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
