package picker

import "context"

// Provider supplies items to the picker.
type Provider interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}

// Tab is one selectable scope of the picker. Args are handed to the
// provider with every request made while the tab is active.
type Tab struct {
	ID    string
	Label string
	Args  map[string]string
}

// Request describes what items the picker wants from a Provider.
type Request struct {
	RequestID uint64            // Monotonically increasing, for stale response detection
	Query     string            // Search filter
	TabID     string            // Active tab identifier
	Options   map[string]string // Tab arguments
	Limit     int
	Offset    int
}

// Item is one selectable row.
type Item struct {
	Command string
	Detail  string // dimmed suffix, e.g. age and exit status
}

// Response carries items back from a Provider.
type Response struct {
	RequestID uint64 // Must match Request.RequestID to be accepted
	Items     []Item
	AtEnd     bool // No more pages available
}
