package picker

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/anivar/termbrain-sub001/internal/storage"
)

// Tab identifiers understood by EventProvider.
const (
	TabSession   = "session"
	TabDirectory = "directory"
	TabAll       = "all"
)

// Searcher is the slice of the engine the picker reads from.
type Searcher interface {
	Search(ctx context.Context, f storage.EventFilter) ([]storage.CommandEvent, error)
}

// DefaultTabs returns the session, directory and global tabs. Tabs whose
// scope is unknown are left out.
func DefaultTabs(sessionID, cwd string) []Tab {
	var tabs []Tab
	if sessionID != "" {
		tabs = append(tabs, Tab{ID: TabSession, Label: "Session", Args: map[string]string{"session": sessionID}})
	}
	if cwd != "" {
		tabs = append(tabs, Tab{ID: TabDirectory, Label: "Directory", Args: map[string]string{"cwd": cwd}})
	}
	return append(tabs, Tab{ID: TabAll, Label: "All"})
}

// EventProvider serves picker pages from the event log. Repeated commands
// are shown once, at their most recent position.
type EventProvider struct {
	search Searcher
	now    func() time.Time
}

// NewEventProvider creates a provider backed by s.
func NewEventProvider(s Searcher) *EventProvider {
	return &EventProvider{search: s, now: time.Now}
}

// Fetch implements Provider.
func (p *EventProvider) Fetch(ctx context.Context, req Request) (Response, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}

	f := storage.EventFilter{Contains: req.Query}
	switch req.TabID {
	case TabSession:
		f.SessionID = req.Options["session"]
	case TabDirectory:
		f.CWD = req.Options["cwd"]
	}

	// Deduplication needs the rows before the requested page as well.
	f.Limit = (req.Offset + limit) * 4
	events, err := p.search.Search(ctx, f)
	if err != nil {
		return Response{}, fmt.Errorf("search history: %w", err)
	}

	seen := make(map[string]struct{}, len(events))
	unique := make([]storage.CommandEvent, 0, len(events))
	for _, e := range events {
		if _, ok := seen[e.Command]; ok {
			continue
		}
		seen[e.Command] = struct{}{}
		unique = append(unique, e)
	}

	resp := Response{RequestID: req.RequestID}
	if req.Offset >= len(unique) {
		resp.AtEnd = true
		return resp, nil
	}
	end := min(req.Offset+limit, len(unique))
	now := p.now()
	for _, e := range unique[req.Offset:end] {
		resp.Items = append(resp.Items, Item{Command: e.Command, Detail: detail(e, now)})
	}
	resp.AtEnd = end == len(unique) && len(events) < f.Limit
	return resp, nil
}

func detail(e storage.CommandEvent, now time.Time) string {
	age := humanize.RelTime(e.Timestamp, now, "ago", "from now")
	switch {
	case e.ExitCode == nil:
		return age
	case *e.ExitCode != 0:
		return fmt.Sprintf("%s, exit %d", age, *e.ExitCode)
	default:
		return age
	}
}
