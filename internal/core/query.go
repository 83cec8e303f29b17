package core

import (
	"context"
	"fmt"
	"time"

	"github.com/anivar/termbrain-sub001/internal/storage"
)

// Search returns non-sensitive events matching f, newest first.
func (e *Engine) Search(ctx context.Context, f storage.EventFilter) ([]storage.CommandEvent, error) {
	return e.store.Query(ctx, f)
}

// StatsQuery scopes Stats.
type StatsQuery struct {
	Since     time.Time // zero = all time
	SessionID string    // scopes buckets and open errors
	Top       int       // commands and types listed; 0 = 10
}

// Stats summarizes the event log.
type Stats struct {
	Totals      *storage.Totals
	ByType      []storage.Bucket
	ByHour      []storage.Bucket
	ByProject   []storage.Bucket
	TopCommands []storage.Bucket
	OpenErrors  int
}

// SuccessRate is the share of finalized commands that succeeded. Commands
// still running count neither way.
func (s *Stats) SuccessRate() float64 {
	if s.Totals == nil || s.Totals.Finalized == 0 {
		return 0
	}
	return 1 - float64(s.Totals.Failures)/float64(s.Totals.Finalized)
}

// Stats aggregates the event log. Sensitive commands are counted in totals
// and type buckets but never listed by text.
func (e *Engine) Stats(ctx context.Context, q StatsQuery) (*Stats, error) {
	top := q.Top
	if top <= 0 {
		top = 10
	}

	totals, err := e.store.Totals(ctx, q.Since)
	if err != nil {
		return nil, err
	}
	stats := &Stats{Totals: totals}

	groups := []struct {
		by    storage.GroupBy
		limit int
		dst   *[]storage.Bucket
	}{
		{storage.GroupBySemanticType, top, &stats.ByType},
		{storage.GroupByHour, 0, &stats.ByHour},
		{storage.GroupByProjectType, top, &stats.ByProject},
		{storage.GroupByCommand, top, &stats.TopCommands},
	}
	for _, g := range groups {
		buckets, err := e.store.Aggregate(ctx, storage.AggregateQuery{
			GroupBy:   g.by,
			Since:     q.Since,
			SessionID: q.SessionID,
			Location:  e.location,
			Limit:     g.limit,
		})
		if err != nil {
			return nil, fmt.Errorf("aggregate by %s: %w", g.by, err)
		}
		*g.dst = buckets
	}

	open, err := e.store.QueryErrors(ctx, storage.ErrorFilter{SessionID: q.SessionID, UnsolvedOnly: true})
	if err != nil {
		return nil, err
	}
	stats.OpenErrors = len(open)
	return stats, nil
}

// Sessions lists sessions, most recently active first.
func (e *Engine) Sessions(ctx context.Context, limit int) ([]storage.SessionSummary, error) {
	return e.store.Sessions(ctx, limit)
}
