package core

import (
	"context"
	"strings"

	"github.com/anivar/termbrain-sub001/internal/flow"
	"github.com/anivar/termbrain-sub001/internal/intention"
	"github.com/anivar/termbrain-sub001/internal/knowledge"
	"github.com/anivar/termbrain-sub001/internal/session"
)

// Intend opens an intention for the session, capturing its context and
// recent command types.
func (e *Engine) Intend(ctx context.Context, sess session.Context, goal string) (*intention.Intention, error) {
	recent, err := e.recentTypes(ctx, sess.SessionID)
	if err != nil {
		return nil, err
	}
	return e.intentions.Start(ctx, sess, goal, recent)
}

// Achieve completes the session's open intention. Learnings are recorded
// as experience under the topic the session has been working on; a
// success reinforces learnings that are already known.
func (e *Engine) Achieve(ctx context.Context, sess session.Context, success bool, learnings string) (*intention.Intention, error) {
	done, err := e.intentions.Complete(ctx, sess.SessionID, success, learnings)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(done.Learnings) == "" {
		return done, nil
	}

	recent, err := e.recentTypes(ctx, sess.SessionID)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		recent = done.Context.RecentTypes
	}
	topic := knowledge.DeriveTopic(recent)

	if success {
		n, err := e.knowledge.Reinforce(ctx, topic, done.Learnings)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return done, nil
		}
	}
	if _, err := e.knowledge.Record(ctx, topic, done.Learnings, knowledge.SourceExperience); err != nil {
		return nil, err
	}
	return done, nil
}

// CurrentIntention returns the session's open intention.
func (e *Engine) CurrentIntention(ctx context.Context, sessionID string) (*intention.Intention, error) {
	return e.intentions.Current(ctx, sessionID)
}

// Intentions lists intentions, newest first.
func (e *Engine) Intentions(ctx context.Context, limit int) ([]intention.Intention, error) {
	return e.intentions.List(ctx, limit)
}

// IntentionStats summarizes intention outcomes.
func (e *Engine) IntentionStats(ctx context.Context) (*intention.Stats, error) {
	return e.intentions.Stats(ctx)
}

// StartFlow marks a flow as active in sess and returns the updated context.
func (e *Engine) StartFlow(sess session.Context, focus string) session.Context {
	return e.flows.Start(sess, focus)
}

// EndFlow scores and stores the active flow and returns the cleared
// context.
func (e *Engine) EndFlow(ctx context.Context, sess session.Context, energy int) (*flow.Sample, session.Context, error) {
	return e.flows.End(ctx, sess, energy)
}

// Flows lists stored flow samples, newest first.
func (e *Engine) Flows(ctx context.Context, limit int) ([]flow.Sample, error) {
	return e.flows.List(ctx, limit)
}

// FlowSummary averages flow samples per focus area.
func (e *Engine) FlowSummary(ctx context.Context) ([]flow.FocusSummary, error) {
	return e.flows.Summary(ctx)
}
