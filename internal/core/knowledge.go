package core

import (
	"context"
	"strings"

	"github.com/anivar/termbrain-sub001/internal/knowledge"
	"github.com/anivar/termbrain-sub001/internal/session"
)

// recentTypes returns the semantic types of the session's latest commands.
func (e *Engine) recentTypes(ctx context.Context, sessionID string) ([]string, error) {
	if sessionID == "" {
		return nil, nil
	}
	return e.store.RecentTypes(ctx, sessionID, e.cfg.Knowledge.TopicWindow)
}

// DeriveTopic picks a topic from what the session has been doing.
func (e *Engine) DeriveTopic(ctx context.Context, sess session.Context) (string, error) {
	recent, err := e.recentTypes(ctx, sess.SessionID)
	if err != nil {
		return "", err
	}
	return knowledge.DeriveTopic(recent), nil
}

// Learn records an insight. An empty topic is derived from the session.
func (e *Engine) Learn(ctx context.Context, sess session.Context, topic, insight, source string) (*knowledge.Entry, error) {
	if strings.TrimSpace(topic) == "" {
		derived, err := e.DeriveTopic(ctx, sess)
		if err != nil {
			return nil, err
		}
		topic = derived
	}
	if source == "" {
		source = knowledge.SourceExperience
	}
	return e.knowledge.Record(ctx, topic, insight, source)
}

// Ask finds insights whose topic or text contains query.
func (e *Engine) Ask(ctx context.Context, query string, limit int) ([]knowledge.Entry, error) {
	return e.knowledge.FindByTopic(ctx, query, limit)
}

// Reinforce strengthens insights of topic containing substr and returns how
// many were updated.
func (e *Engine) Reinforce(ctx context.Context, topic, substr string) (int64, error) {
	return e.knowledge.Reinforce(ctx, topic, substr)
}
