package core

import (
	"context"
	"errors"
	"strings"

	"github.com/anivar/termbrain-sub001/internal/gitctx"
	"github.com/anivar/termbrain-sub001/internal/knowledge"
	"github.com/anivar/termbrain-sub001/internal/logging"
	"github.com/anivar/termbrain-sub001/internal/session"
	"github.com/anivar/termbrain-sub001/internal/storage"
)

func defaultBranchLookup(cwd string) string {
	return gitctx.Branch(cwd)
}

// EndResult reports what finalizing a command caused.
type EndResult struct {
	EventID int64

	// ErrorID is set when the command failed and an error was recorded.
	ErrorID int64

	// ResolvedErrorID is set when the command solved an earlier error.
	ResolvedErrorID int64
}

// Start records a command about to run and returns its event id. An id of
// 0 with a nil error means the command was not recorded: capture is
// disabled, the command is blank or it matches an exclude prefix.
func (e *Engine) Start(ctx context.Context, sess session.Context, raw string) (int64, error) {
	if !e.cfg.Capture.Enabled || strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	for _, p := range e.cfg.Capture.ExcludePrefixes {
		if p != "" && strings.HasPrefix(raw, p) {
			return 0, nil
		}
	}
	if sess.SessionID == "" {
		return 0, session.ErrInvalidID
	}

	cls := e.classifier.Classify(raw, sess.CWD)
	projectType := cls.ProjectType
	if sess.ProjectType != "" {
		projectType = sess.ProjectType
	}

	branch := sess.GitBranch
	if branch == "" && sess.CWD != "" {
		branch = e.branchOf(sess.CWD)
	}
	var branchPtr *string
	if branch != "" {
		branchPtr = &branch
	}

	ev := &storage.CommandEvent{
		SessionID:    sess.SessionID,
		Timestamp:    e.now(),
		Command:      strings.TrimSpace(raw),
		SemanticType: cls.SemanticType,
		Intent:       cls.Intent,
		Complexity:   cls.Complexity,
		CWD:          sess.CWD,
		GitBranch:    branchPtr,
		ProjectType:  projectType,
		Sensitive:    e.sanitizer.IsSensitive(raw),
	}
	id, err := e.store.Append(ctx, ev)
	if err != nil {
		return 0, err
	}
	e.metrics.EventCaptured(ctx, ev.SemanticType)

	e.logger.Debug("command started",
		"event_id", id,
		"session_id", sess.SessionID,
		"semantic_type", ev.SemanticType,
		"sensitive", ev.Sensitive,
	)
	return id, nil
}

// End finalizes a command. A failure is recorded as an error; a success
// may resolve the newest unsolved error of the same type in the session.
func (e *Engine) End(ctx context.Context, sess session.Context, id int64, exitCode int, durationMs int64) (*EndResult, error) {
	if err := e.store.Finalize(ctx, id, exitCode, durationMs); err != nil {
		return nil, err
	}
	e.metrics.EventFinalized(ctx, exitCode == 0)

	ev, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	res := &EndResult{EventID: id}

	if exitCode != 0 {
		errID, err := e.store.RecordError(ctx, id)
		if err != nil {
			return nil, err
		}
		res.ErrorID = errID
		e.metrics.ErrorRecorded(ctx, ev.SemanticType)
		return res, nil
	}

	if !e.cfg.Capture.AutoResolveErrors || ev.Sensitive {
		return res, nil
	}

	sessionID := ev.SessionID
	if sess.SessionID != "" {
		sessionID = sess.SessionID
	}
	since := ev.Timestamp.Add(-minutes(e.cfg.Capture.AutoResolveWindowMins))
	rec, err := e.store.LatestUnsolvedError(ctx, sessionID, ev.SemanticType, since)
	if errors.Is(err, storage.ErrErrorNotFound) {
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	if err := e.store.SolveError(ctx, rec.ID, ev.Command); err != nil {
		return nil, err
	}
	res.ResolvedErrorID = rec.ID
	e.metrics.ErrorResolved(ctx, true)
	logging.LogErrorResolved(e.logger, rec.ID, rec.SemanticType)

	if err := e.reinforce(ctx, topicOf(rec.SemanticType), ev.Command, knowledge.SourceError); err != nil {
		return nil, err
	}
	return res, nil
}

// SolveError marks an error solved by hand and feeds the solution into the
// knowledge base under the error's type.
func (e *Engine) SolveError(ctx context.Context, errorID int64, solution string) (*storage.ErrorRecord, error) {
	if err := e.store.SolveError(ctx, errorID, solution); err != nil {
		return nil, err
	}
	rec, err := e.store.GetError(ctx, errorID)
	if err != nil {
		return nil, err
	}
	e.metrics.ErrorResolved(ctx, false)

	if err := e.reinforce(ctx, topicOf(rec.SemanticType), rec.Solution, knowledge.SourceError); err != nil {
		return nil, err
	}
	return rec, nil
}

// Errors lists recorded errors.
func (e *Engine) Errors(ctx context.Context, f storage.ErrorFilter) ([]storage.ErrorRecord, error) {
	return e.store.QueryErrors(ctx, f)
}

func topicOf(semanticType string) string {
	if semanticType == "" {
		return knowledge.DefaultTopic
	}
	return semanticType
}

// RecordCaptureFailure logs a capture failure. The hook calls it instead of
// surfacing the error to the prompt.
func (e *Engine) RecordCaptureFailure(phase string, err error) {
	logging.LogCaptureFailed(e.logger, phase, err)
}
