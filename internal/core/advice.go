package core

import (
	"context"

	"github.com/anivar/termbrain-sub001/internal/advisor"
)

// AssessRisk scores a command. It never fails.
func (e *Engine) AssessRisk(command string) advisor.Assessment {
	return advisor.AssessRisk(command)
}

// CheckPreconditions resolves the checks command expects as run in cwd.
func (e *Engine) CheckPreconditions(ctx context.Context, command, cwd string) ([]advisor.Check, error) {
	return e.advisor.CheckPreconditions(ctx, command, cwd)
}

// Advise combines risk, preconditions and next-step hints for command.
func (e *Engine) Advise(ctx context.Context, command, cwd string) (*advisor.Advice, error) {
	return e.advisor.Advise(ctx, command, cwd)
}

// SuggestNext returns the command types that most often follow
// semanticType.
func (e *Engine) SuggestNext(ctx context.Context, semanticType string, limit int) ([]advisor.Suggestion, error) {
	return e.advisor.SuggestNext(ctx, semanticType, limit)
}
