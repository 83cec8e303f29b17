package core

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/anivar/termbrain-sub001/internal/mining"
	"github.com/anivar/termbrain-sub001/internal/workflow"
)

// ErrNoExample is returned when promoting a candidate whose steps were only
// ever seen as sensitive commands.
var ErrNoExample = errors.New("candidate has no recorded example commands")

// CreateWorkflow stores a new workflow.
func (e *Engine) CreateWorkflow(ctx context.Context, name, description string, commands []string) (*workflow.Workflow, error) {
	return e.workflows.Create(ctx, name, description, commands)
}

// UpdateWorkflow replaces the steps of a workflow.
func (e *Engine) UpdateWorkflow(ctx context.Context, name string, commands []string) (*workflow.Workflow, error) {
	return e.workflows.Update(ctx, name, commands)
}

// GetWorkflow returns a workflow by name.
func (e *Engine) GetWorkflow(ctx context.Context, name string) (*workflow.Workflow, error) {
	return e.workflows.Get(ctx, name)
}

// ListWorkflows lists every workflow.
func (e *Engine) ListWorkflows(ctx context.Context) ([]workflow.Workflow, error) {
	return e.workflows.List(ctx)
}

// DeleteWorkflow removes a workflow and its history.
func (e *Engine) DeleteWorkflow(ctx context.Context, name string) error {
	return e.workflows.Delete(ctx, name)
}

// RunWorkflow executes a workflow's steps in order, stopping at the first
// failure.
func (e *Engine) RunWorkflow(ctx context.Context, name string, opts workflow.RunOptions) (*workflow.RunResult, error) {
	return e.workflows.Run(ctx, name, opts)
}

// WorkflowRuns returns the run history of a workflow, newest first.
func (e *Engine) WorkflowRuns(ctx context.Context, name string, limit int) ([]workflow.Run, error) {
	return e.workflows.Runs(ctx, name, limit)
}

// ImportWorkflow creates a workflow from a YAML or JSON definition file.
func (e *Engine) ImportWorkflow(ctx context.Context, path string) (*workflow.Workflow, error) {
	def, err := workflow.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return e.workflows.Create(ctx, def.Name, def.Description, def.Commands)
}

// ExportWorkflow writes a workflow definition to w.
func (e *Engine) ExportWorkflow(ctx context.Context, name string, w io.Writer, format workflow.Format) error {
	wf, err := e.workflows.Get(ctx, name)
	if err != nil {
		return err
	}
	return workflow.Export(w, workflow.DefinitionOf(wf), format)
}

// PromoteCandidate turns a mined workflow candidate into a named workflow
// using its example commands. Candidates are only ever promoted on request.
func (e *Engine) PromoteCandidate(ctx context.Context, key, name string) (*workflow.Workflow, error) {
	p, err := e.patterns.Get(ctx, mining.TypeWorkflowCandidate, key)
	if err != nil {
		return nil, err
	}
	if p.Candidate == nil || len(p.Candidate.Example) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoExample, key)
	}
	description := fmt.Sprintf("promoted from %s (seen %d times)", key, p.Frequency)
	return e.workflows.Create(ctx, name, description, p.Candidate.Example)
}
