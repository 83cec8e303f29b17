package core

import (
	"context"

	"github.com/anivar/termbrain-sub001/internal/mining"
)

// Mine runs every mining pass once.
func (e *Engine) Mine(ctx context.Context) *mining.Report {
	return e.miner.MineOnce(ctx)
}

// StartMiner starts periodic background mining. Failures are logged.
func (e *Engine) StartMiner() {
	e.miner.Start()
}

// StopMiner stops background mining and waits for the current pass.
func (e *Engine) StopMiner() {
	e.miner.Stop()
}

// Patterns lists mined patterns of typ (empty = all).
func (e *Engine) Patterns(ctx context.Context, typ mining.Type, limit int) ([]mining.Pattern, error) {
	return e.patterns.List(ctx, typ, limit)
}
