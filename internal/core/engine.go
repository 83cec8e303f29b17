// Package core wires the event store, classifier, miner, knowledge base,
// workflow engine, advisor, intention and flow trackers into a single
// Engine. The CLI and the capture hook talk only to Engine.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anivar/termbrain-sub001/internal/advisor"
	"github.com/anivar/termbrain-sub001/internal/classify"
	"github.com/anivar/termbrain-sub001/internal/config"
	"github.com/anivar/termbrain-sub001/internal/flow"
	"github.com/anivar/termbrain-sub001/internal/intention"
	"github.com/anivar/termbrain-sub001/internal/knowledge"
	"github.com/anivar/termbrain-sub001/internal/logging"
	"github.com/anivar/termbrain-sub001/internal/mining"
	"github.com/anivar/termbrain-sub001/internal/sanitize"
	"github.com/anivar/termbrain-sub001/internal/storage"
	"github.com/anivar/termbrain-sub001/internal/telemetry"
	"github.com/anivar/termbrain-sub001/internal/workflow"
)

// Options contains the collaborators of an Engine.
type Options struct {
	// Config supplies thresholds and toggles (optional, defaults if nil)
	Config *config.Config

	// Logger is the structured logger (optional, discards if nil)
	Logger *slog.Logger

	// Metrics records counters (optional, disabled if nil)
	Metrics *telemetry.Metrics

	// Executor runs workflow steps (optional, shell executor if nil)
	Executor workflow.StepExecutor

	// Detector detects project types (optional, builtin markers if nil)
	Detector *classify.Detector

	// Location buckets hours for mining and stats (optional, time.Local if nil)
	Location *time.Location

	// BranchLookup returns the git branch of a directory (optional,
	// gitctx.Branch if nil)
	BranchLookup func(cwd string) string
}

// Engine is the facade over every component.
type Engine struct {
	cfg      *config.Config
	store    *storage.SQLiteStore
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	location *time.Location
	branchOf func(cwd string) string
	now      func() time.Time

	classifier *classify.Classifier
	sanitizer  *sanitize.Sanitizer
	knowledge  *knowledge.Base
	patterns   *mining.Store
	miner      *mining.Miner
	workflows  *workflow.Engine
	advisor    *advisor.Advisor
	intentions *intention.Tracker
	flows      *flow.Tracker
}

// Open opens the database at dbPath and creates an Engine over it.
func Open(dbPath string, opts Options) (*Engine, error) {
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, err
	}
	store.SetLogger(opts.Logger)
	return New(store, opts), nil
}

// New creates an Engine over an open store. The engine owns the store and
// closes it in Close.
func New(store *storage.SQLiteStore, opts Options) *Engine {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := logging.OrDiscard(opts.Logger)
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	branchOf := opts.BranchLookup
	if branchOf == nil {
		branchOf = defaultBranchLookup
	}

	db := store.DB()

	miner := mining.NewMiner(db, mining.Config{
		SequenceMinFrequency: cfg.Mining.SequenceMinFrequency,
		TimeMinFrequency:     cfg.Mining.TimeMinFrequency,
		TimeWindow:           days(cfg.Mining.TimeWindowDays),
		ErrorFixMinFrequency: cfg.Mining.ErrorFixMinFrequency,
		Interval:             minutes(cfg.Mining.IntervalMins),
		Location:             loc,
	})
	miner.SetLogger(logger)
	miner.SetMetrics(opts.Metrics)

	executor := opts.Executor
	if executor == nil {
		executor = workflow.NewShellExecutor(workflow.ShellConfig{
			Shell:           cfg.Workflow.Shell,
			OutputTailBytes: cfg.Workflow.OutputTailBytes,
		})
	}
	workflows := workflow.NewEngine(db, executor)
	workflows.SetLogger(logger)
	workflows.SetMetrics(opts.Metrics)

	patterns := mining.NewStore(db)
	var nextSource advisor.PatternSource
	if cfg.Advisor.ShowNext {
		nextSource = patterns
	}

	return &Engine{
		cfg:      cfg,
		store:    store,
		logger:   logger,
		metrics:  opts.Metrics,
		location: loc,
		branchOf: branchOf,
		now:      time.Now,

		classifier: classify.New(opts.Detector),
		sanitizer:  sanitize.NewSanitizer(),
		knowledge: knowledge.NewBase(db, knowledge.Config{
			BaselineConfidence: cfg.Knowledge.BaselineConfidence,
			MaxConfidence:      cfg.Knowledge.MaxConfidence,
		}),
		patterns:  patterns,
		miner:     miner,
		workflows: workflows,
		advisor: advisor.New(store, nextSource, advisor.Config{
			TestsRecent: minutes(cfg.Advisor.TestsRecentMins),
		}),
		intentions: intention.NewTracker(db),
		flows:      flow.NewTracker(db, store),
	}
}

// Close stops the background miner and closes the store.
func (e *Engine) Close() error {
	e.miner.Stop()
	return e.store.Close()
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Store returns the underlying event store.
func (e *Engine) Store() storage.EventStore {
	return e.store
}

// Status describes the database and the event log.
type Status struct {
	SchemaVersion int
	Totals        *storage.Totals
	Workflows     int
	Patterns      int
}

// Status reports the schema version and overall counts.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	version, err := e.store.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}
	totals, err := e.store.Totals(ctx, time.Time{})
	if err != nil {
		return nil, err
	}
	workflows, err := e.workflows.List(ctx)
	if err != nil {
		return nil, err
	}
	patterns, err := e.patterns.List(ctx, "", 0)
	if err != nil {
		return nil, err
	}
	return &Status{
		SchemaVersion: version,
		Totals:        totals,
		Workflows:     len(workflows),
		Patterns:      len(patterns),
	}, nil
}

// reinforce strengthens knowledge that matches solution under topic, or
// records it as a new insight when nothing matches.
func (e *Engine) reinforce(ctx context.Context, topic, solution, source string) error {
	n, err := e.knowledge.Reinforce(ctx, topic, solution)
	if err != nil && !errors.Is(err, knowledge.ErrInvalid) {
		return fmt.Errorf("failed to reinforce knowledge: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := e.knowledge.Record(ctx, topic, solution, source); err != nil {
		return fmt.Errorf("failed to record knowledge: %w", err)
	}
	return nil
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
