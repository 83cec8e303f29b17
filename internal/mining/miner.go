package mining

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/anivar/termbrain-sub001/internal/logging"
	"github.com/anivar/termbrain-sub001/internal/telemetry"
)

// Config holds the mining thresholds.
type Config struct {
	// SequenceMinFrequency is the minimum count of an adjacent type pair
	// (default: 3).
	SequenceMinFrequency int

	// TimeMinFrequency is the minimum count of an (hour, type) bucket
	// (default: 5).
	TimeMinFrequency int

	// TimeWindow is the trailing window of the time-of-day pass
	// (default: 30 days).
	TimeWindow time.Duration

	// ErrorFixMinFrequency is the minimum count of an (error type,
	// solution) pair (default: 2).
	ErrorFixMinFrequency int

	// Interval is the period of the background loop (default: 10 minutes).
	Interval time.Duration

	// Location buckets hours for the time-of-day pass. Nil means time.Local.
	Location *time.Location
}

// DefaultConfig returns the default mining configuration.
func DefaultConfig() Config {
	return Config{
		SequenceMinFrequency: 3,
		TimeMinFrequency:     5,
		TimeWindow:           30 * 24 * time.Hour,
		ErrorFixMinFrequency: 2,
		Interval:             10 * time.Minute,
	}
}

// PassResult is the outcome of one mining pass.
type PassResult struct {
	Pass     Type
	Patterns int
	Elapsed  time.Duration
	Err      error
}

// Report summarizes a MineOnce run. A failed pass does not stop the others.
type Report struct {
	Passes []PassResult
	Errors map[Type]error
}

// Patterns returns the number of patterns upserted across all passes.
func (r *Report) Patterns() int {
	n := 0
	for _, p := range r.Passes {
		n += p.Patterns
	}
	return n
}

// Err joins the pass errors, or returns nil if every pass succeeded.
func (r *Report) Err() error {
	var errs []error
	for _, p := range r.Passes {
		if p.Err != nil {
			errs = append(errs, fmt.Errorf("%s pass: %w", p.Pass, p.Err))
		}
	}
	return errors.Join(errs...)
}

// Miner runs the mining passes over the shared database, either on demand
// through MineOnce or periodically after Start.
type Miner struct {
	db      *sql.DB
	cfg     Config
	logger  *slog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time

	mu      sync.Mutex
	startMu sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewMiner creates a miner. Zero thresholds fall back to the defaults.
func NewMiner(db *sql.DB, cfg Config) *Miner {
	def := DefaultConfig()
	if cfg.SequenceMinFrequency <= 0 {
		cfg.SequenceMinFrequency = def.SequenceMinFrequency
	}
	if cfg.TimeMinFrequency <= 0 {
		cfg.TimeMinFrequency = def.TimeMinFrequency
	}
	if cfg.TimeWindow <= 0 {
		cfg.TimeWindow = def.TimeWindow
	}
	if cfg.ErrorFixMinFrequency <= 0 {
		cfg.ErrorFixMinFrequency = def.ErrorFixMinFrequency
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Miner{
		db:     db,
		cfg:    cfg,
		logger: logging.Discard(),
		now:    time.Now,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// SetLogger sets the logger for pass results.
func (m *Miner) SetLogger(l *slog.Logger) {
	m.logger = logging.OrDiscard(l)
}

// SetMetrics sets the metrics recorder. Nil disables metrics.
func (m *Miner) SetMetrics(metrics *telemetry.Metrics) {
	m.metrics = metrics
}

// Start begins periodic background mining. Call Stop to terminate.
func (m *Miner) Start() {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	if m.started {
		return
	}
	m.started = true
	go m.run(m.stopCh, m.doneCh)
}

// Stop halts the background miner and waits for the current pass to finish.
// It is a no-op if the miner was never started.
func (m *Miner) Stop() {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	if !m.started {
		return
	}
	m.started = false
	close(m.stopCh)
	<-m.doneCh
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
}

func (m *Miner) run(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	// Run once immediately on start.
	m.MineOnce(ctx)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.MineOnce(ctx)
		}
	}
}

// MineOnce runs every pass once. Each pass reads a consistent snapshot and
// upserts its patterns with recomputed frequencies, so repeated runs over
// the same data leave the table unchanged.
func (m *Miner) MineOnce(ctx context.Context) *Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := &Report{Errors: make(map[Type]error)}

	seq, seqResult := m.runPass(ctx, TypeSequence, m.mineSequences)
	report.add(seqResult)

	_, res := m.runPass(ctx, TypeTime, m.mineTimes)
	report.add(res)

	_, res = m.runPass(ctx, TypeErrorFix, m.mineErrorFixes)
	report.add(res)

	_, res = m.runPass(ctx, TypeWorkflowCandidate, func(ctx context.Context) ([]Pattern, error) {
		if seqResult.Err != nil {
			return nil, errors.New("sequence pass failed")
		}
		return m.mineCandidates(ctx, seq)
	})
	report.add(res)

	return report
}

func (r *Report) add(res PassResult) {
	r.Passes = append(r.Passes, res)
	if res.Err != nil {
		r.Errors[res.Pass] = res.Err
	}
}

func (m *Miner) runPass(ctx context.Context, pass Type, detect func(context.Context) ([]Pattern, error)) ([]Pattern, PassResult) {
	start := time.Now()
	res := PassResult{Pass: pass}

	patterns, err := detect(ctx)
	if err == nil {
		err = m.upsert(ctx, patterns)
	}
	if err != nil {
		patterns = nil
		res.Err = err
	} else {
		res.Patterns = len(patterns)
	}
	res.Elapsed = time.Since(start)

	logging.LogMiningPass(m.logger, string(pass), res.Patterns, res.Elapsed, res.Err)
	m.metrics.MiningPass(ctx, string(pass), res.Patterns, res.Err != nil)
	return patterns, res
}

// readTx runs fn inside a transaction that is always rolled back. The pool
// holds a single connection, so the snapshot must be released before the
// write transaction begins.
func (m *Miner) readTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	return fn(tx)
}

// upsert writes patterns in one transaction. Frequency and payload are
// replaced; last seen only moves forward.
func (m *Miner) upsert(ctx context.Context, patterns []Pattern) error {
	if len(patterns) == 0 {
		return nil
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO patterns (pattern_type, pattern_key, payload, frequency, first_seen_unix_ms, last_seen_unix_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(pattern_type, pattern_key) DO UPDATE SET
			payload = excluded.payload,
			frequency = excluded.frequency,
			last_seen_unix_ms = MAX(patterns.last_seen_unix_ms, excluded.last_seen_unix_ms)
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i := range patterns {
		p := &patterns[i]
		payload, err := json.Marshal(p.payload())
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", p.Type, err)
		}
		if _, err := stmt.ExecContext(ctx,
			string(p.Type), p.Key, string(payload), p.Frequency,
			p.FirstSeen.UnixMilli(), p.LastSeen.UnixMilli(),
		); err != nil {
			return fmt.Errorf("upsert %s pattern %q: %w", p.Type, p.Key, err)
		}
	}

	return tx.Commit()
}
