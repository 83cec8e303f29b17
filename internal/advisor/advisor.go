// Package advisor scores a command before it runs: its risk, the
// preconditions it expects to hold, and what usually follows it. Advice is
// informational and never blocks execution.
package advisor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anivar/termbrain-sub001/internal/classify"
	"github.com/anivar/termbrain-sub001/internal/cmdutil"
	"github.com/anivar/termbrain-sub001/internal/mining"
	"github.com/anivar/termbrain-sub001/internal/storage"
)

// Named checks.
const (
	CheckTestsRecent   = "tests_recent"
	CheckCleanWorktree = "clean_worktree"
	CheckVersionBumped = "version_bumped"
)

// EventMatcher answers existence questions about the event log.
type EventMatcher interface {
	LatestMatch(ctx context.Context, m storage.EventMatch) (time.Time, bool, error)
}

// PatternSource returns mined sequence patterns starting at a type.
type PatternSource interface {
	NextAfter(ctx context.Context, semanticType string, limit int) ([]mining.Pattern, error)
}

// Config holds advisor settings.
type Config struct {
	TestsRecent time.Duration
	NextLimit   int
}

// DefaultConfig returns the default advisor settings.
func DefaultConfig() Config {
	return Config{
		TestsRecent: 30 * time.Minute,
		NextLimit:   3,
	}
}

// Check is one resolved precondition.
type Check struct {
	Name        string
	Description string
	Satisfied   bool
	LastSeen    *time.Time // newest event that satisfied or violated the check
}

// Suggestion is a command type that commonly follows another.
type Suggestion struct {
	SemanticType string
	Frequency    int64
}

// Advice is everything known about a command before it runs.
type Advice struct {
	Command      string
	SemanticType string
	Risk         Assessment
	Checks       []Check
	Next         []Suggestion
}

// Unmet returns the checks that are not satisfied.
func (a *Advice) Unmet() []Check {
	var out []Check
	for _, c := range a.Checks {
		if !c.Satisfied {
			out = append(out, c)
		}
	}
	return out
}

// Advisor resolves preconditions and next-step hints against the store.
type Advisor struct {
	events   EventMatcher
	patterns PatternSource
	cfg      Config
	now      func() time.Time
}

// New creates an advisor. patterns may be nil to disable next-step hints.
func New(events EventMatcher, patterns PatternSource, cfg Config) *Advisor {
	def := DefaultConfig()
	if cfg.TestsRecent <= 0 {
		cfg.TestsRecent = def.TestsRecent
	}
	if cfg.NextLimit <= 0 {
		cfg.NextLimit = def.NextLimit
	}
	return &Advisor{events: events, patterns: patterns, cfg: cfg, now: time.Now}
}

type preconditionRule struct {
	name   string
	match  func(cmd string, words []string) bool
	checks []string
}

var (
	publishPrefixes = []string{
		"npm publish", "yarn publish", "pnpm publish", "cargo publish", "twine upload",
		"gem push", "poetry publish",
	}
	versionBumpPrefixes = []string{
		"npm version", "yarn version", "pnpm version", "cargo set-version", "poetry version",
		"bumpversion", "bump2version", "bump-my-version",
	}
	commitPrefixes = []string{"git commit", "git stash"}
)

// preconditionRules are evaluated top to bottom and the first match wins.
var preconditionRules = []preconditionRule{
	{"publish", hasPrefix(publishPrefixes...), []string{CheckTestsRecent, CheckCleanWorktree, CheckVersionBumped}},
	{"deploy", anyMatch(
		hasPrefix("kubectl apply", "terraform apply", "helm upgrade", "helm install"),
		wordContains("deploy"),
	), []string{CheckTestsRecent, CheckCleanWorktree}},
	{"push", hasPrefix("git push"), []string{CheckTestsRecent}},
}

// RequiredChecks returns the named checks command expects, in table order.
func RequiredChecks(command string) []string {
	cmd := strings.ToLower(cmdutil.StripPrefix(strings.TrimSpace(command)))
	words := strings.Fields(cmd)
	if len(words) == 0 {
		return nil
	}
	cmd = strings.Join(words, " ")
	for _, r := range preconditionRules {
		if r.match(cmd, words) {
			return r.checks
		}
	}
	return nil
}

// CheckPreconditions resolves each check command requires as run in cwd.
// Each check is resolved independently.
func (a *Advisor) CheckPreconditions(ctx context.Context, command, cwd string) ([]Check, error) {
	names := RequiredChecks(command)
	checks := make([]Check, 0, len(names))
	for _, name := range names {
		c, err := a.resolve(ctx, name, cwd)
		if err != nil {
			return nil, fmt.Errorf("check %s: %w", name, err)
		}
		checks = append(checks, c)
	}
	return checks, nil
}

func (a *Advisor) resolve(ctx context.Context, name, cwd string) (Check, error) {
	switch name {
	case CheckTestsRecent:
		return a.testsRecent(ctx, cwd)
	case CheckCleanWorktree:
		return a.cleanWorktree(ctx, cwd)
	case CheckVersionBumped:
		return a.versionBumped(ctx, cwd)
	default:
		return Check{}, fmt.Errorf("unknown check %q", name)
	}
}

func (a *Advisor) testsRecent(ctx context.Context, cwd string) (Check, error) {
	c := Check{
		Name:        CheckTestsRecent,
		Description: fmt.Sprintf("tests passed here in the last %s", a.cfg.TestsRecent),
	}
	ts, ok, err := a.events.LatestMatch(ctx, storage.EventMatch{
		CWD:          cwd,
		SemanticType: classify.TypeTesting,
		Since:        a.now().Add(-a.cfg.TestsRecent),
		SuccessOnly:  true,
	})
	if err != nil {
		return c, err
	}
	c.Satisfied = ok
	if ok {
		c.LastSeen = &ts
	}
	return c, nil
}

// cleanWorktree holds when nothing was edited here since the last
// successful commit or stash.
func (a *Advisor) cleanWorktree(ctx context.Context, cwd string) (Check, error) {
	c := Check{
		Name:        CheckCleanWorktree,
		Description: "no edits since the last commit",
	}
	committed, ok, err := a.events.LatestMatch(ctx, storage.EventMatch{
		CWD:         cwd,
		Prefixes:    commitPrefixes,
		SuccessOnly: true,
	})
	if err != nil {
		return c, err
	}
	var since time.Time
	if ok {
		since = committed.Add(time.Millisecond)
	}
	edited, dirty, err := a.events.LatestMatch(ctx, storage.EventMatch{
		CWD:          cwd,
		SemanticType: classify.TypeEditing,
		Since:        since,
	})
	if err != nil {
		return c, err
	}
	c.Satisfied = !dirty
	if dirty {
		c.LastSeen = &edited
	} else if ok {
		c.LastSeen = &committed
	}
	return c, nil
}

// versionBumped holds when a version bump succeeded here after the last
// successful publish. A first publish needs no bump.
func (a *Advisor) versionBumped(ctx context.Context, cwd string) (Check, error) {
	c := Check{
		Name:        CheckVersionBumped,
		Description: "version bumped since the last publish",
	}
	published, ok, err := a.events.LatestMatch(ctx, storage.EventMatch{
		CWD:         cwd,
		Prefixes:    publishPrefixes,
		SuccessOnly: true,
	})
	if err != nil {
		return c, err
	}
	if !ok {
		c.Satisfied = true
		return c, nil
	}
	bumped, found, err := a.events.LatestMatch(ctx, storage.EventMatch{
		CWD:         cwd,
		Prefixes:    versionBumpPrefixes,
		Since:       published.Add(time.Millisecond),
		SuccessOnly: true,
	})
	if err != nil {
		return c, err
	}
	c.Satisfied = found
	if found {
		c.LastSeen = &bumped
	} else {
		c.LastSeen = &published
	}
	return c, nil
}

// SuggestNext returns the command types that most often follow
// semanticType.
func (a *Advisor) SuggestNext(ctx context.Context, semanticType string, limit int) ([]Suggestion, error) {
	if a.patterns == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = a.cfg.NextLimit
	}
	patterns, err := a.patterns.NextAfter(ctx, semanticType, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Suggestion, 0, len(patterns))
	for _, p := range patterns {
		if p.Sequence == nil {
			continue
		}
		out = append(out, Suggestion{SemanticType: p.Sequence.To, Frequency: p.Frequency})
	}
	return out, nil
}

// Advise combines risk, preconditions and next-step hints for command.
func (a *Advisor) Advise(ctx context.Context, command, cwd string) (*Advice, error) {
	adv := &Advice{
		Command:      command,
		SemanticType: classify.SemanticType(command),
		Risk:         AssessRisk(command),
	}
	checks, err := a.CheckPreconditions(ctx, command, cwd)
	if err != nil {
		return nil, err
	}
	adv.Checks = checks

	next, err := a.SuggestNext(ctx, adv.SemanticType, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest next step: %w", err)
	}
	adv.Next = next
	return adv, nil
}

func hasPrefix(prefixes ...string) func(string, []string) bool {
	return func(cmd string, _ []string) bool {
		for _, p := range prefixes {
			if cmd == p || strings.HasPrefix(cmd, p+" ") {
				return true
			}
		}
		return false
	}
}

func wordContains(sub string) func(string, []string) bool {
	return func(_ string, words []string) bool {
		for _, w := range words {
			if strings.Contains(w, sub) {
				return true
			}
		}
		return false
	}
}

func anyMatch(matchers ...func(string, []string) bool) func(string, []string) bool {
	return func(cmd string, words []string) bool {
		for _, m := range matchers {
			if m(cmd, words) {
				return true
			}
		}
		return false
	}
}
