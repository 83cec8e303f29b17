package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/anivar/termbrain-sub001/internal/config"
	"github.com/anivar/termbrain-sub001/internal/core"
	"github.com/anivar/termbrain-sub001/internal/logging"
	"github.com/anivar/termbrain-sub001/internal/session"
	"github.com/anivar/termbrain-sub001/internal/telemetry"
)

// errNoSession is returned by commands that need a shell session.
var errNoSession = errors.New("no session: run inside a shell with the tb hook installed, or pass --session")

// app bundles what a command needs to talk to the engine.
type app struct {
	paths    *config.Paths
	cfg      *config.Config
	engine   *core.Engine
	logger   *slog.Logger
	sessions *session.FileStore

	metrics   *telemetry.Metrics
	logCloser io.Closer
}

// openApp loads the config, opens the log file and the database.
func openApp() (*app, error) {
	paths := config.DefaultPaths()
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	a := &app{
		paths:    paths,
		cfg:      cfg,
		logger:   logging.Discard(),
		sessions: session.NewFileStore(paths.SessionDir()),
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	if logger, closer, err := logging.OpenFile(cfg.LogPath(paths), level, false); err == nil {
		a.logger = logger
		a.logCloser = closer
	}

	if cfg.Telemetry.Enabled {
		if m, err := telemetry.New(); err == nil {
			a.metrics = m
		} else {
			a.logger.Warn("telemetry disabled", "error", err)
		}
	}

	a.engine, err = core.Open(cfg.DatabasePath(paths), core.Options{
		Config:  cfg,
		Logger:  a.logger,
		Metrics: a.metrics,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return a, nil
}

func (a *app) close() {
	if a.engine != nil {
		if err := a.engine.Close(); err != nil {
			a.logger.Warn("failed to close engine", "error", err)
		}
	}
	if a.metrics != nil {
		_ = a.metrics.Shutdown(context.Background(), a.logger)
	}
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
}

// sessionID returns the --session flag or $TB_SESSION_ID.
func sessionID() string {
	if sessionFlag != "" {
		return sessionFlag
	}
	return os.Getenv("TB_SESSION_ID")
}

// loadSession returns the persisted context of the current session with
// the working directory refreshed.
func (a *app) loadSession() (session.Context, error) {
	id := sessionID()
	if id == "" {
		return session.Context{}, errNoSession
	}
	sess, err := a.sessions.Load(id)
	if err != nil {
		return session.Context{}, err
	}
	if cwd, err := os.Getwd(); err == nil {
		sess.CWD = cwd
	}
	return sess, nil
}

func (a *app) saveSession(sess session.Context) error {
	return a.sessions.Save(sess)
}

// withApp opens the app for the duration of fn.
func withApp(fn func(ctx context.Context, a *app) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()
	return fn(context.Background(), a)
}

// parseSince accepts Go durations plus a "d" suffix for days. Empty means
// all time.
func parseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "all" {
		return time.Time{}, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		var n int
		if _, err := fmt.Sscanf(days, "%d", &n); err != nil || n <= 0 {
			return time.Time{}, fmt.Errorf("invalid --since %q", s)
		}
		return now.AddDate(0, 0, -n), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return time.Time{}, fmt.Errorf("invalid --since %q", s)
	}
	return now.Add(-d), nil
}

func ago(t time.Time) string {
	return humanize.Time(t)
}

func formatExit(code *int) string {
	switch {
	case code == nil:
		return colorDim + "running" + colorReset
	case *code == 0:
		return colorGreen + "ok" + colorReset
	default:
		return fmt.Sprintf("%sexit %d%s", colorRed, *code, colorReset)
	}
}

func formatDuration(ms *int64) string {
	if ms == nil {
		return ""
	}
	return (time.Duration(*ms) * time.Millisecond).Round(time.Millisecond).String()
}

func formatBool(b bool) string {
	if b {
		return colorGreen + "enabled" + colorReset
	}
	return colorDim + "disabled" + colorReset
}

func printHeader(title string) {
	fmt.Printf("%s%s%s\n", colorBold, title, colorReset)
	fmt.Println(strings.Repeat("-", min(40, terminalWidth())))
}
