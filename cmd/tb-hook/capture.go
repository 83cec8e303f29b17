package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/anivar/termbrain-sub001/internal/config"
	"github.com/anivar/termbrain-sub001/internal/core"
	"github.com/anivar/termbrain-sub001/internal/logging"
	"github.com/anivar/termbrain-sub001/internal/session"
)

// captureTimeout bounds one hook invocation so a locked database never
// stalls the prompt.
const captureTimeout = 2 * time.Second

// hook is what one capture invocation needs.
type hook struct {
	paths    *config.Paths
	cfg      *config.Config
	logger   *slog.Logger
	sessions *session.FileStore
	closer   io.Closer
}

func openHook() (*hook, error) {
	paths := config.DefaultPaths()
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	h := &hook{
		paths:    paths,
		cfg:      cfg,
		logger:   logging.Discard(),
		sessions: session.NewFileStore(paths.SessionDir()),
	}
	level := logging.ParseLevel(cfg.Logging.Level)
	if logger, closer, err := logging.OpenFile(cfg.LogPath(paths), level, false); err == nil {
		h.logger = logger.With("component", "hook")
		h.closer = closer
	}
	return h, nil
}

func (h *hook) close() {
	if h.closer != nil {
		_ = h.closer.Close()
	}
}

func (h *hook) openEngine() (*core.Engine, error) {
	return core.Open(h.cfg.DatabasePath(h.paths), core.Options{
		Config: h.cfg,
		Logger: h.logger,
	})
}

// startConfig holds the parsed flags of the start command.
type startConfig struct {
	cmdStdin bool
}

func parseStartArgs(args []string) (*startConfig, error) {
	cfg := &startConfig{}
	for _, arg := range args {
		switch arg {
		case "--cmd-stdin":
			cfg.cmdStdin = true
		default:
			if strings.HasPrefix(arg, "-") {
				return nil, fmt.Errorf("unknown flag: %s", arg)
			}
		}
	}
	return cfg, nil
}

// runStart records a command and prints its event id. Nothing is printed
// when the command is not recorded.
func runStart(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if os.Getenv("TB_NO_RECORD") == "1" {
		return 0
	}

	cfg, err := parseStartArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "tb-hook start: %v\n", err)
		return 1
	}
	raw, err := readCommand(cfg, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "tb-hook start: %v\n", err)
		return 1
	}
	sessionID, err := readRequiredEnv("TB_SESSION_ID")
	if err != nil {
		fmt.Fprintf(stderr, "tb-hook start: %v\n", err)
		return 1
	}

	h, err := openHook()
	if err != nil {
		return 0
	}
	defer h.close()

	sess, err := h.sessions.Load(sessionID)
	if err != nil {
		logging.LogCaptureFailed(h.logger, "start", err)
		return 0
	}
	sess.CWD = os.Getenv("TB_CWD")
	if sess.CWD == "" {
		sess.CWD, _ = os.Getwd()
	}

	engine, err := h.openEngine()
	if err != nil {
		logging.LogCaptureFailed(h.logger, "start", err)
		return 0
	}
	defer engine.Close()

	ctx, cancel := context.WithTimeout(context.Background(), captureTimeout)
	defer cancel()

	id, err := engine.Start(ctx, sess, raw)
	if err != nil {
		engine.RecordCaptureFailure("start", err)
		return 0
	}
	if id > 0 {
		fmt.Fprintln(stdout, id)
	}
	return 0
}

// runEnd finalizes the event printed by start.
func runEnd(args []string, stderr io.Writer) int {
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			fmt.Fprintf(stderr, "tb-hook end: unknown flag: %s\n", arg)
			return 1
		}
	}

	eventID, err := readOptionalInt64("TB_EVENT_ID")
	if err != nil {
		fmt.Fprintf(stderr, "tb-hook end: %v\n", err)
		return 1
	}
	if eventID <= 0 {
		return 0
	}
	sessionID, err := readRequiredEnv("TB_SESSION_ID")
	if err != nil {
		fmt.Fprintf(stderr, "tb-hook end: %v\n", err)
		return 1
	}
	exitCode, err := readRequiredInt("TB_EXIT")
	if err != nil {
		fmt.Fprintf(stderr, "tb-hook end: %v\n", err)
		return 1
	}
	durationMs, err := readOptionalInt64("TB_DURATION_MS")
	if err != nil {
		fmt.Fprintf(stderr, "tb-hook end: %v\n", err)
		return 1
	}

	h, err := openHook()
	if err != nil {
		return 0
	}
	defer h.close()

	sess, err := h.sessions.Load(sessionID)
	if err != nil {
		logging.LogCaptureFailed(h.logger, "end", err)
		return 0
	}

	engine, err := h.openEngine()
	if err != nil {
		logging.LogCaptureFailed(h.logger, "end", err)
		return 0
	}
	defer engine.Close()

	ctx, cancel := context.WithTimeout(context.Background(), captureTimeout)
	defer cancel()

	if _, err := engine.End(ctx, sess, eventID, exitCode, durationMs); err != nil {
		engine.RecordCaptureFailure("end", err)
	}
	return 0
}

func readCommand(cfg *startConfig, stdin io.Reader) (string, error) {
	if !cfg.cmdStdin {
		raw := os.Getenv("TB_CMD")
		if raw == "" {
			return "", fmt.Errorf("TB_CMD is required (or use --cmd-stdin)")
		}
		return strings.ToValidUTF8(raw, "�"), nil
	}

	scanner := bufio.NewScanner(stdin)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read command from stdin: %w", err)
	}
	return strings.ToValidUTF8(strings.Join(lines, "\n"), "�"), nil
}

func readRequiredEnv(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return v, nil
}

func readRequiredInt(name string) (int, error) {
	v, err := readRequiredEnv(name)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, err)
	}
	return parsed, nil
}

// readOptionalInt64 returns 0 for an unset variable.
func readOptionalInt64(name string) (int64, error) {
	v := os.Getenv(name)
	if v == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, err)
	}
	return parsed, nil
}
