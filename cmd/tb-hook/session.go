package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/anivar/termbrain-sub001/internal/session"
)

func rejectFlags(name string, args []string, stderr io.Writer) bool {
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			fmt.Fprintf(stderr, "tb-hook %s: unknown flag: %s\n", name, arg)
			return true
		}
	}
	return false
}

// runSessionStart creates a session context and prints its id. The shell
// exports it as TB_SESSION_ID. The id is printed even when the context
// cannot be saved: the CLI treats a missing context as a fresh one.
func runSessionStart(args []string, stdout, stderr io.Writer) int {
	if rejectFlags("session-start", args, stderr) {
		return 1
	}

	cwd := os.Getenv("TB_CWD")
	if cwd == "" {
		cwd, _ = os.Getwd()
	}
	sess := session.New(cwd)

	if h, err := openHook(); err == nil {
		if err := h.sessions.Save(sess); err != nil {
			h.logger.Warn("failed to save session", "session_id", sess.SessionID, "error", err)
		}
		h.close()
	}

	fmt.Fprintln(stdout, sess.SessionID)
	return 0
}

// runSessionEnd removes the context of TB_SESSION_ID.
func runSessionEnd(args []string, stderr io.Writer) int {
	if rejectFlags("session-end", args, stderr) {
		return 1
	}
	sessionID, err := readRequiredEnv("TB_SESSION_ID")
	if err != nil {
		fmt.Fprintf(stderr, "tb-hook session-end: %v\n", err)
		return 1
	}

	h, err := openHook()
	if err != nil {
		return 0
	}
	defer h.close()

	if err := h.sessions.Remove(sessionID); err != nil {
		h.logger.Warn("failed to remove session", "session_id", sessionID, "error", err)
	}
	return 0
}
