package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anivar/termbrain-sub001/internal/config"
	"github.com/anivar/termbrain-sub001/internal/session"
)

func TestSessionStartEnd(t *testing.T) {
	setupEnv(t)
	t.Setenv("TB_CWD", "/work")

	var out, errOut bytes.Buffer
	code := run([]string{"session-start"}, strings.NewReader(""), &out, &errOut)
	require.Equal(t, 0, code, errOut.String())

	id := strings.TrimSpace(out.String())
	require.True(t, session.ValidID(id), "invalid session id %q", id)

	store := session.NewFileStore(config.DefaultPaths().SessionDir())
	sess, err := store.Load(id)
	require.NoError(t, err)
	assert.Equal(t, "/work", sess.CWD)

	t.Setenv("TB_SESSION_ID", id)
	code = run([]string{"session-end"}, strings.NewReader(""), &out, &errOut)
	require.Equal(t, 0, code, errOut.String())

	sess, err = store.Load(id)
	require.NoError(t, err)
	assert.Empty(t, sess.CWD)
}

func TestSessionStart_RejectsFlags(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"session-start", "--bogus"}, strings.NewReader(""), &out, &errOut)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "unknown flag: --bogus")
	assert.Empty(t, out.String())
}

func TestSessionEnd_RequiresSession(t *testing.T) {
	setupEnv(t)
	t.Setenv("TB_SESSION_ID", "")

	var out, errOut bytes.Buffer
	code := run([]string{"session-end"}, strings.NewReader(""), &out, &errOut)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "TB_SESSION_ID is required")
}
