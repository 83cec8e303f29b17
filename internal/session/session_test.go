package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	t.Parallel()

	a, b := NewID(), NewID()
	assert.NotEqual(t, a, b)
	assert.True(t, ValidID(a))
}

func TestValidID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id   string
		want bool
	}{
		{"6f1d2c3b-0000-4000-8000-123456789abc", true},
		{"zsh_1234", true},
		{"", false},
		{"../etc/passwd", false},
		{"a/b", false},
		{".hidden", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidID(tt.id), tt.id)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	t.Parallel()

	store := NewFileStore(filepath.Join(t.TempDir(), "sessions"))
	started := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	c := New("/repo")
	c.GitBranch = "main"
	c.FlowFocus = "refactor"
	c.FlowStartedAt = &started
	require.NoError(t, store.Save(c))

	got, err := store.Load(c.SessionID)
	require.NoError(t, err)
	assert.Equal(t, c.SessionID, got.SessionID)
	assert.Equal(t, "/repo", got.CWD)
	assert.Equal(t, "main", got.GitBranch)
	assert.True(t, got.InFlow())
	assert.True(t, started.Equal(*got.FlowStartedAt))

	require.NoError(t, store.Remove(c.SessionID))
	require.NoError(t, store.Remove(c.SessionID))

	fresh, err := store.Load(c.SessionID)
	require.NoError(t, err)
	assert.Equal(t, Context{SessionID: c.SessionID}, fresh)
}

func TestFileStore_RejectsUnsafeID(t *testing.T) {
	t.Parallel()

	store := NewFileStore(t.TempDir())
	_, err := store.Load("../x")
	assert.ErrorIs(t, err, ErrInvalidID)
	assert.ErrorIs(t, store.Save(Context{SessionID: ""}), ErrInvalidID)
}
