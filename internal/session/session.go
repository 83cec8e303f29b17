// Package session carries the per-shell context passed into every engine
// call: the session id, working directory, and any active flow. The CLI
// persists it between invocations with FileStore.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidID is returned for session ids that are empty or unsafe as
// file names.
var ErrInvalidID = errors.New("invalid session id")

// Context is the explicit per-session state.
type Context struct {
	SessionID   string `json:"session_id"`
	CWD         string `json:"cwd,omitempty"`
	GitBranch   string `json:"git_branch,omitempty"`
	ProjectType string `json:"project_type,omitempty"`

	// Set while a flow is active.
	FlowFocus     string     `json:"flow_focus,omitempty"`
	FlowStartedAt *time.Time `json:"flow_started_at,omitempty"`
}

// InFlow reports whether a flow is active.
func (c Context) InFlow() bool {
	return c.FlowStartedAt != nil
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.NewString()
}

// New returns a context for a new session rooted at cwd.
func New(cwd string) Context {
	return Context{SessionID: NewID(), CWD: cwd}
}

var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidID reports whether id can be used as a session id.
func ValidID(id string) bool {
	return validID.MatchString(id)
}

// FileStore persists contexts as one JSON file per session.
type FileStore struct {
	dir string
}

// NewFileStore creates a store under dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(id string) (string, error) {
	if !ValidID(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(s.dir, id+".json"), nil
}

// Load returns the stored context for id. A missing file yields a fresh
// context with only the id set.
func (s *FileStore) Load(id string) (Context, error) {
	path, err := s.path(id)
	if err != nil {
		return Context{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Context{SessionID: id}, nil
		}
		return Context{}, fmt.Errorf("failed to read session file: %w", err)
	}

	var c Context
	if err := json.Unmarshal(data, &c); err != nil {
		return Context{}, fmt.Errorf("failed to parse session file: %w", err)
	}
	c.SessionID = id
	return c, nil
}

// Save writes the context, creating the directory with 0700 permissions.
func (s *FileStore) Save(c Context) error {
	path, err := s.path(c.SessionID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// Remove deletes the stored context. Removing a missing session is not an
// error.
func (s *FileStore) Remove(id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
