// Package gitctx resolves the git repository and branch of a directory.
// The branch is read from the HEAD file so the capture hook does not fork
// git on every command; git itself is only used as a fallback.
package gitctx

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Context is the git context of a directory.
type Context struct {
	RepoRoot string
	Branch   string // empty when HEAD is detached or unknown
	Detached bool
	IsRepo   bool
}

// Lookup returns the git context for cwd. A directory outside any
// repository yields a Context with IsRepo false.
func Lookup(cwd string) *Context {
	ctx := &Context{}
	if cwd == "" {
		return ctx
	}

	root, gitDir, ok := findGitDir(canonicalizePath(cwd))
	if !ok {
		return ctx
	}
	ctx.IsRepo = true
	ctx.RepoRoot = root

	if branch, detached, err := readHead(gitDir); err == nil {
		ctx.Branch = branch
		ctx.Detached = detached
		return ctx
	}

	if branch, err := runGitCommand(cwd, "rev-parse", "--abbrev-ref", "HEAD"); err == nil && branch != "HEAD" {
		ctx.Branch = branch
	} else if err == nil {
		ctx.Detached = true
	}
	return ctx
}

// Branch returns the current branch of cwd, or "" if there is none.
func Branch(cwd string) string {
	return Lookup(cwd).Branch
}

// findGitDir walks up from dir to the nearest .git entry. A .git file (as
// used by worktrees and submodules) points at the real git directory.
func findGitDir(dir string) (root, gitDir string, ok bool) {
	for {
		candidate := filepath.Join(dir, ".git")
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return dir, candidate, true
			}
			if target, err := readGitFile(candidate); err == nil {
				if !filepath.IsAbs(target) {
					target = filepath.Join(dir, target)
				}
				return dir, target, true
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", "", false
		}
		dir = parent
	}
}

func readGitFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(string(data))
	target, found := strings.CutPrefix(line, "gitdir:")
	if !found {
		return "", os.ErrInvalid
	}
	return strings.TrimSpace(target), nil
}

// readHead parses HEAD: "ref: refs/heads/<branch>" or a detached hash.
func readHead(gitDir string) (branch string, detached bool, err error) {
	data, err := os.ReadFile(filepath.Join(gitDir, "HEAD"))
	if err != nil {
		return "", false, err
	}
	head := strings.TrimSpace(string(data))
	if ref, ok := strings.CutPrefix(head, "ref:"); ok {
		ref = strings.TrimSpace(ref)
		return strings.TrimPrefix(ref, "refs/heads/"), false, nil
	}
	if head == "" {
		return "", false, os.ErrInvalid
	}
	return "", true, nil
}

// runGitCommand runs a git command in the specified directory.
func runGitCommand(cwd string, args ...string) (string, error) {
	cmd := exec.Command("git", args...) //nolint:gosec // git args are controlled by caller
	cmd.Dir = cwd

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(stdout.String()), nil
}

// canonicalizePath resolves symlinks so the same checkout always maps to
// the same root.
func canonicalizePath(path string) string {
	canonical, err := filepath.EvalSymlinks(path)
	if err != nil {
		return path
	}
	return canonical
}
