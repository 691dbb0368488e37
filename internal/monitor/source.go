package monitor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ChangeSource is the version-control adapter the monitor polls. The core
// only needs head comparison and pull; how the adapter talks to its backend
// is its own business.
type ChangeSource interface {
	// FetchHead refreshes remote state and returns the remote head commit id.
	FetchHead(ctx context.Context) (string, error)
	// LocalHead returns the commit id of the local working copy.
	LocalHead(ctx context.Context) (string, error)
	// HasNewCommits reports whether remote has moved past local.
	HasNewCommits(local, remote string) bool
	// Pull updates the local working copy to the remote head of branch.
	Pull(ctx context.Context, branch string) error
}

// GitSource is the default ChangeSource: a local clone driven through the
// git CLI.
type GitSource struct {
	// Dir is the path of the local working copy.
	Dir string
	// Remote defaults to origin.
	Remote string
	// Branch is the branch being watched.
	Branch string
}

// NewGitSource creates a GitSource for the given working copy and branch.
func NewGitSource(dir, branch string) *GitSource {
	return &GitSource{Dir: dir, Remote: "origin", Branch: branch}
}

func (g *GitSource) remote() string {
	if g.Remote == "" {
		return "origin"
	}
	return g.Remote
}

func (g *GitSource) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.Dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// FetchHead implements ChangeSource.
func (g *GitSource) FetchHead(ctx context.Context) (string, error) {
	if _, err := g.git(ctx, "fetch", g.remote(), g.Branch); err != nil {
		return "", err
	}
	return g.git(ctx, "rev-parse", g.remote()+"/"+g.Branch)
}

// LocalHead implements ChangeSource.
func (g *GitSource) LocalHead(ctx context.Context) (string, error) {
	return g.git(ctx, "rev-parse", "HEAD")
}

// HasNewCommits implements ChangeSource.
func (g *GitSource) HasNewCommits(local, remote string) bool {
	return local != "" && remote != "" && local != remote
}

// Pull implements ChangeSource.
func (g *GitSource) Pull(ctx context.Context, branch string) error {
	_, err := g.git(ctx, "pull", g.remote(), branch)
	return err
}
