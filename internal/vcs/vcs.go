// Package vcs wraps go-git behind the single shape every spec.md component
// that touches a working tree needs: open-or-init, list tracked files at
// HEAD, stage one path or everything, and commit with a fixed identity.
//
// Design Note (SPEC_FULL.md §9, "VCS library cycles"): each Tree owns one
// long-lived *git.Repository behind a mutex, so the registry watcher (C7)
// and the patch lifecycle (C6) never race on the same index even though
// both may hold a reference to the same Tree.
package vcs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Identity is the fixed author/committer used for every commit this system
// makes. It is deliberately constant and is not a security boundary.
var Identity = object.Signature{
	Name:  "Sovereign Architect",
	Email: "agi@core",
}

// Tree is a working tree this process may read tracked files from and
// commit to.
type Tree struct {
	mu   sync.Mutex
	root string
	repo *git.Repository
}

// Open opens root as a git working tree if one already exists there or in a
// parent directory; it does not create one. Returns (nil, false) if no
// repository is discoverable, which is not an error for read-only callers
// (C1 falls back to plain filesystem enumeration in that case).
func Open(root string) (*Tree, bool) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, false
	}
	// The repository may have been found in a parent directory; record the
	// actual working-tree root so Root() and tracked paths agree.
	if wt, err := repo.Worktree(); err == nil {
		root = wt.Filesystem.Root()
	}
	return &Tree{root: root, repo: repo}, true
}

// OpenOrInit opens root as a working tree, initializing a new repository
// there if none exists yet. Used by C6 (patch persist/commit) and C7
// (registry watcher), both of which must be able to commit even on a fresh
// checkout of the registry directory.
func OpenOrInit(root string) (*Tree, error) {
	if t, ok := Open(root); ok {
		return t, nil
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("vcs: mkdir %s: %w", root, err)
	}
	repo, err := git.PlainInit(root, false)
	if err != nil {
		return nil, fmt.Errorf("vcs: init %s: %w", root, err)
	}
	return &Tree{root: root, repo: repo}, nil
}

// Root returns the working-tree root this Tree was opened against.
func (t *Tree) Root() string { return t.root }

var (
	sharedMu    sync.Mutex
	sharedTrees = map[string]*Tree{}
)

// Shared returns the one *Tree this process uses for root, opening or
// initializing it on first call and handing back the cached instance on
// every subsequent call. C6 (patch lifecycle) and C7 (registry watcher)
// both commit into the same registry path and must go through Shared
// rather than OpenOrInit directly, so that every staging/commit operation
// against that path serializes through the one Tree's mutex instead of
// each caller racing its own *git.Repository handle.
func Shared(root string) (*Tree, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}

	sharedMu.Lock()
	defer sharedMu.Unlock()
	if t, ok := sharedTrees[abs]; ok {
		return t, nil
	}
	t, err := OpenOrInit(root)
	if err != nil {
		return nil, err
	}
	sharedTrees[abs] = t
	return t, nil
}

// TrackedFiles lists the relative paths of every blob tracked at HEAD whose
// path lies under subpath (relative to the repository root, "" for all).
// Returns (nil, false) if there is no HEAD commit yet (empty repository).
func (t *Tree) TrackedFiles(subpath string) ([]string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	head, err := t.repo.Head()
	if err != nil {
		return nil, false
	}
	commit, err := t.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, false
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, false
	}

	prefix := strings.Trim(filepath.ToSlash(subpath), "/")
	var out []string
	iter := tree.Files()
	defer iter.Close()
	err = iter.ForEach(func(f *object.File) error {
		if prefix != "" && !strings.HasPrefix(f.Name, prefix+"/") {
			return nil
		}
		out = append(out, f.Name)
		return nil
	})
	if err != nil {
		return nil, false
	}
	sort.Strings(out)
	return out, true
}

// StagePath stages exactly one path (relative to the tree root) and commits
// it with the fixed Identity and the given message. Returns the commit hash
// in hex. relPath must already exist on disk.
func (t *Tree) StagePath(relPath, message string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	wt, err := t.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("vcs: worktree: %w", err)
	}
	if _, err := wt.Add(filepath.ToSlash(relPath)); err != nil {
		return "", fmt.Errorf("vcs: add %s: %w", relPath, err)
	}
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author:    &Identity,
		Committer: &Identity,
		Now:       time.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("vcs: commit: %w", err)
	}
	return hash.String(), nil
}

// CommitAllIfDirty stages every change in the tree and, only if that leaves
// something staged relative to HEAD, commits with the fixed Identity.
// Returns ("", false, nil) when there was nothing to commit.
func (t *Tree) CommitAllIfDirty(message string) (string, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	wt, err := t.repo.Worktree()
	if err != nil {
		return "", false, fmt.Errorf("vcs: worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return "", false, fmt.Errorf("vcs: status: %w", err)
	}
	if status.IsClean() {
		return "", false, nil
	}
	if _, err := wt.Add("."); err != nil {
		return "", false, fmt.Errorf("vcs: add .: %w", err)
	}
	status, err = wt.Status()
	if err != nil {
		return "", false, fmt.Errorf("vcs: status: %w", err)
	}
	if status.IsClean() {
		return "", false, nil
	}
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author:    &Identity,
		Committer: &Identity,
		Now:       time.Now(),
	})
	if err != nil {
		return "", false, fmt.Errorf("vcs: commit: %w", err)
	}
	return hash.String(), true, nil
}

// HeadMessage returns the commit message at HEAD, for tests that assert on
// commit provenance.
func (t *Tree) HeadMessage() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	head, err := t.repo.Head()
	if err != nil {
		return "", err
	}
	commit, err := t.repo.CommitObject(head.Hash())
	if err != nil {
		return "", err
	}
	return commit.Message, nil
}
