// Package skills implements the Allow-list Loader (C1) and Skill Dispatcher
// (C3) described in SPEC_FULL.md §4.1 and §4.3.
package skills

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pagi-systems/pagi-core/internal/vcs"
)

// AllowList enumerates skill names from a worker's skills directory,
// preferring the VCS-tracked view over a raw filesystem listing so that an
// on-disk untracked file cannot widen the trust boundary during
// development (SPEC_FULL.md §4.1).
type AllowList struct {
	skillsDir string
}

// NewAllowList builds a loader rooted at skillsDir (typically
// "<worker>/src/skills").
func NewAllowList(skillsDir string) *AllowList {
	return &AllowList{skillsDir: skillsDir}
}

// Load returns the ASCII-sorted, stem-only set of recognized skills.
// Returns an empty (non-nil) slice on an unreadable directory; this is not
// an error, it simply means every skill is currently permission-denied.
func (a *AllowList) Load() []string {
	if names := a.loadFromVCS(); len(names) > 0 {
		return names
	}
	return a.loadFromFilesystem()
}

func (a *AllowList) loadFromVCS() []string {
	tree, ok := findRepo(a.skillsDir)
	if !ok {
		return nil
	}
	rel, err := filepath.Rel(tree.Root(), a.skillsDir)
	if err != nil {
		return nil
	}
	files, ok := tree.TrackedFiles(rel)
	if !ok {
		return nil
	}
	var names []string
	for _, f := range files {
		base := filepath.Base(f)
		if name, ok := skillStem(base); ok {
			names = append(names, name)
		}
	}
	return dedupSort(names)
}

func (a *AllowList) loadFromFilesystem() []string {
	entries, err := os.ReadDir(a.skillsDir)
	if err != nil {
		return []string{}
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := skillStem(e.Name()); ok {
			names = append(names, name)
		}
	}
	return dedupSort(names)
}

func skillStem(filename string) (string, bool) {
	if !strings.HasSuffix(filename, ".py") {
		return "", false
	}
	if filename == "__init__.py" {
		return "", false
	}
	return strings.TrimSuffix(filename, ".py"), true
}

func dedupSort(names []string) []string {
	if names == nil {
		return []string{}
	}
	sort.Strings(names)
	out := names[:0]
	for i, n := range names {
		if i == 0 || n != names[i-1] {
			out = append(out, n)
		}
	}
	return out
}

// Hash computes the external allow-list-hash contract: hex SHA-256 over the
// canonical name sequence, each name terminated by '\n', nothing trailing.
func Hash(names []string) string {
	h := sha256.New()
	for _, n := range names {
		h.Write([]byte(n))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// findRepo walks upward from dir looking for a discoverable git working
// tree; a thin helper over vcs.Open since git.PlainOpenWithOptions already
// performs this walk with DetectDotGit.
func findRepo(dir string) (*vcs.Tree, bool) {
	return vcs.Open(dir)
}
