package patch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	coreerrors "github.com/pagi-systems/pagi-core/internal/errors"
	"github.com/pagi-systems/pagi-core/internal/skills"
)

const evolvedPathPrefix = "EVOLVED_PATH:"

// autoEvolveFromPatch implements SPEC_FULL.md §4.7, invoked best-effort
// from Apply step 7.
func (lc *Lifecycle) autoEvolveFromPatch(ctx context.Context, patchFilePath string) error {
	const op = "Lifecycle.autoEvolve"

	content, err := os.ReadFile(patchFilePath)
	if err != nil {
		return coreerrors.New(op, coreerrors.Internal, "could not read persisted patch", err)
	}

	names := lc.dispatcher.AllowList.Load()
	resp, err := lc.dispatcher.Execute(ctx, skills.ActionRequest{
		SkillName:     "evolve_skill_from_patch",
		Params:        map[string]string{"patch_content": string(content)},
		TimeoutMS:     15000,
		AllowListHash: skills.Hash(names),
	}, lc.logger)
	if err != nil {
		return coreerrors.New(op, coreerrors.Internal, "evolve dispatch failed", err)
	}
	if !resp.Success || !strings.HasPrefix(resp.Observation, evolvedPathPrefix) {
		return coreerrors.New(op, coreerrors.Internal, "malformed evolve observation", nil)
	}

	relPath := strings.TrimSpace(strings.TrimPrefix(resp.Observation, evolvedPathPrefix))
	relPath = filepath.ToSlash(relPath)
	if relPath == "" {
		return coreerrors.New(op, coreerrors.Internal, "empty evolved path", nil)
	}

	tree, err := lc.workerTreeFn()
	if err != nil {
		return coreerrors.New(op, coreerrors.Internal, "could not open worker as VCS tree", err)
	}
	_, err = tree.StagePath(relPath, "Auto-evolved skill from self-patch")
	if err != nil {
		return coreerrors.New(op, coreerrors.Internal, fmt.Sprintf("commit failed for %s", relPath), err)
	}
	return nil
}
