package patch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/pagi-systems/pagi-core/internal/errors"
	"github.com/pagi-systems/pagi-core/internal/memory"
	"github.com/pagi-systems/pagi-core/internal/skills"
)

func newTestLifecycle(t *testing.T, opts ...Option) (*Lifecycle, string) {
	t.Helper()
	registry := t.TempDir()
	serverTree := t.TempDir()
	workerTree := t.TempDir()

	mem := memory.NewStore(context.Background(), memory.Config{Disabled: true}, nil)
	al := skills.NewAllowList(filepath.Join(workerTree, "src", "skills"))
	d := skills.NewDispatcher(al, workerTree, filepath.Join(t.TempDir(), "agent_actions.log"))

	store := NewStore()
	opts = append([]Option{WithSkipApplyTest(true)}, opts...)
	lc := NewLifecycle(store, mem, d, registry, serverTree, workerTree, opts...)
	return lc, registry
}

func TestPropose_ServerComponentRequiresHITL(t *testing.T) {
	lc, _ := newTestLifecycle(t)
	result, err := lc.Propose(context.Background(), PatchRequest{ErrorTrace: "boom\nframe2", Component: serverComponent})
	require.NoError(t, err)
	assert.True(t, result.RequiresHITL)
	assert.NotEmpty(t, result.PatchID)
	assert.Contains(t, result.ProposedCode, "boom")
}

func TestApply_HITLDenialWithoutApprovalOrFlag(t *testing.T) {
	lc, _ := newTestLifecycle(t)
	proposed, err := lc.Propose(context.Background(), PatchRequest{ErrorTrace: "x", Component: serverComponent})
	require.NoError(t, err)

	_, err = lc.Apply(context.Background(), ApplyRequest{PatchID: proposed.PatchID, Approved: false})
	require.Error(t, err)
}

func TestApply_WithoutAutoCommit(t *testing.T) {
	lc, registry := newTestLifecycle(t, WithAutoCommit(false))
	proposed, err := lc.Propose(context.Background(), PatchRequest{ErrorTrace: "x", Component: serverComponent})
	require.NoError(t, err)

	result, err := lc.Apply(context.Background(), ApplyRequest{PatchID: proposed.PatchID, Approved: true})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.CommitHash)

	_, ok := os.Stat(filepath.Join(registry, ".git"))
	_ = ok // no commit means no meaningful head; absence of .git is acceptable too
}

func TestApply_WithAutoCommit(t *testing.T) {
	lc, registry := newTestLifecycle(t, WithAutoCommit(true))
	proposed, err := lc.Propose(context.Background(), PatchRequest{ErrorTrace: "x", Component: serverComponent})
	require.NoError(t, err)

	result, err := lc.Apply(context.Background(), ApplyRequest{PatchID: proposed.PatchID, Approved: true})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, result.CommitHash, 40)

	patchFile := filepath.Join(registry, "patches", "patch_"+proposed.PatchID+".go")
	_, err = os.Stat(patchFile)
	require.NoError(t, err)

	// patch_id is valid for exactly one successful Apply (I4).
	_, err = lc.Apply(context.Background(), ApplyRequest{PatchID: proposed.PatchID, Approved: true})
	require.Error(t, err)
}

func TestApply_ForcedTestFailure(t *testing.T) {
	lc, _ := newTestLifecycle(t, WithForceTestFailure(true))
	proposed, err := lc.Propose(context.Background(), PatchRequest{ErrorTrace: "x", Component: "python_skill"})
	require.NoError(t, err)

	_, err = lc.Apply(context.Background(), ApplyRequest{PatchID: proposed.PatchID, Approved: true})
	require.Error(t, err)
}

func TestApply_UnknownPatchIDIsNotFound(t *testing.T) {
	lc, _ := newTestLifecycle(t)
	_, err := lc.Apply(context.Background(), ApplyRequest{PatchID: "does-not-exist", Approved: true})
	require.Error(t, err)
	assert.True(t, coreerrors.IsNotFound(err))
}
