package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagi-systems/pagi-core/internal/vcs"
)

func TestWatcher_CommitsOnDirtyTick(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.txt"), []byte("hi"), 0o644))

	w := NewWatcher(dir, 20*time.Millisecond, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	tree, ok := vcs.Open(dir)
	require.True(t, ok)
	msg, err := tree.HeadMessage()
	require.NoError(t, err)
	assert.Equal(t, "Auto-commit self-patch (L6 traceability)", msg)
}

func TestWatcher_NoCommitWhenClean(t *testing.T) {
	dir := t.TempDir()
	tree, err := vcs.OpenOrInit(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.txt"), []byte("hi"), 0o644))
	_, err = tree.StagePath("note.txt", "seed")
	require.NoError(t, err)

	before, err := tree.HeadMessage()
	require.NoError(t, err)

	w := NewWatcher(dir, 20*time.Millisecond, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	after, err := tree.HeadMessage()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
