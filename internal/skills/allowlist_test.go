package skills

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSkillFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("# skill"), 0o644))
	}
}

func TestAllowList_FilesystemFallback(t *testing.T) {
	dir := t.TempDir()
	writeSkillFiles(t, dir, "__init__.py", "peek_file.py", "sleep.py", "notes.txt")

	al := NewAllowList(dir)
	names := al.Load()
	assert.Equal(t, []string{"peek_file", "sleep"}, names)
}

func TestAllowList_EmptyOnUnreadableDir(t *testing.T) {
	al := NewAllowList(filepath.Join(t.TempDir(), "does-not-exist"))
	names := al.Load()
	assert.Equal(t, []string{}, names)
}

func TestHash_RoundTripIsBitIdentical(t *testing.T) {
	names := []string{"alpha", "beta", "gamma"}
	h1 := Hash(names)
	h2 := Hash(append([]string{}, names...))
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64) // hex SHA-256
}

func TestHash_ChangesWithContent(t *testing.T) {
	assert.NotEqual(t, Hash([]string{"a"}), Hash([]string{"b"}))
}
