package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBool_TruthySet(t *testing.T) {
	for _, v := range []string{"true", "TRUE", "1", "yes", "Yes", "on", "y", "Y"} {
		assert.True(t, parseBool(v), v)
	}
	for _, v := range []string{"false", "0", "no", "off", "n", ""} {
		assert.False(t, parseBool(v), v)
	}
}

func TestGetInt_DefaultsOnParseFailure(t *testing.T) {
	os.Setenv("PAGI_TEST_INT", "not-a-number")
	defer os.Unsetenv("PAGI_TEST_INT")
	assert.Equal(t, 42, getInt("PAGI_TEST_INT", 42))
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	c := LoadFromEnv()
	assert.Equal(t, 50051, c.Port)
	assert.Equal(t, 5, c.MaxRecursionDepth)
	assert.True(t, c.HITLGate)
	assert.True(t, c.AutoCommitSelfPatch)
	assert.False(t, c.AutoEvolveSkills)
	assert.Equal(t, "approve.patch", c.ApproveFlagName)
	assert.Equal(t, 1536, c.EmbeddingDim)
	assert.Equal(t, "http://localhost:6334", c.QdrantURI)
}

func TestApplyFileOverlay_SetsUnsetEnvVars(t *testing.T) {
	defer os.Unsetenv("PAGI_TEST_OVERLAY_PORT")
	os.Unsetenv("PAGI_TEST_OVERLAY_PORT")

	path := filepath.Join(t.TempDir(), "pagicore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("PAGI_TEST_OVERLAY_PORT: \"9999\"\n"), 0o644))

	applyFileOverlay(path)
	assert.Equal(t, "9999", os.Getenv("PAGI_TEST_OVERLAY_PORT"))
}

func TestApplyFileOverlay_EnvVarTakesPrecedence(t *testing.T) {
	os.Setenv("PAGI_TEST_OVERLAY_DEPTH", "explicit")
	defer os.Unsetenv("PAGI_TEST_OVERLAY_DEPTH")

	path := filepath.Join(t.TempDir(), "pagicore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("PAGI_TEST_OVERLAY_DEPTH: \"from-file\"\n"), 0o644))

	applyFileOverlay(path)
	assert.Equal(t, "explicit", os.Getenv("PAGI_TEST_OVERLAY_DEPTH"))
}

func TestApplyFileOverlay_MissingFileIsNotAnError(t *testing.T) {
	applyFileOverlay(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
}
