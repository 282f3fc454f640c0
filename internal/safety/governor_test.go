package safety

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/pagi-systems/pagi-core/internal/errors"
)

func TestGuardReason_DepthBoundary(t *testing.T) {
	g := NewGovernor(5, true)

	_, err := g.GuardReason(ReasonRequest{Depth: 5})
	require.NoError(t, err)

	_, err = g.GuardReason(ReasonRequest{Depth: 6})
	require.Error(t, err)
	assert.True(t, coreerrors.IsInvalidArgument(err))
}

func TestGuardReason_Sanitizes(t *testing.T) {
	g := NewGovernor(5, true)
	req, err := g.GuardReason(ReasonRequest{SubQuery: "  hello  ", SubContext: " ctx ", Depth: 0})
	require.NoError(t, err)
	assert.Equal(t, "hello", req.SubQuery)
	assert.Equal(t, "ctx", req.SubContext)
}

func TestGuardReason_TruncatesAtExactly10240(t *testing.T) {
	g := NewGovernor(5, false)

	exact := strings.Repeat("a", 10240)
	req, err := g.GuardReason(ReasonRequest{SubQuery: exact})
	require.NoError(t, err)
	assert.Equal(t, 10240, len([]rune(req.SubQuery)))
	assert.Equal(t, exact, req.SubQuery)

	over := strings.Repeat("a", 10241)
	req, err = g.GuardReason(ReasonRequest{SubQuery: over})
	require.NoError(t, err)
	assert.Equal(t, 10240, len([]rune(req.SubQuery)))
}

func TestGuardReason_DeniesPatchCoreWhenHITLOn(t *testing.T) {
	g := NewGovernor(5, true)
	_, err := g.GuardReason(ReasonRequest{SubQuery: "patch_core apply"})
	require.Error(t, err)
	assert.True(t, coreerrors.IsPermissionDenied(err))
}

func TestGuardReason_AllowsPatchCoreWhenHITLOff(t *testing.T) {
	g := NewGovernor(5, false)
	_, err := g.GuardReason(ReasonRequest{SubQuery: "patch_core apply"})
	require.NoError(t, err)
}

func TestGuardActionDepth(t *testing.T) {
	g := NewGovernor(5, true)
	require.NoError(t, g.GuardActionDepth(5))
	require.Error(t, g.GuardActionDepth(6))
}
