package action

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/pagi-systems/pagi-core/internal/errors"
	"github.com/pagi-systems/pagi-core/internal/skills"
)

func newTestEndpoint(t *testing.T, allowReal bool) *Endpoint {
	t.Helper()
	worker := t.TempDir()
	al := skills.NewAllowList(filepath.Join(worker, "src", "skills"))
	d := skills.NewDispatcher(al, worker, filepath.Join(t.TempDir(), "agent_actions.log"))
	return &Endpoint{Dispatcher: d, MaxDepth: 5, AllowRealDispatch: allowReal}
}

func TestExecuteAction_MockFallbackWhenRealDispatchDisabled(t *testing.T) {
	e := newTestEndpoint(t, false)
	resp, err := e.ExecuteAction(context.Background(), skills.ActionRequest{SkillName: "unknown_skill", MockMode: false})
	require.NoError(t, err)
	assert.Equal(t, "Observation: mock executed skill=unknown_skill", resp.Observation)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Error)
}

func TestExecuteAction_ExplicitMock(t *testing.T) {
	e := newTestEndpoint(t, true)
	resp, err := e.ExecuteAction(context.Background(), skills.ActionRequest{SkillName: "peek_file", MockMode: true})
	require.NoError(t, err)
	assert.Equal(t, "Observation: mock executed skill=peek_file", resp.Observation)
	assert.True(t, resp.Success)
}

func TestExecuteAction_DepthOverflowIsInvalidArgument(t *testing.T) {
	e := newTestEndpoint(t, false)
	_, err := e.ExecuteAction(context.Background(), skills.ActionRequest{SkillName: "x", Depth: 6})
	require.Error(t, err)
	assert.True(t, coreerrors.IsInvalidArgument(err))
}
