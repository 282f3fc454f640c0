package skills

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/pagi-systems/pagi-core/internal/errors"
)

func newTestDispatcher(t *testing.T, skillNames ...string) (*Dispatcher, string) {
	t.Helper()
	worker := t.TempDir()
	skillsDir := filepath.Join(worker, "src", "skills")
	for _, n := range skillNames {
		writeSkillFiles(t, skillsDir, n+".py")
	}
	al := NewAllowList(skillsDir)
	actionLog := filepath.Join(t.TempDir(), "agent_actions.log")
	return NewDispatcher(al, worker, actionLog), worker
}

func TestExecute_UnknownSkillIsPermissionDenied(t *testing.T) {
	d, _ := newTestDispatcher(t, "peek_file")
	_, err := d.Execute(context.Background(), ActionRequest{SkillName: "skill_not_in_registry"}, nil)
	require.Error(t, err)
	assert.True(t, coreerrors.IsPermissionDenied(err))
	assert.Contains(t, err.Error(), "Skill not in registry")
}

func TestExecute_AllowListHashMismatchIsInvalidArgument(t *testing.T) {
	d, _ := newTestDispatcher(t, "peek_file")
	_, err := d.Execute(context.Background(), ActionRequest{SkillName: "peek_file", AllowListHash: "deadbeef"}, nil)
	require.Error(t, err)
	assert.True(t, coreerrors.IsInvalidArgument(err))
}

func TestExecute_MissingRunnerIsNotFound(t *testing.T) {
	d, worker := newTestDispatcher(t, "peek_file")
	_, err := os.Stat(filepath.Join(worker, "scripts", "run_skill.py"))
	require.Error(t, err) // sanity: runner really is absent

	_, err = d.Execute(context.Background(), ActionRequest{SkillName: "peek_file"}, nil)
	require.Error(t, err)
	assert.True(t, coreerrors.IsNotFound(err))
}
