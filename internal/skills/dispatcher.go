package skills

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	coreerrors "github.com/pagi-systems/pagi-core/internal/errors"
	"github.com/pagi-systems/pagi-core/internal/logging"
	"github.com/pagi-systems/pagi-core/internal/resilience"
)

const defaultDispatchTimeout = 5000 * time.Millisecond

// ActionRequest mirrors SPEC_FULL.md §3's ActionRequest shape.
type ActionRequest struct {
	SkillName     string
	Params        map[string]string
	Depth         int
	ReasoningID   string
	MockMode      bool
	AllowListHash string
	TimeoutMS     int
}

// ActionResponse mirrors the dispatcher's observation/error/success shape.
// Per §4.3 step 7, a timeout is an observation, not a transport error: the
// function returns a zero error with Success=false in that case.
type ActionResponse struct {
	Observation string
	Success     bool
	Error       string
}

// Dispatcher is the Skill Dispatcher (C3).
type Dispatcher struct {
	AllowList *AllowList
	WorkerDir string
	ActionLog string
	mu        sync.Mutex // serializes action-log appends

	breaker *resilience.CircuitBreaker
}

// NewDispatcher builds a dispatcher for the worker tree at workerDir,
// logging agent actions to actionLog (default "agent_actions.log"). Child
// process invocations run behind a circuit breaker so a runner that is
// wedged or missing entirely (bad worker tree, interpreter not on PATH)
// fails fast instead of spending every caller's timeout budget probing it.
func NewDispatcher(allowList *AllowList, workerDir, actionLog string) *Dispatcher {
	return &Dispatcher{
		AllowList: allowList,
		WorkerDir: workerDir,
		ActionLog: actionLog,
		breaker:   resilience.New(resilience.DefaultConfig("skill_dispatcher")),
	}
}

// Execute runs SPEC_FULL.md §4.3's algorithm end to end.
func (d *Dispatcher) Execute(ctx context.Context, req ActionRequest, logger logging.Logger) (*ActionResponse, error) {
	const op = "Dispatcher.Execute"

	names := d.AllowList.Load()
	if !contains(names, req.SkillName) {
		return nil, coreerrors.New(op, coreerrors.PermissionDenied, "Skill not in registry", nil)
	}

	h := Hash(names)
	if req.AllowListHash != "" && req.AllowListHash != h {
		return nil, coreerrors.New(op, coreerrors.InvalidArgument, "Allow-list mismatch", nil)
	}

	timeout := defaultDispatchTimeout
	if req.TimeoutMS > 0 {
		timeout = time.Duration(req.TimeoutMS) * time.Millisecond
	}

	runnerPath := filepath.Join(d.WorkerDir, "scripts", "run_skill.py")
	if _, err := os.Stat(runnerPath); err != nil {
		return nil, coreerrors.New(op, coreerrors.NotFound, "skill runner not found", err)
	}

	paramsJSON, err := json.Marshal(req.Params)
	if err != nil {
		paramsJSON = []byte("{}")
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var resp *ActionResponse
	breakerErr := d.breaker.Execute(runCtx, func() error {
		resp = d.run(runCtx, runnerPath, req.SkillName, string(paramsJSON))
		if !resp.Success {
			return fmt.Errorf("skill run failed: %s", resp.Error)
		}
		return nil
	})
	if errors.Is(breakerErr, resilience.ErrOpen) {
		return nil, coreerrors.New(op, coreerrors.FailedPrecondition, "skill dispatcher circuit open after repeated failures", breakerErr)
	}

	d.appendActionLog(req.ReasoningID, req.SkillName, resp)
	if logger != nil {
		logger.InfoWithContext(ctx, "skill dispatched", map[string]interface{}{
			"skill_name": req.SkillName,
			"success":    resp.Success,
		})
	}
	return resp, nil
}

// childHandle holds the spawned *exec.Cmd so that both the timeout branch
// and upstream cancellation can kill it exactly once (SPEC_FULL.md §9,
// "Child process as a resource").
type childHandle struct {
	once sync.Once
	cmd  *exec.Cmd
}

func (c *childHandle) kill() {
	c.once.Do(func() {
		if c.cmd != nil && c.cmd.Process != nil {
			_ = c.cmd.Process.Kill()
		}
	})
}

func (d *Dispatcher) run(ctx context.Context, runnerPath, skillName, paramsJSON string) *ActionResponse {
	cmd := exec.Command("python", runnerPath, skillName, paramsJSON)
	cmd.Dir = d.WorkerDir
	cmd.Env = os.Environ()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return &ActionResponse{Success: false, Error: err.Error()}
	}

	handle := &childHandle{cmd: cmd}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		handle.kill()
		<-done // reap
		return &ActionResponse{Success: false, Error: "Execution timed out"}
	case err := <-done:
		observation := strings.TrimSpace(stdout.String())
		if err == nil {
			return &ActionResponse{Observation: observation, Success: true, Error: ""}
		}
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			if exitErr, ok := err.(*exec.ExitError); ok {
				errMsg = strconv.Itoa(exitErr.ExitCode())
			} else {
				errMsg = err.Error()
			}
		}
		return &ActionResponse{Observation: observation, Success: false, Error: errMsg}
	}
}

func (d *Dispatcher) appendActionLog(reasoningID, skillName string, resp *ActionResponse) {
	d.mu.Lock()
	defer d.mu.Unlock()

	f, err := os.OpenFile(d.ActionLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return // log-open failure is silently tolerated
	}
	defer f.Close()

	outcome := resp.Observation
	if !resp.Success {
		outcome = resp.Error
	}
	line := fmt.Sprintf("ACTION %s %s -> %s\n", reasoningID, skillName, outcome)
	_, _ = f.WriteString(line)
}

func contains(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}
