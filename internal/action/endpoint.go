// Package action implements the Action Endpoint (C8), SPEC_FULL.md §4.9.
package action

import (
	"context"
	"fmt"

	coreerrors "github.com/pagi-systems/pagi-core/internal/errors"
	"github.com/pagi-systems/pagi-core/internal/logging"
	"github.com/pagi-systems/pagi-core/internal/skills"
)

// Endpoint is the admission + mock/real mode selector in front of the
// Skill Dispatcher (C3).
type Endpoint struct {
	Dispatcher        *skills.Dispatcher
	MaxDepth          int
	MockModeEnv       bool
	AllowRealDispatch bool
	Logger            logging.Logger
}

// ExecuteAction implements SPEC_FULL.md §4.9's admission order.
func (e *Endpoint) ExecuteAction(ctx context.Context, req skills.ActionRequest) (*skills.ActionResponse, error) {
	const op = "Endpoint.ExecuteAction"

	if req.Depth > e.MaxDepth {
		return nil, coreerrors.New(op, coreerrors.InvalidArgument, "recursion depth exceeds maximum", nil)
	}

	mock := req.MockMode || e.MockModeEnv || !e.AllowRealDispatch
	if mock {
		return &skills.ActionResponse{
			Observation: fmt.Sprintf("Observation: mock executed skill=%s", req.SkillName),
			Success:     true,
			Error:       "",
		}, nil
	}

	return e.Dispatcher.Execute(ctx, req, e.Logger)
}
