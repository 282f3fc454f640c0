// Package safety implements the Safety Governor (C2) — SPEC_FULL.md §4.2.
package safety

import (
	"strings"

	coreerrors "github.com/pagi-systems/pagi-core/internal/errors"
)

const maxSubQueryRunes = 10240

// ReasonRequest mirrors SPEC_FULL.md §3's ReasonRequest shape.
type ReasonRequest struct {
	SubQuery   string
	SubContext string
	Depth      int
}

// Governor admits or rejects reasoning and action requests. It performs no
// I/O and is purely synchronous in its decision, per SPEC_FULL.md §4.2.
type Governor struct {
	MaxDepth int
	HITLGate bool
}

// NewGovernor builds a Governor with the given policy.
func NewGovernor(maxDepth int, hitlGate bool) *Governor {
	return &Governor{MaxDepth: maxDepth, HITLGate: hitlGate}
}

// GuardReason implements guard_reason(req) -> req' | Reject.
func (g *Governor) GuardReason(req ReasonRequest) (ReasonRequest, error) {
	const op = "Governor.GuardReason"

	if req.Depth > g.MaxDepth {
		return ReasonRequest{}, coreerrors.New(op, coreerrors.InvalidArgument, "recursion depth exceeds maximum", nil)
	}
	if g.HITLGate && strings.Contains(req.SubQuery, "patch_core") {
		return ReasonRequest{}, coreerrors.New(op, coreerrors.PermissionDenied, "operation denied by HITL policy", nil)
	}

	req.SubQuery = sanitize(req.SubQuery)
	req.SubContext = sanitize(req.SubContext)
	return req, nil
}

// GuardActionDepth implements guard_action_depth(depth) -> OK | Reject.
func (g *Governor) GuardActionDepth(depth int) error {
	if depth > g.MaxDepth {
		return coreerrors.New("Governor.GuardActionDepth", coreerrors.InvalidArgument, "recursion depth exceeds maximum", nil)
	}
	return nil
}

// sanitize trims ASCII whitespace at both ends and truncates to at most
// maxSubQueryRunes Unicode scalar values (character count, not byte count).
func sanitize(s string) string {
	s = strings.Trim(s, " \t\n\r\v\f")
	runes := []rune(s)
	if len(runes) > maxSubQueryRunes {
		runes = runes[:maxSubQueryRunes]
	}
	return string(runes)
}
