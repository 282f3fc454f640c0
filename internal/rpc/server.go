// Package rpc realizes the remote-call surface named in SPEC_FULL.md §6 as
// an HTTP+JSON capability service, adapted from the teacher's
// core.BaseTool mux/capability-registration idiom (core/tool.go):
// Recovery -> Logging -> CORS middleware order, one handler per method
// under /api/capabilities/<Method>, plus /health. Hand-rolled gRPC was
// rejected for this surface; see DESIGN.md.
package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pagi-systems/pagi-core/internal/action"
	coreerrors "github.com/pagi-systems/pagi-core/internal/errors"
	"github.com/pagi-systems/pagi-core/internal/logging"
	"github.com/pagi-systems/pagi-core/internal/memory"
	"github.com/pagi-systems/pagi-core/internal/patch"
	"github.com/pagi-systems/pagi-core/internal/safety"
	"github.com/pagi-systems/pagi-core/internal/skills"
)

var tracer = otel.Tracer("pagi-core/rpc")

// Server wires C2, C4, C6, C8 and the legacy SelfHeal/SimulateError methods
// behind the remote-call surface named in SPEC_FULL.md §6.
type Server struct {
	Governor   *safety.Governor
	Endpoint   *action.Endpoint
	Memory     *memory.Store
	Lifecycle  *patch.Lifecycle
	Logger     logging.ComponentAwareLogger
	ActionLog  string
	HITLPollSeconds int

	mux *http.ServeMux
}

// NewServer builds the HTTP mux, registering one capability per remote
// method and the standard health endpoint, mirroring the teacher's
// setupStandardEndpoints.
func NewServer(s *Server) http.Handler {
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/api/capabilities/AccessMemory", s.handle("AccessMemory", s.accessMemory))
	s.mux.HandleFunc("/api/capabilities/DelegateReasoning", s.handle("DelegateReasoning", s.delegateReasoning))
	s.mux.HandleFunc("/api/capabilities/ExecuteAction", s.handle("ExecuteAction", s.executeAction))
	s.mux.HandleFunc("/api/capabilities/SelfHeal", s.handle("SelfHeal", s.selfHeal))
	s.mux.HandleFunc("/api/capabilities/SemanticSearch", s.handle("SemanticSearch", s.semanticSearch))
	s.mux.HandleFunc("/api/capabilities/ProposePatch", s.handle("ProposePatch", s.proposePatch))
	s.mux.HandleFunc("/api/capabilities/ApplyPatch", s.handle("ApplyPatch", s.applyPatch))
	s.mux.HandleFunc("/api/capabilities/UpsertVectors", s.handle("UpsertVectors", s.upsertVectors))
	s.mux.HandleFunc("/api/capabilities/SimulateError", s.handle("SimulateError", s.simulateError))
	s.mux.HandleFunc("/health", s.health)

	var h http.Handler = s.mux
	h = recoveryMiddleware(s.Logger, h)
	h = loggingMiddleware(s.Logger, h)
	h = corsMiddleware(h)
	return h
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type rpcFunc func(ctx context.Context, body []byte) (interface{}, error)

func (s *Server) handle(name string, fn rpcFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "rpc."+name)
		defer span.End()
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			ctx = logging.WithRequestID(ctx, sc.TraceID().String())
		}

		body, err := readAll(r)
		if err != nil {
			writeError(w, coreerrors.New(name, coreerrors.InvalidArgument, "could not read request body", err))
			span.SetStatus(codes.Error, err.Error())
			return
		}

		result, err := fn(ctx, body)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			writeError(w, err)
			return
		}
		span.SetStatus(codes.Ok, "")
		writeJSON(w, http.StatusOK, result)
	}
}

// --- handlers -------------------------------------------------------------

func (s *Server) accessMemory(ctx context.Context, body []byte) (interface{}, error) {
	var req struct {
		Layer int     `json:"layer"`
		Key   string  `json:"key"`
		Value *string `json:"value"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, invalidJSON("AccessMemory", err)
	}
	data, ok := s.Memory.Access(req.Layer, req.Key, req.Value)
	return map[string]interface{}{"data": data, "ok": ok}, nil
}

func (s *Server) delegateReasoning(ctx context.Context, body []byte) (interface{}, error) {
	var req safety.ReasonRequest
	if err := json.Unmarshal(body, &reasonWire{&req}); err != nil {
		return nil, invalidJSON("DelegateReasoning", err)
	}
	normalized, err := s.Governor.GuardReason(req)
	if err != nil {
		return nil, err
	}
	// Delegation itself (the recursive sub-query dispatch to the external
	// reasoning worker) is outside this spec's scope (§1 Non-goals); the
	// admitted/normalized request is what downstream consumers see.
	return map[string]interface{}{
		"sub_query":   normalized.SubQuery,
		"sub_context": normalized.SubContext,
		"depth":       normalized.Depth,
		"converged":   normalized.Depth <= s.Governor.MaxDepth,
	}, nil
}

type reasonWire struct{ r *safety.ReasonRequest }

func (w *reasonWire) UnmarshalJSON(data []byte) error {
	var v struct {
		SubQuery   string `json:"sub_query"`
		SubContext string `json:"sub_context"`
		Depth      int    `json:"depth"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*w.r = safety.ReasonRequest{SubQuery: v.SubQuery, SubContext: v.SubContext, Depth: v.Depth}
	return nil
}

func (s *Server) executeAction(ctx context.Context, body []byte) (interface{}, error) {
	var req skills.ActionRequest
	if err := json.Unmarshal(body, &actionWire{&req}); err != nil {
		return nil, invalidJSON("ExecuteAction", err)
	}
	return s.Endpoint.ExecuteAction(ctx, req)
}

type actionWire struct{ r *skills.ActionRequest }

func (w *actionWire) UnmarshalJSON(data []byte) error {
	var v struct {
		SkillName     string            `json:"skill_name"`
		Params        map[string]string `json:"params"`
		Depth         int               `json:"depth"`
		ReasoningID   string            `json:"reasoning_id"`
		MockMode      bool              `json:"mock_mode"`
		AllowListHash string            `json:"allow_list_hash"`
		TimeoutMS     int               `json:"timeout_ms"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*w.r = skills.ActionRequest{
		SkillName: v.SkillName, Params: v.Params, Depth: v.Depth, ReasoningID: v.ReasoningID,
		MockMode: v.MockMode, AllowListHash: v.AllowListHash, TimeoutMS: v.TimeoutMS,
	}
	return nil
}

// selfHeal is the legacy endpoint: it always proposes nothing and never
// auto-applies, preserving original_source/watchdog.rs's behavior verbatim
// (SPEC_FULL.md §9).
func (s *Server) selfHeal(ctx context.Context, body []byte) (interface{}, error) {
	return map[string]interface{}{"patch": "", "auto_apply": false}, nil
}

func (s *Server) semanticSearch(ctx context.Context, body []byte) (interface{}, error) {
	var req struct {
		KBName      string    `json:"kb_name"`
		QueryText   string    `json:"query_text"`
		QueryVector []float32 `json:"query_vector"`
		Limit       int       `json:"limit"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, invalidJSON("SemanticSearch", err)
	}
	hits, err := s.Memory.SemanticSearch(ctx, req.KBName, req.QueryText, req.QueryVector, req.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"hits": hits}, nil
}

func (s *Server) upsertVectors(ctx context.Context, body []byte) (interface{}, error) {
	var req struct {
		KBName string `json:"kb_name"`
		Points []struct {
			ID      string    `json:"id"`
			Vector  []float32 `json:"vector"`
			Content string    `json:"content"`
		} `json:"points"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, invalidJSON("UpsertVectors", err)
	}
	points := make([]memory.VectorPoint, 0, len(req.Points))
	for _, p := range req.Points {
		points = append(points, memory.VectorPoint{ID: p.ID, Vector: p.Vector, Content: p.Content})
	}
	count, err := s.Memory.Upsert(ctx, req.KBName, points)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"count": count}, nil
}

func (s *Server) proposePatch(ctx context.Context, body []byte) (interface{}, error) {
	var req patch.PatchRequest
	if err := json.Unmarshal(body, &proposeWire{&req}); err != nil {
		return nil, invalidJSON("ProposePatch", err)
	}
	result, err := s.Lifecycle.Propose(ctx, req)
	if err != nil {
		return nil, err
	}
	return result, nil
}

type proposeWire struct{ r *patch.PatchRequest }

func (w *proposeWire) UnmarshalJSON(data []byte) error {
	var v struct {
		ErrorTrace string `json:"error_trace"`
		Component  string `json:"component"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*w.r = patch.PatchRequest{ErrorTrace: v.ErrorTrace, Component: v.Component}
	return nil
}

func (s *Server) applyPatch(ctx context.Context, body []byte) (interface{}, error) {
	var req patch.ApplyRequest
	if err := json.Unmarshal(body, &applyWire{&req}); err != nil {
		return nil, invalidJSON("ApplyPatch", err)
	}
	return s.Lifecycle.Apply(ctx, req)
}

type applyWire struct{ r *patch.ApplyRequest }

func (w *applyWire) UnmarshalJSON(data []byte) error {
	var v struct {
		PatchID      string `json:"patch_id"`
		Approved     bool   `json:"approved"`
		Component    string `json:"component"`
		RequiresHITL bool   `json:"requires_hitl"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*w.r = patch.ApplyRequest{PatchID: v.PatchID, Approved: v.Approved, Component: v.Component, RequiresHITL: v.RequiresHITL}
	return nil
}

// simulateError appends a "Heal cycle simulated" line to the action log,
// per SPEC_FULL.md §6's Logs section, and reports HITLPollSeconds as
// poll_window_seconds. It returns at once; it does not wait or poll.
func (s *Server) simulateError(ctx context.Context, body []byte) (interface{}, error) {
	appendLine(s.ActionLog, "Heal cycle simulated")
	return map[string]interface{}{
		"poll_window_seconds": s.HITLPollSeconds,
		"simulated_at":        time.Now().UTC().Format(time.RFC3339),
	}, nil
}
