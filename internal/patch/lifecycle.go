package patch

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	coreerrors "github.com/pagi-systems/pagi-core/internal/errors"
	"github.com/pagi-systems/pagi-core/internal/logging"
	"github.com/pagi-systems/pagi-core/internal/memory"
	"github.com/pagi-systems/pagi-core/internal/skills"
	"github.com/pagi-systems/pagi-core/internal/vcs"
)

// PatchRequest mirrors SPEC_FULL.md §3's PatchRequest shape.
type PatchRequest struct {
	ErrorTrace string
	Component  string
}

// ApplyRequest mirrors SPEC_FULL.md §3's ApplyRequest shape.
type ApplyRequest struct {
	PatchID      string
	Approved     bool
	Component    string
	RequiresHITL bool
}

// ProposeResult is Propose's return shape.
type ProposeResult struct {
	PatchID      string
	ProposedCode string
	RequiresHITL bool
}

// ApplyResult is Apply's return shape on success.
type ApplyResult struct {
	Success    bool
	CommitHash string
}

const serverComponent = "rust_core"

// Lifecycle implements C6: Propose -> HITL gate -> test -> persist ->
// commit -> optional auto-evolve -> forget.
type Lifecycle struct {
	store      *Store
	memory     *memory.Store
	dispatcher *skills.Dispatcher
	logger     logging.Logger

	registryPath string
	serverTree   string
	workerTree   string

	approveFlagName  string
	forceTestFailure bool
	skipApplyTest    bool
	autoCommit       bool
	autoEvolve       bool

	registryTreeFn func() (*vcs.Tree, error)
	workerTreeFn   func() (*vcs.Tree, error)
}

// Option configures a Lifecycle, following the teacher's functional-options
// idiom (WithControllerLogger, WithControllerTelemetry, etc.).
type Option func(*Lifecycle)

func WithLogger(l logging.Logger) Option {
	return func(lc *Lifecycle) { lc.logger = l }
}

func WithForceTestFailure(v bool) Option {
	return func(lc *Lifecycle) { lc.forceTestFailure = v }
}

func WithSkipApplyTest(v bool) Option {
	return func(lc *Lifecycle) { lc.skipApplyTest = v }
}

func WithAutoCommit(v bool) Option {
	return func(lc *Lifecycle) { lc.autoCommit = v }
}

func WithAutoEvolve(v bool) Option {
	return func(lc *Lifecycle) { lc.autoEvolve = v }
}

func WithApproveFlagName(name string) Option {
	return func(lc *Lifecycle) { lc.approveFlagName = name }
}

// NewLifecycle builds a Lifecycle. registryPath/serverTree/workerTree are
// the three filesystem roots named in SPEC_FULL.md §6.
func NewLifecycle(store *Store, mem *memory.Store, dispatcher *skills.Dispatcher, registryPath, serverTree, workerTree string, opts ...Option) *Lifecycle {
	lc := &Lifecycle{
		store:           store,
		memory:          mem,
		dispatcher:      dispatcher,
		registryPath:    registryPath,
		serverTree:      serverTree,
		workerTree:      workerTree,
		approveFlagName: "approve.patch",
		autoCommit:      true,
	}
	for _, o := range opts {
		o(lc)
	}
	// Shared, not OpenOrInit: the registry watcher (C7) commits against this
	// same path on its own timer, and both must serialize through the one
	// cached *vcs.Tree rather than racing independent *git.Repository handles.
	lc.registryTreeFn = func() (*vcs.Tree, error) { return vcs.Shared(lc.registryPath) }
	// The worker tree must already be a repository: auto-evolve never
	// initializes one there.
	lc.workerTreeFn = func() (*vcs.Tree, error) {
		if _, ok := vcs.Open(lc.workerTree); !ok {
			return nil, fmt.Errorf("no git repository at %s", lc.workerTree)
		}
		return vcs.Shared(lc.workerTree)
	}
	return lc
}

// Propose implements SPEC_FULL.md §4.5 Propose.
func (lc *Lifecycle) Propose(ctx context.Context, req PatchRequest) (*ProposeResult, error) {
	hits, err := lc.memory.SemanticSearch(ctx, "kb_core", req.ErrorTrace, nil, 5)
	if err != nil {
		// Semantic search is best-effort context for the rendered artifact;
		// an unavailable vector backend must not block proposing a patch.
		hits = nil
	}

	code := composeProposedCode(req.ErrorTrace, hits)
	requiresHITL := req.Component == serverComponent
	id := lc.store.Insert(code, requiresHITL, req.Component)

	return &ProposeResult{PatchID: id, ProposedCode: code, RequiresHITL: requiresHITL}, nil
}

func composeProposedCode(errorTrace string, hits []memory.SearchHit) string {
	firstLine := errorTrace
	if idx := strings.IndexByte(firstLine, '\n'); idx >= 0 {
		firstLine = firstLine[:idx]
	}
	header := truncateRunes(firstLine, 200)

	var b strings.Builder
	fmt.Fprintf(&b, "// Self-patch proposal\n// %s\n", header)
	for i, h := range hits {
		if i >= 2 {
			break
		}
		fmt.Fprintf(&b, "// prior: %s\n", h.ContentSnippet)
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// Apply implements SPEC_FULL.md §4.5 Apply, steps 1-9 in strict order.
func (lc *Lifecycle) Apply(ctx context.Context, req ApplyRequest) (*ApplyResult, error) {
	const op = "Lifecycle.Apply"

	// Step 1: lookup.
	pending, err := lc.store.lookupOrNotFound(op, req.PatchID)
	if err != nil {
		return nil, err
	}

	// Step 2: HITL predicate.
	approved := req.Approved || (pending.RequiresHITL && lc.approveFlagExists())
	if pending.RequiresHITL && !approved {
		return nil, coreerrors.WithID(op, coreerrors.PermissionDenied, "HITL approval required", req.PatchID, nil)
	}

	// Step 3: forced-failure switch.
	if lc.forceTestFailure {
		return nil, coreerrors.WithID(op, coreerrors.Internal, "forced test failure", req.PatchID, nil)
	}

	// Step 4: pre-apply tests.
	if !lc.skipApplyTest {
		if err := lc.runPreApplyTests(pending.Component); err != nil {
			return nil, coreerrors.WithID(op, coreerrors.Internal, "Patch test failed; apply aborted", req.PatchID, err)
		}
	}

	// Step 5: persist.
	ext := "py"
	if pending.Component == serverComponent {
		ext = "go"
	}
	patchesDir := filepath.Join(lc.registryPath, "patches")
	if err := os.MkdirAll(patchesDir, 0o755); err != nil {
		return nil, coreerrors.WithID(op, coreerrors.Internal, "could not create patches directory", req.PatchID, err)
	}
	relPath := filepath.Join("patches", fmt.Sprintf("patch_%s.%s", pending.PatchID, ext))
	fullPath := filepath.Join(lc.registryPath, relPath)
	if err := os.WriteFile(fullPath, []byte(pending.ProposedCode), 0o644); err != nil {
		return nil, coreerrors.WithID(op, coreerrors.Internal, "could not write patch file", req.PatchID, err)
	}

	// Step 6: auto-commit.
	commitHash := ""
	committed := false
	if lc.autoCommit {
		tree, err := lc.registryTreeFn()
		if err != nil {
			return nil, coreerrors.WithID(op, coreerrors.Internal, "could not open registry as VCS tree", req.PatchID, err)
		}
		msg := fmt.Sprintf("Self-patch apply %s for %s", pending.PatchID, pending.Component)
		hash, err := tree.StagePath(relPath, msg)
		if err != nil {
			return nil, coreerrors.WithID(op, coreerrors.Internal, "commit failed", req.PatchID, err)
		}
		commitHash = hash
		committed = true
	}

	// Step 7: auto-evolve (best-effort).
	if committed && lc.autoEvolve && pending.Component != serverComponent {
		if err := lc.autoEvolveFromPatch(ctx, fullPath); err != nil && lc.logger != nil {
			lc.logger.Warn("auto-evolve failed (best-effort)", map[string]interface{}{"error": err.Error()})
		}
	}

	// Step 8: forget.
	lc.store.Remove(req.PatchID)

	// Step 9: return.
	return &ApplyResult{Success: true, CommitHash: commitHash}, nil
}

func (lc *Lifecycle) approveFlagExists() bool {
	_, err := os.Stat(filepath.Join(lc.serverTree, lc.approveFlagName))
	return err == nil
}

func (lc *Lifecycle) runPreApplyTests(component string) error {
	var cmd *exec.Cmd
	if component == serverComponent {
		cmd = exec.Command("go", "test", "./...")
		cmd.Dir = lc.serverTree
	} else {
		cmd = exec.Command("python", "-m", "pytest")
		cmd.Dir = lc.workerTree
	}
	return cmd.Run()
}
