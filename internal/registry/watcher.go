// Package registry implements the Registry Watcher (C7), SPEC_FULL.md §4.8:
// a long-running goroutine that periodically commits the evolution
// registry directory.
package registry

import (
	"context"
	"time"

	"github.com/pagi-systems/pagi-core/internal/logging"
	"github.com/pagi-systems/pagi-core/internal/resilience"
	"github.com/pagi-systems/pagi-core/internal/vcs"
)

const commitMessage = "Auto-commit self-patch (L6 traceability)"

// Watcher runs the registry auto-commit tick.
type Watcher struct {
	registryPath string
	interval     time.Duration
	logger       logging.Logger
}

// NewWatcher builds a Watcher ticking every interval (default 60s per
// SPEC_FULL.md §6).
func NewWatcher(registryPath string, interval time.Duration, logger logging.Logger) *Watcher {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Watcher{registryPath: registryPath, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled, ticking every w.interval. VCS errors
// are logged and the next tick retries; absent changes produce no commit.
// Exits cleanly on ctx cancellation (SPEC_FULL.md §5's graceful-shutdown
// requirement), which is always safe between ticks since commits are
// atomic w.r.t. the git index.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *Watcher) tick() {
	// Shared, not OpenOrInit: the patch lifecycle (C6) commits into this
	// same registry path from request-handling goroutines, and both must
	// serialize through the one cached *vcs.Tree for this path.
	tree, err := vcs.Shared(w.registryPath)
	if err != nil {
		w.logWarn("registry watcher: could not open registry", err)
		return
	}

	var hash string
	var committed bool
	// A concurrent C6 commit against the same shared Tree can momentarily
	// hold its mutex or leave the on-disk index locked; retry a couple of
	// times rather than dropping this tick's changes until the next one.
	err = resilience.Retry(context.Background(), resilience.DefaultRetryConfig(), func() error {
		var commitErr error
		hash, committed, commitErr = tree.CommitAllIfDirty(commitMessage)
		return commitErr
	})
	if err != nil {
		w.logWarn("registry watcher: commit failed", err)
		return
	}
	if committed && w.logger != nil {
		w.logger.Info("registry watcher committed", map[string]interface{}{"commit_hash": hash})
	}
}

func (w *Watcher) logWarn(msg string, err error) {
	if w.logger == nil {
		return
	}
	w.logger.Warn(msg, map[string]interface{}{"error": err.Error()})
}
