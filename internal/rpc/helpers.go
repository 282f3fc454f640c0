package rpc

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"

	coreerrors "github.com/pagi-systems/pagi-core/internal/errors"
	"github.com/pagi-systems/pagi-core/internal/logging"
)

func readAll(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return []byte("{}"), nil
	}
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, 1<<20))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	kind := coreerrors.Internal
	var ce *coreerrors.Error
	if e, ok := err.(*coreerrors.Error); ok {
		ce = e
		kind = ce.Kind
	}
	body := map[string]interface{}{"error": err.Error(), "kind": string(kind)}
	writeJSON(w, kind.HTTPStatus(), body)
}

func invalidJSON(op string, err error) error {
	return coreerrors.New(op, coreerrors.InvalidArgument, "malformed request body", err)
}

func appendLine(path, line string) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.WriteString(line + "\n")
}

// --- middleware, ordered Recovery (innermost) -> Logging -> CORS
// (outermost), matching the teacher's core.Tool.Start wiring. ---

func recoveryMiddleware(logger logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if logger != nil {
					logger.Error("panic recovered in rpc handler", map[string]interface{}{"panic": rec})
				}
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error", "kind": "internal"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(logger logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if logger != nil {
			logger.Info("rpc request", map[string]interface{}{
				"path":     r.URL.Path,
				"duration": time.Since(start).String(),
			})
		}
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
