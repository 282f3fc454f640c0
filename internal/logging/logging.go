// Package logging adapts the teacher's Logger/ComponentAwareLogger contract
// to a small structured field-map logger.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Logger is the structured-logging contract used throughout pagi-core.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger can be scoped to a named subsystem.
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
)

func parseLevel(s string) level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return levelDebug
	case "warn", "warning":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func (l level) String() string {
	switch l {
	case levelDebug:
		return "debug"
	case levelWarn:
		return "warn"
	case levelError:
		return "error"
	default:
		return "info"
	}
}

// jsonLogger writes newline-delimited JSON (or, in dev mode, a compact
// human-readable line) to an io.Writer, matching the teacher's field-map
// shape but with a level filter driven by configuration.
type jsonLogger struct {
	mu        *sync.Mutex
	out       io.Writer
	min       level
	dev       bool
	component string
}

// New builds a root Logger. minLevel is one of debug/info/warn/error; dev
// switches to a human-readable single-line format instead of JSON.
func New(minLevel string, dev bool) ComponentAwareLogger {
	return &jsonLogger{
		mu:  &sync.Mutex{},
		out: os.Stdout,
		min: parseLevel(minLevel),
		dev: dev,
	}
}

// NoOp returns a Logger that discards everything, for tests.
func NoOp() ComponentAwareLogger {
	return &jsonLogger{mu: &sync.Mutex{}, out: io.Discard, min: levelError + 1}
}

func (l *jsonLogger) WithComponent(component string) Logger {
	return &jsonLogger{mu: l.mu, out: l.out, min: l.min, dev: l.dev, component: component}
}

func (l *jsonLogger) log(lv level, ctx context.Context, msg string, fields map[string]interface{}) {
	if lv < l.min {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dev {
		fmt.Fprintln(l.out, l.devLine(lv, ctx, msg, fields))
		return
	}
	entry := map[string]interface{}{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": lv.String(),
		"msg":   msg,
	}
	if l.component != "" {
		entry["component"] = l.component
	}
	if ctx != nil {
		if rid := requestIDFromContext(ctx); rid != "" {
			entry["request_id"] = rid
		}
	}
	for k, v := range fields {
		entry[k] = v
	}
	enc := json.NewEncoder(l.out)
	_ = enc.Encode(entry)
}

func (l *jsonLogger) devLine(lv level, ctx context.Context, msg string, fields map[string]interface{}) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s]", time.Now().Format("15:04:05.000"), lv.String())
	if l.component != "" {
		fmt.Fprintf(&b, " (%s)", l.component)
	}
	fmt.Fprintf(&b, " %s", msg)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	return b.String()
}

func (l *jsonLogger) Debug(msg string, f map[string]interface{}) { l.log(levelDebug, nil, msg, f) }
func (l *jsonLogger) Info(msg string, f map[string]interface{})  { l.log(levelInfo, nil, msg, f) }
func (l *jsonLogger) Warn(msg string, f map[string]interface{})  { l.log(levelWarn, nil, msg, f) }
func (l *jsonLogger) Error(msg string, f map[string]interface{}) { l.log(levelError, nil, msg, f) }

func (l *jsonLogger) DebugWithContext(ctx context.Context, msg string, f map[string]interface{}) {
	l.log(levelDebug, ctx, msg, f)
}
func (l *jsonLogger) InfoWithContext(ctx context.Context, msg string, f map[string]interface{}) {
	l.log(levelInfo, ctx, msg, f)
}
func (l *jsonLogger) WarnWithContext(ctx context.Context, msg string, f map[string]interface{}) {
	l.log(levelWarn, ctx, msg, f)
}
func (l *jsonLogger) ErrorWithContext(ctx context.Context, msg string, f map[string]interface{}) {
	l.log(levelError, ctx, msg, f)
}

type requestIDKey struct{}

// WithRequestID returns a context carrying a request id for log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFromContext(ctx context.Context) string {
	v := ctx.Value(requestIDKey{})
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
