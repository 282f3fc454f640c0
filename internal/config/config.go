// Package config loads the typed environment surface described in SPEC_FULL
// §6, following the teacher's LoadFromEnv/parseBool/parseStringList shape.
package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the fully resolved configuration surface for a server instance.
type Config struct {
	Port int

	RegistryPath string
	ServerTree   string
	WorkerTree   string

	MaxRecursionDepth int
	HITLGate          bool

	MockMode         bool
	AllowRealDispatch bool

	ForceTestFailure bool
	SkipApplyTest    bool

	AutoCommitSelfPatch bool
	AutoEvolveSkills    bool
	ApproveFlagName     string

	HITLPollSeconds    int
	WatchIntervalSeconds int

	DisableQdrant  bool
	EmbeddingDim   int
	QdrantURI      string
	QdrantAPIKey   string

	ActionLog string

	LogLevel  string
	LogFormat string
	DevMode   bool

	OTelEndpoint string

	RedisURL string
}

// Env var names, one per row of SPEC_FULL.md §6.
const (
	EnvPort                 = "PAGI_PORT"
	EnvRegistryPath         = "PAGI_REGISTRY_PATH"
	EnvServerTree           = "PAGI_SERVER_TREE"
	EnvWorkerTree           = "PAGI_WORKER_TREE"
	EnvMaxRecursionDepth    = "PAGI_MAX_RECURSION_DEPTH"
	EnvHITLGate             = "PAGI_HITL_GATE"
	EnvMockMode             = "PAGI_MOCK_MODE"
	EnvAllowRealDispatch    = "PAGI_ALLOW_REAL_DISPATCH"
	EnvForceTestFailure     = "PAGI_FORCE_TEST_FAILURE"
	EnvSkipApplyTest        = "PAGI_SKIP_APPLY_TEST"
	EnvAutoCommit           = "PAGI_AUTO_COMMIT"
	EnvAutoEvolve           = "PAGI_AUTO_EVOLVE"
	EnvApproveFlag          = "PAGI_APPROVE_FLAG"
	EnvHITLPollSeconds      = "PAGI_HITL_POLL_SECONDS"
	EnvWatchIntervalSeconds = "PAGI_WATCH_INTERVAL_SECONDS"
	EnvDisableQdrant        = "PAGI_DISABLE_QDRANT"
	EnvEmbeddingDim         = "PAGI_EMBEDDING_DIM"
	EnvQdrantURI            = "PAGI_QDRANT_URI"
	EnvQdrantAPIKey         = "PAGI_QDRANT_API_KEY"
	EnvActionLog            = "PAGI_ACTION_LOG"
	EnvLogLevel             = "PAGI_LOG_LEVEL"
	EnvLogFormat            = "PAGI_LOG_FORMAT"
	EnvDevMode              = "PAGI_DEV_MODE"
	EnvOTelEndpoint         = "PAGI_OTEL_ENDPOINT"
	EnvRedisURL             = "REDIS_URL"
	EnvConfigFile           = "PAGI_CONFIG_FILE"
)

// defaultConfigFile is where LoadFromEnv looks for an optional YAML
// overlay when EnvConfigFile is unset, per SPEC_FULL.md §11.
const defaultConfigFile = "pagicore.yaml"

// LoadFromEnv resolves the full configuration from process environment
// variables, applying the defaults from SPEC_FULL.md §6. Before reading
// the environment, it applies applyFileOverlay: any key present in the
// YAML config file and not already set in the environment is applied as
// if it had been set there, so the precedence is env var > config file >
// built-in default.
func LoadFromEnv() *Config {
	applyFileOverlay(getString(EnvConfigFile, defaultConfigFile))

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	c := &Config{
		Port:                 getInt(EnvPort, 50051),
		RegistryPath:         getString(EnvRegistryPath, cwd+"/../pagi-skills"),
		ServerTree:           getString(EnvServerTree, cwd),
		WorkerTree:           getString(EnvWorkerTree, cwd+"/../pagi-intelligence-bridge"),
		MaxRecursionDepth:    getInt(EnvMaxRecursionDepth, 5),
		HITLGate:             getBoolDefault(EnvHITLGate, true),
		MockMode:             getBoolDefault(EnvMockMode, false),
		AllowRealDispatch:    getBoolDefault(EnvAllowRealDispatch, false),
		ForceTestFailure:     getBoolDefault(EnvForceTestFailure, false),
		SkipApplyTest:        getBoolDefault(EnvSkipApplyTest, false),
		AutoCommitSelfPatch:  getBoolDefault(EnvAutoCommit, true),
		AutoEvolveSkills:     getBoolDefault(EnvAutoEvolve, false),
		ApproveFlagName:      getString(EnvApproveFlag, "approve.patch"),
		HITLPollSeconds:      getInt(EnvHITLPollSeconds, 30),
		WatchIntervalSeconds: getInt(EnvWatchIntervalSeconds, 60),
		DisableQdrant:        getBoolDefault(EnvDisableQdrant, false),
		EmbeddingDim:         getInt(EnvEmbeddingDim, 1536),
		QdrantURI:            getString(EnvQdrantURI, "http://localhost:6334"),
		QdrantAPIKey:         getString(EnvQdrantAPIKey, ""),
		ActionLog:            getString(EnvActionLog, "agent_actions.log"),
		LogLevel:             getString(EnvLogLevel, "info"),
		LogFormat:            getString(EnvLogFormat, "json"),
		DevMode:              getBoolDefault(EnvDevMode, false),
		OTelEndpoint:         getString(EnvOTelEndpoint, ""),
		RedisURL:             getString(EnvRedisURL, ""),
	}
	return c
}

// applyFileOverlay reads path as a flat YAML map of env-var-name to value
// (e.g. "PAGI_PORT: \"50052\"") and, for each key not already present in
// the process environment, sets it. A missing or unparsable file is not an
// error: the overlay is optional, matching SPEC_FULL.md §11's "pagicore.yaml
// file overlay" description.
func applyFileOverlay(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var overlay map[string]string
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return
	}
	for k, v := range overlay {
		if _, exists := os.LookupEnv(k); !exists {
			os.Setenv(k, v)
		}
	}
}

func getString(env, def string) string {
	if v, ok := os.LookupEnv(env); ok {
		return v
	}
	return def
}

func getInt(env string, def int) int {
	v, ok := os.LookupEnv(env)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return def
	}
	return int(n)
}

// parseBool reports whether s is a truthy value per SPEC_FULL.md §6:
// case-insensitive match of true|1|yes|on|y. This generalizes the teacher's
// parseBool (true|1|yes|on) by additionally accepting "y", which this spec's
// contract requires.
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on", "y":
		return true
	default:
		return false
	}
}

func getBoolDefault(env string, def bool) bool {
	v, ok := os.LookupEnv(env)
	if !ok {
		return def
	}
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return def
	}
	return parseBool(trimmed)
}
