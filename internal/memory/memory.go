// Package memory implements the Tiered Memory collaborator contract (C4),
// SPEC_FULL.md §4.4. Layers 1 (sensory) and 2 (working) are in-process maps
// (or Redis, when configured) that must persist for the process lifetime;
// the semantic layer is backed by Qdrant and reached through SemanticSearch
// and Upsert, grounded in original_source's memory_manager.rs. Access serves
// only layers 1 and 2; every other layer number, including 4, falls through
// to the no-op branch of Access (§4.4 allows "others may be stubs").
package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/qdrant/go-client/qdrant"

	coreerrors "github.com/pagi-systems/pagi-core/internal/errors"
	"github.com/pagi-systems/pagi-core/internal/logging"
	"github.com/pagi-systems/pagi-core/internal/resilience"
)

// KnowledgeBases mirrors the 8-KB layout from original_source's
// memory_manager.rs: one collection per reasoning tier.
var KnowledgeBases = []string{"kb_core", "kb_skills", "kb_1", "kb_2", "kb_3", "kb_4", "kb_5", "kb_6"}

const redisOpTimeout = 2 * time.Second

// SearchHit is one semantic_search result, per SPEC_FULL.md §4.4.
type SearchHit struct {
	DocumentID     string
	Score          float32
	ContentSnippet string
}

// VectorPoint is one upsert() input row.
type VectorPoint struct {
	ID      string
	Vector  []float32
	Content string
}

// Store is the C4 collaborator: layered key/value plus semantic search.
type Store struct {
	mu sync.RWMutex
	l1 map[string][]byte
	l2 map[string]string

	logger       logging.Logger
	embeddingDim int
	disabled     bool
	qdrant       *qdrant.Client
	breaker      *resilience.CircuitBreaker

	redis *redis.Client
}

// Config configures the Qdrant-backed semantic layer and, optionally, a
// Redis-backed layer 1/2 store.
type Config struct {
	Disabled     bool
	EmbeddingDim int
	URI          string
	APIKey       string

	// RedisURL, when set, backs layers 1/2 with Redis instead of the
	// in-process maps, so sensory/working memory survives a process
	// restart (SPEC_FULL.md §11). Empty means in-process maps only.
	RedisURL string
}

// NewStore builds a Store. When cfg.Disabled is true (or the Qdrant client
// cannot be constructed), semantic_search returns empty hit lists and
// upsert fails failed-precondition, matching original_source's
// PAGI_DISABLE_QDRANT stub path. When cfg.RedisURL is set and reachable,
// layers 1/2 are backed by Redis instead of the in-process maps; on any
// connection failure this falls back to the in-process maps rather than
// failing the whole store.
func NewStore(ctx context.Context, cfg Config, logger logging.Logger) *Store {
	s := &Store{
		l1:           make(map[string][]byte),
		l2:           make(map[string]string),
		logger:       logger,
		embeddingDim: cfg.EmbeddingDim,
		disabled:     cfg.Disabled,
		breaker:      resilience.New(resilience.DefaultConfig("tiered_memory_qdrant")),
	}
	if s.embeddingDim <= 0 {
		s.embeddingDim = 1536
	}

	if cfg.RedisURL != "" {
		if client, err := newRedisClient(ctx, cfg.RedisURL); err != nil {
			if logger != nil {
				logger.Warn("redis backing store unavailable, using in-process maps", map[string]interface{}{"error": err.Error()})
			}
		} else {
			s.redis = client
		}
	}

	if cfg.Disabled {
		return s
	}

	client, err := newQdrantClient(cfg)
	if err != nil {
		if logger != nil {
			logger.Warn("qdrant client unavailable, semantic layer disabled", map[string]interface{}{"error": err.Error()})
		}
		s.disabled = true
		return s
	}
	s.qdrant = client
	s.initKBs(ctx)
	return s
}

func newRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("memory: parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("memory: redis ping: %w", err)
	}
	return client, nil
}

func newQdrantClient(cfg Config) (*qdrant.Client, error) {
	return qdrant.NewClient(&qdrant.Config{
		Host:   hostOf(cfg.URI),
		Port:   portOf(cfg.URI),
		APIKey: cfg.APIKey,
		UseTLS: false,
	})
}

func (s *Store) initKBs(ctx context.Context) {
	for _, kb := range KnowledgeBases {
		_ = s.qdrant.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: kb,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.embeddingDim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		// Ignore "already exists" and any other creation error: init_kbs is
		// best-effort idempotent setup, mirroring original_source's
		// skip-if-exists behavior.
	}
}

// Access implements access(layer,key,value) -> (data, ok). Layers 1 and 2
// are set-or-get against the in-process maps; any other layer is a no-op
// returning ("", true), matching original_source's fallthrough.
func (s *Store) Access(layer int, key string, value *string) (string, bool) {
	switch layer {
	case 1:
		return s.accessL1(key, value)
	case 2:
		return s.accessL2(key, value)
	default:
		return "", true
	}
}

func (s *Store) accessL1(key string, value *string) (string, bool) {
	if s.redis != nil {
		return s.accessRedis("l1:"+key, value)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if value != nil {
		s.l1[key] = []byte(*value)
		return *value, true
	}
	v, ok := s.l1[key]
	if !ok {
		return "", false
	}
	return string(v), true
}

func (s *Store) accessL2(key string, value *string) (string, bool) {
	if s.redis != nil {
		return s.accessRedis("l2:"+key, value)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if value != nil {
		s.l2[key] = *value
		return *value, true
	}
	v, ok := s.l2[key]
	if !ok {
		return "", false
	}
	return v, true
}

// accessRedis implements set-or-get against the Redis backing store for a
// fully-qualified key (already layer-prefixed). A Redis error other than
// "key missing" is treated the same as a miss: this is a best-effort cache
// tier, not the system of record.
func (s *Store) accessRedis(fqKey string, value *string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if value != nil {
		if err := s.redis.Set(ctx, fqKey, *value, 0).Err(); err != nil {
			return "", false
		}
		return *value, true
	}
	v, err := s.redis.Get(ctx, fqKey).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

// SemanticSearch implements semantic_search(kb_name, query_text,
// query_vector, limit) -> hits[].
func (s *Store) SemanticSearch(ctx context.Context, kbName, queryText string, queryVector []float32, limit int) ([]SearchHit, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}
	if s.disabled || s.qdrant == nil {
		return []SearchHit{}, nil
	}

	vec := queryVector
	if len(vec) == 0 || len(vec) != s.embeddingDim {
		vec = make([]float32, s.embeddingDim) // zero-vector fallback, §4.4
	}

	var points []*qdrant.ScoredPoint
	breakerErr := s.breaker.Execute(ctx, func() error {
		var queryErr error
		points, queryErr = s.qdrant.Query(ctx, &qdrant.QueryPoints{
			CollectionName: kbName,
			Query:          qdrant.NewQuery(vec...),
			Limit:          qdrant.PtrOf(uint64(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		return queryErr
	})
	if errors.Is(breakerErr, resilience.ErrOpen) {
		return nil, coreerrors.New("Store.SemanticSearch", coreerrors.FailedPrecondition, "vector backend circuit open after repeated failures", breakerErr)
	}
	if breakerErr != nil {
		return nil, coreerrors.New("Store.SemanticSearch", coreerrors.Internal, "vector search failed", breakerErr)
	}

	hits := make([]SearchHit, 0, len(points))
	for _, p := range points {
		snippet := ""
		if payload := p.GetPayload(); payload != nil {
			if v, ok := payload["content"]; ok {
				snippet = v.GetStringValue()
			}
		}
		hits = append(hits, SearchHit{
			DocumentID:     p.GetId().GetUuid(),
			Score:          p.GetScore(),
			ContentSnippet: snippet,
		})
	}
	return hits, nil
}

// Upsert implements upsert(kb_name, points[]) -> count.
func (s *Store) Upsert(ctx context.Context, kbName string, points []VectorPoint) (int, error) {
	if s.disabled || s.qdrant == nil {
		return 0, coreerrors.New("Store.Upsert", coreerrors.FailedPrecondition, "vector backend disabled", nil)
	}

	rows := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		rows = append(rows, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{"content": p.Content}),
		})
	}

	breakerErr := s.breaker.Execute(ctx, func() error {
		_, upsertErr := s.qdrant.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: kbName,
			Points:         rows,
		})
		return upsertErr
	})
	if errors.Is(breakerErr, resilience.ErrOpen) {
		return 0, coreerrors.New("Store.Upsert", coreerrors.FailedPrecondition, "vector backend circuit open after repeated failures", breakerErr)
	}
	if breakerErr != nil {
		return 0, coreerrors.New("Store.Upsert", coreerrors.Internal, "vector upsert failed", breakerErr)
	}
	return len(points), nil
}

func hostOf(uri string) string {
	// Minimal host/port split; URIs in this domain are always
	// "http://host:port" per SPEC_FULL.md's default.
	host, _ := splitHostPort(uri)
	return host
}

func portOf(uri string) int {
	_, port := splitHostPort(uri)
	return port
}

func splitHostPort(uri string) (string, int) {
	host, portStr, ok := strings.Cut(strings.TrimRight(trimScheme(uri), "/"), ":")
	port, err := strconv.Atoi(portStr)
	if !ok || err != nil || host == "" {
		return "localhost", 6334
	}
	return host, port
}

func trimScheme(uri string) string {
	for _, scheme := range []string{"http://", "https://"} {
		if len(uri) > len(scheme) && uri[:len(scheme)] == scheme {
			return uri[len(scheme):]
		}
	}
	return uri
}
