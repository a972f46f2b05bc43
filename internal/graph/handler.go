package graph

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	graphql "github.com/graph-gophers/graphql-go"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/cachecontrol"
	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/respcache"
	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/session"
)

const maxRequestBody = 256 << 10

var errEmptyQuery = errors.New("graphql: missing query")

// Request is a GraphQL-over-HTTP request.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

// Handler executes GraphQL requests and serves cacheable responses from cache.
type Handler struct {
	schema   *graphql.Schema
	analyzer *cachecontrol.Analyzer
	cache    respcache.Cache
	metrics  *metrics.Metrics
	logger   *zap.SugaredLogger
}

// NewHandler builds the endpoint. cache may be nil to disable response caching.
func NewHandler(schema *graphql.Schema, analyzer *cachecontrol.Analyzer, cache respcache.Cache, m *metrics.Metrics, logger *zap.SugaredLogger) *Handler {
	return &Handler{schema: schema, analyzer: analyzer, cache: cache, metrics: m, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(w, r)
	if err != nil {
		h.logger.Debugw("invalid graphql request", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	ctx := r.Context()

	policy, perr := h.analyzer.Policy(req.Query, req.OperationName)
	key, cacheable := h.cacheKey(r, req, policy, perr)
	if cacheable {
		if body, ok := h.cache.Get(ctx, key); ok {
			h.countCache("hit")
			w.Header().Set("X-Cache", "HIT")
			w.Header().Set("Cache-Control", policy.Header())
			h.writeRaw(w, body)
			return
		}
		h.countCache("miss")
		w.Header().Set("X-Cache", "MISS")
	}

	resp := h.schema.Exec(ctx, req.Query, req.OperationName, req.Variables)
	body, err := json.Marshal(resp)
	if err != nil {
		h.logger.Errorw("encode graphql response", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if len(resp.Errors) > 0 {
		for _, e := range resp.Errors {
			h.logger.Debugw("graphql error", "message", e.Message, "path", e.Path)
		}
		w.Header().Set("Cache-Control", "no-store")
		h.writeRaw(w, body)
		return
	}
	if perr == nil {
		w.Header().Set("Cache-Control", policy.Header())
	}
	if cacheable {
		h.cache.Set(ctx, key, body, policy.MaxAge)
	}
	h.writeRaw(w, body)
}

// cacheKey reports whether the response may be cached and under which key.
// Private responses are keyed by session and skipped for anonymous callers.
func (h *Handler) cacheKey(r *http.Request, req Request, p cachecontrol.Policy, perr error) (string, bool) {
	if h.cache == nil || perr != nil || !p.Cacheable() {
		return "", false
	}
	vars, err := json.Marshal(req.Variables)
	if err != nil {
		return "", false
	}
	scope := "public"
	if p.Scope == cachecontrol.ScopePrivate {
		sid := session.IDFrom(r.Context())
		if sid == "" {
			return "", false
		}
		scope = "private:" + sid
	}
	return respcache.Key(scope, req.Query, req.OperationName, string(vars)), true
}

func (h *Handler) countCache(result string) {
	if h.metrics != nil {
		h.metrics.ResponseCache.WithLabelValues(result).Inc()
	}
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (Request, error) {
	var req Request
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		req.Query = q.Get("query")
		req.OperationName = q.Get("operationName")
		if v := q.Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &req.Variables); err != nil {
				return req, err
			}
		}
	default:
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, err
		}
	}
	if req.Query == "" {
		return req, errEmptyQuery
	}
	return req, nil
}

func (h *Handler) writeRaw(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
