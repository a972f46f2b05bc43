// Package datausa is the gateway to the datausa.io statistics API. Every
// call issues one outbound GET and returns the raw ordered records.
package datausa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/metrics"
)

var (
	ErrUpstreamStatus    = errors.New("datausa: unexpected status")
	ErrMalformedResponse = errors.New("datausa: malformed response")
	ErrMissingField      = errors.New("datausa: response field missing")
	ErrCircuitOpen       = errors.New("datausa: circuit open")
)

const (
	measureTrade      = "Millions Of Dollars,Thousands Of Tons"
	measureEmployment = "Total Population,Average Wage"
	latest            = "latest"
	breakerName       = "datausa"
)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to datausa. Identical concurrent requests share one round trip.
type Client struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker[[]byte]
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *zap.SugaredLogger
}

func NewClient(cfg Config, m *metrics.Metrics, logger *zap.SugaredLogger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		metrics: m,
		logger:  logger,
	}
	c.cb = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnw("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			if m != nil {
				m.BreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return c
}

// States lists every US state known to datausa.
func (c *Client) States(ctx context.Context) ([]State, error) {
	q := url.Values{
		"dimension": {"Geography"},
		"hierarchy": {"State"},
		"limit":     {"50000"},
	}
	var env struct {
		Results *[]State `json:"results"`
	}
	if err := c.getJSON(ctx, "states", "/api/searchLegacy", q, &env); err != nil {
		return nil, err
	}
	if env.Results == nil {
		return nil, fmt.Errorf("%w: results", ErrMissingField)
	}
	return *env.Results, nil
}

// Trade returns the interstate trade flows leaving stateID, by destination state.
func (c *Client) Trade(ctx context.Context, stateID string) ([]TradeRecord, error) {
	q := url.Values{
		"Origin State": {stateID},
		"measure":      {measureTrade},
		"drilldowns":   {"Destination State"},
		"year":         {latest},
	}
	return getData[TradeRecord](ctx, c, "trade", q)
}

// Employment returns the industry groups of stateID with headcount and wages.
func (c *Client) Employment(ctx context.Context, stateID string) ([]EmploymentRecord, error) {
	q := url.Values{
		"Geography":  {stateID},
		"measure":    {measureEmployment},
		"drilldowns": {"Industry Group"},
		"Year":       {latest},
	}
	return getData[EmploymentRecord](ctx, c, "employment", q)
}

// Production returns the outbound flows of stateID by SCTG2 production type.
func (c *Client) Production(ctx context.Context, stateID string) ([]ProductionRecord, error) {
	q := url.Values{
		"Origin State": {stateID},
		"measure":      {measureTrade},
		"drilldowns":   {"SCTG2"},
		"year":         {latest},
	}
	return getData[ProductionRecord](ctx, c, "production", q)
}

func getData[T any](ctx context.Context, c *Client, name string, q url.Values) ([]T, error) {
	var env struct {
		Data *[]T `json:"data"`
	}
	if err := c.getJSON(ctx, name, "/api/data", q, &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return nil, fmt.Errorf("%w: data", ErrMissingField)
	}
	return *env.Data, nil
}

func (c *Client) getJSON(ctx context.Context, name, path string, q url.Values, out any) error {
	u := c.baseURL + path + "?" + strings.ReplaceAll(q.Encode(), "+", "%20")
	body, err := c.fetch(ctx, name, u)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.observe(name, "malformed")
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// fetch runs one round trip per URL no matter how many callers ask for it.
// The shared call outlives any single caller's cancellation and is bounded
// by the client timeout; each caller still stops waiting when its own ctx ends.
func (c *Client) fetch(ctx context.Context, name, u string) ([]byte, error) {
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(u, func() (any, error) {
		return c.cb.Execute(func() ([]byte, error) {
			return c.do(shared, name, u)
		})
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		c.observe(name, "abandoned")
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		if errors.Is(res.Err, gobreaker.ErrOpenState) || errors.Is(res.Err, gobreaker.ErrTooManyRequests) {
			c.observe(name, "rejected")
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, res.Err)
		}
		return nil, res.Err
	}
	if res.Shared {
		c.logger.Debugw("datausa request coalesced", "query", name)
	}
	return res.Val.([]byte), nil
}

func (c *Client) do(ctx context.Context, name, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		c.observe(name, "error")
		return nil, fmt.Errorf("datausa %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.observe(name, "status")
		return nil, fmt.Errorf("%w: %s returned %d", ErrUpstreamStatus, name, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(name, "error")
		return nil, fmt.Errorf("datausa %s: read body: %w", name, err)
	}
	c.observe(name, "ok")
	c.logger.Debugw("datausa request", "query", name, "duration_ms", time.Since(start).Milliseconds())
	return body, nil
}

func (c *Client) observe(name, outcome string) {
	if c.metrics != nil {
		c.metrics.UpstreamRequests.WithLabelValues(name, outcome).Inc()
	}
}
