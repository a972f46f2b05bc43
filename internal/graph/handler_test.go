package graph

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/cachecontrol"
	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/datausa"
	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/respcache"
	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/stats"
)

type fakeGateway struct {
	tradeCalls    atomic.Int32
	employmentErr error
}

func (f *fakeGateway) States(context.Context) ([]datausa.State, error) {
	return []datausa.State{
		{ID: "04000US51", Key: "va", Name: "Virginia", Slug: "virginia"},
		{ID: "04000US48", Key: "tx", Name: "Texas", Slug: "texas"},
	}, nil
}

func (f *fakeGateway) Trade(context.Context, string) ([]datausa.TradeRecord, error) {
	f.tradeCalls.Add(1)
	return []datausa.TradeRecord{
		{DestinationState: "Ohio", MillionsOfDollars: 30, ThousandsOfTons: 2},
		{DestinationState: "Maine", MillionsOfDollars: 10, ThousandsOfTons: 4},
	}, nil
}

func (f *fakeGateway) Employment(context.Context, string) ([]datausa.EmploymentRecord, error) {
	if f.employmentErr != nil {
		return nil, f.employmentErr
	}
	return []datausa.EmploymentRecord{
		{IndustryGroup: "Retail", TotalPopulation: 9, AverageWage: 30000},
		{IndustryGroup: "Finance", TotalPopulation: 4, AverageWage: 90000},
	}, nil
}

func (f *fakeGateway) Production(context.Context, string) ([]datausa.ProductionRecord, error) {
	return []datausa.ProductionRecord{{SCTG2: "Coal", MillionsOfDollars: 5, ThousandsOfTons: 50}}, nil
}

func newTestHandler(t *testing.T, gw *fakeGateway) *Handler {
	t.Helper()
	logger := zap.NewNop().Sugar()
	schema, err := NewSchema(NewResolver(stats.NewCatalog(gw), gw, logger), 4)
	require.NoError(t, err)
	analyzer, err := cachecontrol.NewAnalyzer(SchemaSDL, time.Hour)
	require.NoError(t, err)
	return NewHandler(schema, analyzer, respcache.NewMemoryCache(), metrics.New(), logger)
}

type gqlResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
		Path    []any  `json:"path"`
	} `json:"errors"`
}

func post(t *testing.T, h http.Handler, query string, viewer *session.Principal) (*httptest.ResponseRecorder, gqlResponse) {
	t.Helper()
	body, err := json.Marshal(Request{Query: query})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(body))
	if viewer != nil {
		req = req.WithContext(session.WithPrincipal(req.Context(), viewer))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out gqlResponse
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

const tradeQuery = `{ states(name: "Virg") { name tradeSummary { totalDollarAmount statesByDollars { name amount } } } }`

func TestStatesTradeSummaryCached(t *testing.T) {
	gw := &fakeGateway{}
	h := newTestHandler(t, gw)

	rec, out := post(t, h, tradeQuery, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, out.Errors)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, "max-age=3600, public", rec.Header().Get("Cache-Control"))

	var states []struct {
		Name         string `json:"name"`
		TradeSummary struct {
			TotalDollarAmount float64 `json:"totalDollarAmount"`
			StatesByDollars   []struct {
				Name   string  `json:"name"`
				Amount float64 `json:"amount"`
			} `json:"statesByDollars"`
		} `json:"tradeSummary"`
	}
	require.NoError(t, json.Unmarshal(out.Data["states"], &states))
	require.Len(t, states, 1)
	assert.Equal(t, "Virginia", states[0].Name)
	assert.Equal(t, 40.0, states[0].TradeSummary.TotalDollarAmount)
	require.Len(t, states[0].TradeSummary.StatesByDollars, 2)
	assert.Equal(t, "Maine", states[0].TradeSummary.StatesByDollars[0].Name)

	again, _ := post(t, h, tradeQuery, nil)
	assert.Equal(t, "HIT", again.Header().Get("X-Cache"))
	assert.Equal(t, rec.Body.String(), again.Body.String())
	assert.EqualValues(t, 1, gw.tradeCalls.Load())
}

func TestPartialFailureNullsOnlyThatField(t *testing.T) {
	gw := &fakeGateway{employmentErr: errors.New("upstream down")}
	h := newTestHandler(t, gw)
	q := `{ states(name: "Texas") { name tradeSummary { totalTons } employmentSummary { topIndustryByEmployee { industry } } } }`

	rec, out := post(t, h, q, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var states []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out.Data["states"], &states))
	require.Len(t, states, 1)
	assert.JSONEq(t, `null`, string(states[0]["employmentSummary"]))
	assert.JSONEq(t, `{"totalTons":6}`, string(states[0]["tradeSummary"]))

	again, _ := post(t, h, q, nil)
	assert.Equal(t, "MISS", again.Header().Get("X-Cache"), "responses with errors are not cached")
}

func TestEmploymentSummary(t *testing.T) {
	h := newTestHandler(t, &fakeGateway{})
	q := `{ states(name: "Virginia") { employmentSummary {
		topIndustryByEmployee { industry employedCount }
		topIndustryByAverageSalary { industry averageSalary } } } }`

	_, out := post(t, h, q, nil)
	require.Empty(t, out.Errors)
	assert.JSONEq(t, `[{"employmentSummary":{
		"topIndustryByEmployee":{"industry":"Retail","employedCount":9},
		"topIndustryByAverageSalary":{"industry":"Finance","averageSalary":90000}}}]`,
		string(out.Data["states"]))
}

func TestViewer(t *testing.T) {
	h := newTestHandler(t, &fakeGateway{})

	rec, out := post(t, h, `{ viewer { id username } }`, nil)
	assert.JSONEq(t, `null`, string(out.Data["viewer"]))
	assert.Empty(t, rec.Header().Get("X-Cache"))

	rec, out = post(t, h, `{ viewer { id username } }`, &session.Principal{ID: 3, Username: "ada"})
	assert.JSONEq(t, `{"id":3,"username":"ada"}`, string(out.Data["viewer"]))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestGetRequest(t *testing.T) {
	h := newTestHandler(t, &fakeGateway{})
	req := httptest.NewRequest(http.MethodGet, "/graphql?query="+url.QueryEscape(`{ states { key } }`), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"states":[{"key":"va"},{"key":"tx"}]}}`, rec.Body.String())
}

func TestBadRequests(t *testing.T) {
	h := newTestHandler(t, &fakeGateway{})
	for name, body := range map[string]string{"not json": `{`, "empty query": `{"query":""}`} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewBufferString(body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestOversizedBodyRejected(t *testing.T) {
	h := newTestHandler(t, &fakeGateway{})
	body := `{"query":"{ states { key } }","variables":{"pad":"` + string(bytes.Repeat([]byte("x"), maxRequestBody)) + `"}}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewBufferString(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidQueryReportsErrors(t *testing.T) {
	h := newTestHandler(t, &fakeGateway{})
	rec, out := post(t, h, `{ nope }`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, out.Errors)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestPrivateScopeNeedsSession(t *testing.T) {
	h := newTestHandler(t, &fakeGateway{})
	p := cachecontrol.Policy{MaxAge: time.Minute, Scope: cachecontrol.ScopePrivate}

	anon := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	_, ok := h.cacheKey(anon, Request{Query: "{ viewer { id } }"}, p, nil)
	assert.False(t, ok)

	pub := cachecontrol.Policy{MaxAge: time.Minute}
	k1, ok := h.cacheKey(anon, Request{Query: "{ states { id } }"}, pub, nil)
	require.True(t, ok)
	k2, _ := h.cacheKey(anon, Request{Query: "{ states { id } }", Variables: map[string]any{"x": 1}}, pub, nil)
	assert.NotEqual(t, k1, k2)
}
