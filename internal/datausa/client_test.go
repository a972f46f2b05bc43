package datausa

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/metrics"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/"}, metrics.New(), zap.NewNop().Sugar())
}

func TestStates(t *testing.T) {
	var got url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/searchLegacy", r.URL.Path)
		got = r.URL.Query()
		_, _ = w.Write([]byte(`{"results":[
			{"id":"04000US51","key":"va","name":"Virginia","slug":"virginia","extra":1},
			{"id":"04000US48","key":"tx","name":"Texas","slug":"texas"}]}`))
	})

	states, err := c.States(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, State{ID: "04000US51", Key: "va", Name: "Virginia", Slug: "virginia"}, states[0])
	assert.Equal(t, "Texas", states[1].Name)
	assert.Equal(t, "Geography", got.Get("dimension"))
	assert.Equal(t, "State", got.Get("hierarchy"))
	assert.Equal(t, "50000", got.Get("limit"))
}

func TestTradeQueryAndDecode(t *testing.T) {
	var raw string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/data", r.URL.Path)
		raw = r.URL.RawQuery
		q := r.URL.Query()
		assert.Equal(t, "04000US51", q.Get("Origin State"))
		assert.Equal(t, "Millions Of Dollars,Thousands Of Tons", q.Get("measure"))
		assert.Equal(t, "Destination State", q.Get("drilldowns"))
		assert.Equal(t, "latest", q.Get("year"))
		_, _ = w.Write([]byte(`{"data":[
			{"Destination State":"Ohio","Millions Of Dollars":12.5,"Thousands Of Tons":3},
			{"Destination State":"Texas","Millions Of Dollars":1,"Thousands Of Tons":0.5}]}`))
	})

	recs, err := c.Trade(context.Background(), "04000US51")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Ohio", recs[0].DestinationState)
	assert.Equal(t, 12.5, recs[0].MillionsOfDollars)
	assert.Equal(t, 0.5, recs[1].ThousandsOfTons)
	assert.NotContains(t, raw, "+", "spaces are sent as %20")
}

func TestEmploymentAndProductionQueries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch q.Get("drilldowns") {
		case "Industry Group":
			assert.Equal(t, "04000US51", q.Get("Geography"))
			assert.Equal(t, "Total Population,Average Wage", q.Get("measure"))
			assert.Equal(t, "latest", q.Get("Year"))
			_, _ = w.Write([]byte(`{"data":[{"Industry Group":"Retail","Total Population":9,"Average Wage":30000}]}`))
		case "SCTG2":
			assert.Equal(t, "04000US51", q.Get("Origin State"))
			_, _ = w.Write([]byte(`{"data":[{"SCTG2":"Coal","Millions Of Dollars":7,"Thousands Of Tons":70}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	emp, err := c.Employment(context.Background(), "04000US51")
	require.NoError(t, err)
	require.Len(t, emp, 1)
	assert.Equal(t, "Retail", emp[0].IndustryGroup)
	assert.Equal(t, 30000.0, emp[0].AverageWage)

	prod, err := c.Production(context.Background(), "04000US51")
	require.NoError(t, err)
	require.Len(t, prod, 1)
	assert.Equal(t, "Coal", prod[0].SCTG2)
	assert.Equal(t, 70.0, prod[0].ThousandsOfTons)
}

func TestEmptyDataIsNotAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	})
	recs, err := c.Production(context.Background(), "04000US51")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestUpstreamFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"non-200", http.StatusBadGateway, `{"data":[]}`, ErrUpstreamStatus},
		{"malformed", http.StatusOK, `{"data":[`, ErrMalformedResponse},
		{"missing data", http.StatusOK, `{"rows":[]}`, ErrMissingField},
		{"null data", http.StatusOK, `{"data":null}`, ErrMissingField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Trade(context.Background(), "04000US51")
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestStatesMissingResults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	})
	_, err := c.States(context.Background())
	require.ErrorIs(t, err, ErrMissingField)
}

func TestCancelledCallerDoesNotFailSharedRequest(t *testing.T) {
	hit := make(chan struct{}, 4)
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hit <- struct{}{}
		<-release
		_, _ = w.Write([]byte(`{"data":[{"Destination State":"Ohio","Millions Of Dollars":1}]}`))
	})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Trade(ctxA, "04000US51")
		errA <- err
	}()
	<-hit

	type result struct {
		recs []TradeRecord
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		recs, err := c.Trade(context.Background(), "04000US51")
		resB <- result{recs, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)

	close(release)
	b := <-resB
	require.NoError(t, b.err)
	require.Len(t, b.recs, 1)
	assert.Equal(t, "Ohio", b.recs[0].DestinationState)
}
