package stats

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/datausa"
)

type fakeSource struct {
	calls  atomic.Int32
	states []datausa.State
	errs   []error
}

func (f *fakeSource) States(context.Context) ([]datausa.State, error) {
	n := int(f.calls.Add(1)) - 1
	if n < len(f.errs) && f.errs[n] != nil {
		return nil, f.errs[n]
	}
	return f.states, nil
}

var usStates = []datausa.State{
	{ID: "04000US51", Key: "va", Name: "Virginia", Slug: "virginia"},
	{ID: "04000US54", Key: "wv", Name: "West Virginia", Slug: "west-virginia"},
	{ID: "04000US48", Key: "tx", Name: "Texas", Slug: "texas"},
}

func TestCatalogFiltersByPrefix(t *testing.T) {
	c := NewCatalog(&fakeSource{states: usStates})

	got, err := c.States(context.Background(), "Virg")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Virginia", got[0].Name)

	got, err = c.States(context.Background(), "virg")
	require.NoError(t, err)
	assert.Len(t, got, 1, "prefix match ignores case")

	got, err = c.States(context.Background(), "Zz")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = c.States(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, usStates, got)
}

func TestCatalogMemoizes(t *testing.T) {
	src := &fakeSource{states: usStates}
	c := NewCatalog(src)
	assert.False(t, c.Loaded())

	_, err := c.States(context.Background(), "")
	require.NoError(t, err)
	_, err = c.States(context.Background(), "Tex")
	require.NoError(t, err)

	assert.True(t, c.Loaded())
	assert.EqualValues(t, 1, src.calls.Load())
}

func TestCatalogRetriesAfterFailure(t *testing.T) {
	boom := errors.New("upstream down")
	src := &fakeSource{states: usStates, errs: []error{boom}}
	c := NewCatalog(src)

	_, err := c.States(context.Background(), "")
	require.ErrorIs(t, err, boom)
	assert.False(t, c.Loaded())

	got, err := c.States(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestCatalogConcurrentFirstUse(t *testing.T) {
	src := &fakeSource{states: usStates}
	c := NewCatalog(src)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.States(context.Background(), "")
			assert.NoError(t, err)
			assert.Len(t, got, 3)
		}()
	}
	wg.Wait()
	assert.True(t, c.Loaded())
}

// blockingSource holds every fetch until release is closed and honours ctx.
type blockingSource struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingSource) States(ctx context.Context) ([]datausa.State, error) {
	b.started <- struct{}{}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.release:
		return usStates, nil
	}
}

func TestCatalogCancelledCallerDoesNotFailOthers(t *testing.T) {
	src := &blockingSource{started: make(chan struct{}, 4), release: make(chan struct{})}
	c := NewCatalog(src)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.States(ctxA, "")
		errA <- err
	}()
	<-src.started

	type result struct {
		states []datausa.State
		err    error
	}
	resB := make(chan result, 1)
	go func() {
		states, err := c.States(context.Background(), "Virg")
		resB <- result{states, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)

	close(src.release)
	b := <-resB
	require.NoError(t, b.err)
	require.Len(t, b.states, 1)
	assert.True(t, c.Loaded())
}
