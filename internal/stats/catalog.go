package stats

import (
	"context"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/datausa"
)

// StateSource fetches the full state listing.
type StateSource interface {
	States(ctx context.Context) ([]datausa.State, error)
}

// Catalog memoizes the state listing for the life of the process. The first
// successful fetch wins; a failed fetch leaves the catalog empty so the next
// call tries again. A caller that gives up does not cancel the shared fetch.
type Catalog struct {
	src    StateSource
	states atomic.Pointer[[]datausa.State]
	group  singleflight.Group
}

func NewCatalog(src StateSource) *Catalog {
	return &Catalog{src: src}
}

// States returns the states whose name starts with prefix, case-insensitively.
// An empty prefix returns the whole list.
func (c *Catalog) States(ctx context.Context, prefix string) ([]datausa.State, error) {
	all, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		return all, nil
	}
	p := strings.ToLower(prefix)
	out := make([]datausa.State, 0)
	for _, s := range all {
		if strings.HasPrefix(strings.ToLower(s.Name), p) {
			out = append(out, s)
		}
	}
	return out, nil
}

// Loaded reports whether the listing has been memoized.
func (c *Catalog) Loaded() bool {
	return c.states.Load() != nil
}

func (c *Catalog) load(ctx context.Context) ([]datausa.State, error) {
	if p := c.states.Load(); p != nil {
		return *p, nil
	}
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan("states", func() (any, error) {
		if p := c.states.Load(); p != nil {
			return *p, nil
		}
		list, err := c.src.States(shared)
		if err != nil {
			return nil, err
		}
		c.states.CompareAndSwap(nil, &list)
		return *c.states.Load(), nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]datausa.State), nil
	}
}
