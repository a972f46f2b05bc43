// Package cachecontrol derives a response cache policy for a GraphQL query
// from the @cacheControl hints declared in the schema.
//
// Rules:
//   - a field hint wins over a hint on the field's return type;
//   - root fields and fields returning objects without any hint get the default max age;
//   - scalar fields without a hint inherit from their parent;
//   - the response max age is the minimum over all selected fields, and any
//     PRIVATE hint makes the whole response private.
package cachecontrol

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

const directiveName = "cacheControl"

type Scope int

const (
	ScopePublic Scope = iota
	ScopePrivate
)

func (s Scope) String() string {
	if s == ScopePrivate {
		return "private"
	}
	return "public"
}

// Policy is the cache policy of one response.
type Policy struct {
	MaxAge time.Duration
	Scope  Scope
}

// Cacheable reports whether the response may be stored at all.
func (p Policy) Cacheable() bool { return p.MaxAge > 0 }

// Header renders p as a Cache-Control header value.
func (p Policy) Header() string {
	if !p.Cacheable() {
		return "no-store"
	}
	return fmt.Sprintf("max-age=%d, %s", int(p.MaxAge/time.Second), p.Scope)
}

// Analyzer holds the parsed schema used to validate queries and read hints.
type Analyzer struct {
	schema        *ast.Schema
	defaultMaxAge time.Duration
}

func NewAnalyzer(sdl string, defaultMaxAge time.Duration) (*Analyzer, error) {
	s, err := gqlparser.LoadSchema(&ast.Source{Name: "schema.graphql", Input: sdl})
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	return &Analyzer{schema: s, defaultMaxAge: defaultMaxAge}, nil
}

// Policy validates query against the schema and computes its cache policy.
func (a *Analyzer) Policy(query, operationName string) (Policy, error) {
	doc, errs := gqlparser.LoadQuery(a.schema, query)
	if len(errs) > 0 {
		return Policy{}, errs
	}
	op := pickOperation(doc, operationName)
	if op == nil {
		return Policy{}, fmt.Errorf("operation %q not found", operationName)
	}
	w := walker{a: a}
	w.selections(op.SelectionSet, true)
	if !w.seen || w.maxAge == nil {
		return Policy{Scope: w.scope}, nil
	}
	return Policy{MaxAge: time.Duration(*w.maxAge) * time.Second, Scope: w.scope}, nil
}

func pickOperation(doc *ast.QueryDocument, name string) *ast.OperationDefinition {
	if name == "" {
		if len(doc.Operations) == 1 {
			return doc.Operations[0]
		}
		return nil
	}
	return doc.Operations.ForName(name)
}

type hint struct {
	maxAge  *int
	private bool
}

type walker struct {
	a      *Analyzer
	maxAge *int
	scope  Scope
	seen   bool
}

func (w *walker) selections(set ast.SelectionSet, root bool) {
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			w.field(s, root)
		case *ast.InlineFragment:
			w.selections(s.SelectionSet, root)
		case *ast.FragmentSpread:
			if s.Definition != nil {
				w.selections(s.Definition.SelectionSet, root)
			}
		}
	}
}

func (w *walker) field(f *ast.Field, root bool) {
	if f.Name == "__typename" || f.Definition == nil {
		return
	}
	w.seen = true
	if strings.HasPrefix(f.Name, "__") {
		// introspection is never cached
		w.apply(hint{maxAge: intPtr(0)})
		return
	}

	h := readHint(f.Definition.Directives)
	ret := w.a.schema.Types[f.Definition.Type.Name()]
	composite := ret != nil && (ret.Kind == ast.Object || ret.Kind == ast.Interface || ret.Kind == ast.Union)
	if h.maxAge == nil && composite {
		th := readHint(ret.Directives)
		h.maxAge = th.maxAge
		h.private = h.private || th.private
	}
	if h.maxAge == nil && (composite || root) {
		h.maxAge = intPtr(int(w.a.defaultMaxAge / time.Second))
	}
	w.apply(h)
	w.selections(f.SelectionSet, false)
}

func (w *walker) apply(h hint) {
	if h.private {
		w.scope = ScopePrivate
	}
	if h.maxAge != nil && (w.maxAge == nil || *h.maxAge < *w.maxAge) {
		w.maxAge = intPtr(*h.maxAge)
	}
}

func readHint(dirs ast.DirectiveList) hint {
	var h hint
	d := dirs.ForName(directiveName)
	if d == nil {
		return h
	}
	if arg := d.Arguments.ForName("maxAge"); arg != nil && arg.Value != nil {
		if n, err := strconv.Atoi(arg.Value.Raw); err == nil {
			h.maxAge = intPtr(n)
		}
	}
	if arg := d.Arguments.ForName("scope"); arg != nil && arg.Value != nil {
		h.private = arg.Value.Raw == "PRIVATE"
	}
	return h
}

func intPtr(n int) *int { return &n }
