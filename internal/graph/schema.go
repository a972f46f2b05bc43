// Package graph serves the State graph over GraphQL.
package graph

import (
	_ "embed"

	graphql "github.com/graph-gophers/graphql-go"
)

//go:embed schema.graphql
var SchemaSDL string

// NewSchema parses the embedded schema and binds it to r. Sibling fields of a
// State resolve concurrently, bounded by parallelism.
func NewSchema(r *Resolver, parallelism int) (*graphql.Schema, error) {
	if parallelism <= 0 {
		parallelism = 10
	}
	return graphql.ParseSchema(SchemaSDL, r,
		graphql.MaxParallelism(parallelism),
		graphql.MaxDepth(8),
	)
}
