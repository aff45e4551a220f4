// Package repo defines generic read access to stored entities and a Neo4j
// implementation over a narrow session interface.
package repo

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no entity has the id.
var ErrNotFound = errors.New("repo: not found")

// Reader is generic read access to one entity type.
type Reader[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
	Count(ctx context.Context) (int64, error)
}

// ListOpts controls pagination for List. A non-positive Limit uses
// DefaultListLimit.
type ListOpts struct {
	Offset int
	Limit  int
}

// DefaultListLimit is the page size when ListOpts.Limit is unset.
const DefaultListLimit = 100
