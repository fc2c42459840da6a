package kafka

import (
	"context"

	"github.com/paulmach/orb"
)

// LayerCache is the in-memory layer store.
type LayerCache interface {
	Invalidate(id string) bool
}

// ReportInvalidator is the report cache. InvalidateBound returns -1 when it
// fell back to a generation bump.
type ReportInvalidator interface {
	InvalidateBound(ctx context.Context, b orb.Bound) (int, error)
	BumpGeneration(ctx context.Context) (int64, error)
}
