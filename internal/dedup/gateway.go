package dedup

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/resilience"
)

// Gateway turns store deletions into non-fatal boolean outcomes. A failed
// deletion is logged and reported, never returned as an error and never
// retried within the run.
type Gateway struct {
	remover  Remover
	breaker  *resilience.CircuitBreaker
	observer Observer
	logger   *slog.Logger
}

// NewGateway wraps remover with a circuit breaker configured by cfg. A nil
// observer is replaced by NopObserver.
func NewGateway(remover Remover, cfg resilience.CircuitBreakerConfig, observer Observer) *Gateway {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Gateway{
		remover:  remover,
		breaker:  resilience.NewCircuitBreaker("delete", cfg),
		observer: observer,
		logger:   slog.Default().With("component", "deletion-gateway"),
	}
}

// DeleteByID removes id from collection and reports whether it succeeded.
func (g *Gateway) DeleteByID(ctx context.Context, collection string, id ID) bool {
	return g.Delete(ctx, collection, Removal{Collection: collection, ID: id})
}

// Delete removes the record described by rm from table and reports whether it
// succeeded.
func (g *Gateway) Delete(ctx context.Context, table string, rm Removal) bool {
	err := g.breaker.Execute(func() error {
		return g.remover.Remove(ctx, table, rm.ID)
	})
	if err != nil {
		g.logger.Error("cannot remove record",
			"collection", rm.Collection,
			"table", table,
			"id", rm.ID,
			"reason", rm.Reason,
			"error", err,
		)
		g.observer.DeleteFailed(rm, err)
		return false
	}
	g.observer.RecordRemoved(rm)
	return true
}

// BreakerState exposes the breaker state for diagnostics.
func (g *Gateway) BreakerState() resilience.State {
	return g.breaker.GetState()
}
