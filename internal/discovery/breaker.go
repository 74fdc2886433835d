package discovery

import (
	"context"

	"github.com/vantdge/evidence-cli/internal/resilience"
)

// GuardedSearcher wraps a Searcher with a circuit breaker. Web search is a
// per-drug fallback, so a provider outage would otherwise cost one timeout
// per drug for the rest of the session.
type GuardedSearcher struct {
	inner   Searcher
	breaker *resilience.CircuitBreaker
}

// Guard wraps a searcher. A nil breaker gets the default policy.
func Guard(inner Searcher, breaker *resilience.CircuitBreaker) *GuardedSearcher {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig())
	}
	return &GuardedSearcher{inner: inner, breaker: breaker}
}

// Search proxies to the wrapped searcher while the circuit allows it.
func (g *GuardedSearcher) Search(ctx context.Context, query string) (string, error) {
	return resilience.ExecuteVal(ctx, g.breaker, func(ctx context.Context) (string, error) {
		return g.inner.Search(ctx, query)
	})
}
