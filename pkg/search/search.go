// Package search provides the agent's single external capability: web
// search. Providers return results in one uniform shape regardless of
// backend, and the Gateway enforces the per-call timeout policy.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"seeker/pkg/config"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrSearchFailed marks a failed search call (timeout, provider error).
// Empty results are not a failure. The agent loop converts this error
// into an observation instead of aborting the run.
var ErrSearchFailed = errors.New("search failed")

// Result is a single item returned by a Provider.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// Provider executes a query and returns results.
type Provider interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// NewProviderFromConfig selects a provider implementation by name.
func NewProviderFromConfig(cfg config.SearchConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "duckduckgo":
		return NewDuckDuckGo(), nil
	case "tavily":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("tavily search requires an API key")
		}
		return NewTavily(cfg.APIKey, ""), nil
	default:
		return nil, fmt.Errorf("unknown search provider: %s", cfg.Provider)
	}
}

// Gateway wraps a Provider with the per-call timeout policy.
type Gateway struct {
	provider Provider
	timeout  time.Duration
}

// NewGateway constructs a Gateway. A non-positive timeout disables the
// per-call deadline and relies on the caller's context alone.
func NewGateway(provider Provider, timeout time.Duration) *Gateway {
	return &Gateway{provider: provider, timeout: timeout}
}

// Search runs one query through the configured provider. Failures come
// back wrapped in ErrSearchFailed; an empty result list is a valid
// outcome, not an error.
func (g *Gateway) Search(ctx context.Context, query string) ([]Result, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	started := time.Now()
	results, err := g.provider.Search(ctx, query)
	if err != nil {
		slog.WarnContext(ctx, "Search call failed", "query", query, "elapsed", time.Since(started), "error", err)
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	slog.DebugContext(ctx, "Search completed", "query", query, "results", len(results), "elapsed", time.Since(started))
	return results, nil
}
