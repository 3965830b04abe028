// Package search turns a provider's web search answer into the single text result
// returned by the smart_web_search tool. Provider failures never escape Search; they
// come back as text starting with FailurePrefix.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Haoran/smart-websearch-mcp/pkg/claude"
	"github.com/Haoran/smart-websearch-mcp/pkg/metrics"
)

const (
	// FailurePrefix marks a result describing a failed search.
	FailurePrefix = "Search failed: "

	// NoResultsMessage is returned when the provider produced no narrative text.
	NoResultsMessage = "No related search results found."
)

// Provider answers a web search query.
type Provider interface {
	WebSearch(ctx context.Context, query string) (result claude.SearchResponse, err error)
}

// Adapter wraps a Provider. It holds no per-call state and is safe to share across connections.
type Adapter struct {
	provider Provider
	timeout  time.Duration
	logger   *slog.Logger
}

// NewAdapter creates an Adapter. A zero timeout leaves provider calls unbounded.
func NewAdapter(provider Provider, timeout time.Duration, logger *slog.Logger) (result *Adapter) {
	result = &Adapter{
		provider: provider,
		timeout:  timeout,
		logger:   logger,
	}

	return result
}

// Search runs query against the provider and joins the narrative text blocks with newlines.
func (a *Adapter) Search(ctx context.Context, query string) (result string) {
	a.logger.InfoContext(ctx, "searching", slog.String("query", query))

	start := time.Now()
	defer func() {
		metrics.SearchDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	resp, err := a.call(ctx, query)
	if err != nil {
		a.logger.ErrorContext(ctx, "search error", slog.String("error", err.Error()))
		result = FailurePrefix + err.Error()
		return result
	}

	if len(resp.TextResponses) == 0 {
		result = NoResultsMessage
	} else {
		result = strings.Join(resp.TextResponses, "\n")
	}

	a.logger.InfoContext(ctx, "search completed successfully",
		slog.Int("result_length", len(result)),
		slog.Int("sub_queries", len(resp.Queries)))

	return result
}

// call invokes the provider, applying the timeout and converting a panic into an error.
func (a *Adapter) call(ctx context.Context, query string) (resp claude.SearchResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	resp, err = a.provider.WebSearch(ctx, query)
	return resp, err
}
