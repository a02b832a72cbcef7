// Package usage accumulates the token counts translation providers report.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

type contextKey struct{}

type directionKey struct{}

type deviceKey struct{}

// Tracker aggregates token usage for one run.
type Tracker struct {
	mu   sync.Mutex
	data UsageData
}

// NewTracker creates an empty tracker for the run.
func NewTracker(runID string) *Tracker {
	return &Tracker{
		data: UsageData{
			Version: "1.0",
			RunID:   runID,
			Aggregate: AggregatedStats{
				ByProvider:  make(map[string]TokenCounts),
				ByModel:     make(map[string]TokenCounts),
				ByDirection: make(map[string]TokenCounts),
				ByDevice:    make(map[string]TokenCounts),
			},
		},
	}
}

// Track records one provider request.
func (t *Tracker) Track(ctx context.Context, model, provider string, input, output int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	direction := "unknown"
	if val, ok := ctx.Value(directionKey{}).(string); ok {
		direction = val
	}
	device := "unknown"
	if val, ok := ctx.Value(deviceKey{}).(string); ok {
		device = val
	}

	t.data.Aggregate.Total.Add(input, output)
	addToMap(t.data.Aggregate.ByProvider, provider, input, output)
	addToMap(t.data.Aggregate.ByModel, model, input, output)
	addToMap(t.data.Aggregate.ByDirection, direction, input, output)
	addToMap(t.data.Aggregate.ByDevice, device, input, output)
}

// Stats returns a copy of the aggregated stats.
func (t *Tracker) Stats() AggregatedStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.data.Aggregate
	stats.ByProvider = copyTokenCountsMap(stats.ByProvider)
	stats.ByModel = copyTokenCountsMap(stats.ByModel)
	stats.ByDirection = copyTokenCountsMap(stats.ByDirection)
	stats.ByDevice = copyTokenCountsMap(stats.ByDevice)
	return stats
}

// WriteTo writes the usage report as indented JSON.
func (t *Tracker) WriteTo(w io.Writer) (int64, error) {
	t.mu.Lock()
	data, err := json.MarshalIndent(t.data, "", "  ")
	t.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("failed to marshal usage: %w", err)
	}
	n, err := w.Write(append(data, '\n'))
	return int64(n), err
}

func copyTokenCountsMap(src map[string]TokenCounts) map[string]TokenCounts {
	if src == nil {
		return nil
	}
	dst := make(map[string]TokenCounts, len(src))
	for key, counts := range src {
		dst[key] = counts
	}
	return dst
}

func addToMap(m map[string]TokenCounts, key string, input, output int) {
	entry := m[key]
	entry.Add(input, output)
	m[key] = entry
}

// Context Helpers

// NewContext returns a new context carrying the tracker.
func NewContext(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// FromContext retrieves the tracker from the context.
func FromContext(ctx context.Context) *Tracker {
	t, _ := ctx.Value(contextKey{}).(*Tracker)
	return t
}

// WithDirection tags requests made under ctx as forward or backward.
func WithDirection(ctx context.Context, direction string) context.Context {
	return context.WithValue(ctx, directionKey{}, direction)
}

// WithDevice tags requests made under ctx with the worker's device.
func WithDevice(ctx context.Context, device string) context.Context {
	return context.WithValue(ctx, deviceKey{}, device)
}
