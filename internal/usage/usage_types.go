package usage

// UsageData represents the root structure stored in persistence.
type UsageData struct {
	Version   string          `json:"version"`
	RunID     string          `json:"run_id,omitempty"`
	Aggregate AggregatedStats `json:"aggregate"`
}

// AggregatedStats holds counters broken down by various dimensions.
type AggregatedStats struct {
	Total       TokenCounts            `json:"total"`
	ByProvider  map[string]TokenCounts `json:"by_provider"`
	ByModel     map[string]TokenCounts `json:"by_model"`
	ByDirection map[string]TokenCounts `json:"by_direction"` // forward, backward
	ByDevice    map[string]TokenCounts `json:"by_device"`    // "cpu", "cuda:0", ...
}

// TokenCounts holds input/output sums.
type TokenCounts struct {
	Requests int64 `json:"requests"`
	Input    int64 `json:"input"`
	Output   int64 `json:"output"`
	Total    int64 `json:"total"`
}

func (tc *TokenCounts) Add(input, output int) {
	tc.Requests++
	tc.Input += int64(input)
	tc.Output += int64(output)
	tc.Total += int64(input + output)
}
