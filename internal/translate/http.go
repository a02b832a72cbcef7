package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"backtranslate/internal/logging"

	"go.uber.org/zap"
)

// httpDoer posts JSON and retries rate limits, server errors and transport
// failures with exponential backoff.
type httpDoer struct {
	client      *http.Client
	maxRetries  int
	backoffBase time.Duration
	headers     map[string]string
}

func newHTTPDoer(cfg Config) *httpDoer {
	return &httpDoer{
		client:      &http.Client{Timeout: cfg.Timeout},
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.RetryBackoffBase,
		headers:     map[string]string{},
	}
}

// postJSON marshals in, posts it to url and decodes the 200 response into out.
func (d *httpDoer) postJSON(ctx context.Context, url string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for i := 0; i <= d.maxRetries; i++ {
		if i > 0 {
			// Exponential backoff: base, 2*base, 4*base
			wait := d.backoffBase * time.Duration(1<<uint(i-1))
			logging.Get(logging.CategoryTranslate).Debug("Retrying request",
				zap.String("url", url),
				zap.Int("attempt", i),
				zap.Duration("backoff", wait),
				zap.Error(lastErr))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		body, status, err := d.do(ctx, url, payload)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}

		if status == http.StatusTooManyRequests || status >= 500 {
			lastErr = fmt.Errorf("status %d: %s", status, truncate(string(body), 200))
			continue
		}
		if status != http.StatusOK {
			return fmt.Errorf("request failed with status %d: %s", status, truncate(string(body), 500))
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (d *httpDoer) do(ctx context.Context, url string, payload []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range d.headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
