package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"backtranslate/internal/usage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = url
	cfg.RetryBackoffBase = time.Millisecond
	cfg.Timeout = 5 * time.Second
	return cfg
}

func TestServerEngine_Translate(t *testing.T) {
	var got serverTranslateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/translate", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		out := make([]string, len(got.Texts))
		for i, s := range got.Texts {
			out[i] = strings.ToUpper(s)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"translations": out,
			"usage":        map[string]int{"input_tokens": 4, "output_tokens": 6},
		})
	}))
	defer server.Close()

	cfg := testConfig(server.URL + "/")
	cfg.APIKey = "secret"
	e, err := NewServerEngine(cfg, Route{Model: "transformer.wmt19.en-de.single_model", From: "en", To: "de", Device: 1})
	require.NoError(t, err)

	tracker := usage.NewTracker("t")
	ctx := usage.NewContext(usage.WithDirection(context.Background(), DirectionForward), tracker)

	opts := validOptions()
	opts.BeamSize = 5
	out, err := e.Translate(ctx, []string{"hello", "world"}, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"HELLO", "WORLD"}, out)

	assert.Equal(t, "transformer.wmt19.en-de.single_model", got.Model)
	assert.Equal(t, "en", got.SourceLang)
	assert.Equal(t, "de", got.TargetLang)
	assert.Equal(t, 1, got.Device)
	assert.Equal(t, 5, got.BeamSize)
	assert.Equal(t, "moses", got.Tokenizer)
	assert.Equal(t, "fastbpe", got.BPE)
	assert.Equal(t, -1, got.SamplingTopK)
	assert.Equal(t, 300, got.MaxLen)

	stats := tracker.Stats()
	assert.Equal(t, int64(10), stats.ByDirection[DirectionForward].Total)
	assert.Equal(t, int64(10), stats.ByProvider[ProviderServer].Total)
}

func TestServerEngine_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"translations": ["only one"]}`))
	}))
	defer server.Close()

	e, err := NewServerEngine(testConfig(server.URL), Route{Model: "m", Device: CPUDevice})
	require.NoError(t, err)

	_, err = e.Translate(context.Background(), []string{"a", "b"}, validOptions())
	assert.ErrorIs(t, err, ErrCountMismatch)
}

func TestServerEngine_ErrorField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": "CUDA out of memory"}`))
	}))
	defer server.Close()

	e, err := NewServerEngine(testConfig(server.URL), Route{Model: "m"})
	require.NoError(t, err)

	_, err = e.Translate(context.Background(), []string{"a"}, validOptions())
	assert.ErrorContains(t, err, "CUDA out of memory")
}

func TestServerEngine_RetryAndBackoff(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		switch n {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
			return
		case 2:
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"translations": ["ok"]}`))
	}))
	defer server.Close()

	e, err := NewServerEngine(testConfig(server.URL), Route{Model: "m"})
	require.NoError(t, err)

	out, err := e.Translate(context.Background(), []string{"a"}, validOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, out)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestServerEngine_NoRetryOnClientError(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "unknown model", http.StatusBadRequest)
	}))
	defer server.Close()

	e, err := NewServerEngine(testConfig(server.URL), Route{Model: "m"})
	require.NoError(t, err)

	_, err = e.Translate(context.Background(), []string{"a"}, validOptions())
	assert.ErrorContains(t, err, "status 400")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestServerEngine_MaxRetriesExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.MaxRetries = 1
	e, err := NewServerEngine(cfg, Route{Model: "m"})
	require.NoError(t, err)

	_, err = e.Translate(context.Background(), []string{"a"}, validOptions())
	assert.ErrorContains(t, err, "max retries exceeded")
}

func TestServerEngine_PerDeviceEndpoint(t *testing.T) {
	hits := make(chan string, 1)
	gpu1 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- "gpu1"
		w.Write([]byte(`{"translations": ["x"]}`))
	}))
	defer gpu1.Close()

	cfg := testConfig("http://127.0.0.1:1")
	cfg.Endpoints = []string{"http://127.0.0.1:1", gpu1.URL}
	e, err := NewServerEngine(cfg, Route{Model: "m", Device: 5, Slot: 1})
	require.NoError(t, err)

	_, err = e.Translate(context.Background(), []string{"a"}, validOptions())
	require.NoError(t, err)
	assert.Equal(t, "gpu1", <-hits)
}

func TestServerEngine_EmptyInput(t *testing.T) {
	e, err := NewServerEngine(testConfig("http://127.0.0.1:1"), Route{Model: "m"})
	require.NoError(t, err)
	out, err := e.Translate(context.Background(), nil, validOptions())
	require.NoError(t, err)
	assert.Empty(t, out)
}
