package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"backtranslate/internal/config"
	"backtranslate/internal/translate"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newAugmentTestCmd returns a fresh augment command with args parsed into
// augmentArgs, so Changed reflects only this test's flags.
func newAugmentTestCmd(t *testing.T, args ...string) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	logger = zap.NewNop()
	cfg = config.DefaultConfig()
	augmentArgs = augmentFlags{}

	cmd := &cobra.Command{Use: "augment"}
	registerAugmentFlags(cmd, &augmentArgs)
	require.NoError(t, cmd.ParseFlags(args))

	var out bytes.Buffer
	cmd.SetOut(&out)
	return cmd, &out
}

func translationServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Texts  []string `json:"texts"`
			Target string   `json:"target_lang"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		out := make([]string, len(req.Texts))
		for i, s := range req.Texts {
			out[i] = "[" + req.Target + "]" + s
		}
		json.NewEncoder(w).Encode(map[string]any{"translations": out})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestApplyAugmentFlags_OnlyChanged(t *testing.T) {
	cmd, _ := newAugmentTestCmd(t, "--batch-size", "16", "--sampling=false", "--gpus", "1,0", "--no-progress")

	c := config.DefaultConfig()
	c.Decoding.MaxLen = 128 // from a config file
	c.Translation.Provider = translate.ProviderOllama

	applyAugmentFlags(cmd, augmentArgs, c)

	assert.Equal(t, 16, c.Decoding.BatchSize)
	assert.False(t, c.Decoding.Sampling)
	assert.Equal(t, []int{1, 0}, c.Devices.GPUs)
	assert.False(t, c.Output.Progress)
	assert.Equal(t, 128, c.Decoding.MaxLen, "unset flag must not clobber config")
	assert.Equal(t, translate.ProviderOllama, c.Translation.Provider)
}

func TestRunAugment_EndToEnd(t *testing.T) {
	server := translationServer(t)
	dir := t.TempDir()
	input := filepath.Join(dir, "imdb_test.tsv")
	require.NoError(t, os.WriteFile(input, []byte("sentence\tlabel\nnice<br />film\tpos\nbad\tneg\n"), 0644))
	outDir := filepath.Join(dir, "out")

	cmd, out := newAugmentTestCmd(t,
		"--data-dir", input,
		"--output-dir", outDir,
		"--batch-size", "1",
		"--no-cuda",
		"--no-progress",
		"--pairs-db", filepath.Join(dir, "pairs.db"),
	)
	cfg.Translation.BaseURL = server.URL

	require.NoError(t, runAugment(cmd, nil))
	assert.Contains(t, out.String(), "Back-translated 2 rows")

	data, err := os.ReadFile(filepath.Join(outDir, "bt_imdb_test.tsv"))
	require.NoError(t, err)
	assert.Equal(t, "sentence\tlabel\n[en][de]nice film\tpos\n[en][de]bad\tneg\n", string(data))

	_, err = os.Stat(filepath.Join(dir, "pairs.db"))
	assert.NoError(t, err)
}

func TestRunAugment_TooManyGPUs(t *testing.T) {
	cmd, _ := newAugmentTestCmd(t,
		"--data-dir", "in.tsv", "--output-dir", "out", "--batch-size", "4", "--gpus", "0,1,2")
	cfg.Devices.Available = 2

	err := runAugment(cmd, nil)
	assert.ErrorContains(t, err, "the number of GPU used is more than you have")
}

func TestRunAugment_InvalidConfig(t *testing.T) {
	cmd, _ := newAugmentTestCmd(t, "--data-dir", "in.tsv", "--output-dir", "out", "--batch-size", "0")
	assert.ErrorContains(t, runAugment(cmd, nil), "batch_size")

	cmd, _ = newAugmentTestCmd(t, "--data-dir", "in.tsv", "--output-dir", "out", "--batch-size", "2", "--clean", "html")
	assert.ErrorContains(t, runAugment(cmd, nil), "output.clean")
}

func TestConfigInitAndShow(t *testing.T) {
	logger = zap.NewNop()
	configPath = filepath.Join(t.TempDir(), "bt.yaml")
	defer func() { configPath = config.DefaultPath }()

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	require.NoError(t, runConfigInit(cmd, nil))
	assert.ErrorContains(t, runConfigInit(cmd, nil), "already exists")

	loaded, err := config.Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, 300, loaded.Decoding.MaxLen)

	cfg = loaded
	cfg.Translation.APIKey = "very-secret"
	out.Reset()
	require.NoError(t, runConfigShow(cmd, nil))
	assert.Contains(t, out.String(), "src2tgt_model: transformer.wmt19.en-de.single_model")
	assert.NotContains(t, out.String(), "very-secret")
	assert.Equal(t, "very-secret", cfg.Translation.APIKey, "show must not mutate the live config")
}

func TestRunDevices_Endpoints(t *testing.T) {
	cfg = config.DefaultConfig()
	cfg.Translation.Endpoints = []string{"http://gpu0:8090", "http://gpu1:8090"}

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	require.NoError(t, runDevices(cmd, nil))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[2], "http://gpu1:8090")
}
