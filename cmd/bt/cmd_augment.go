package main

import (
	"fmt"
	"time"

	"backtranslate/internal/augment"
	"backtranslate/internal/config"
	"backtranslate/internal/device"
	"backtranslate/internal/storage"
	"backtranslate/internal/store"
	"backtranslate/internal/textclean"
	"backtranslate/internal/translate"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// augmentFlags holds the augment command line. Flags left unset keep the
// value from the config file.
type augmentFlags struct {
	dataDir   string
	outputDir string

	src2tgtModel string
	tgt2srcModel string
	tokenizer    string
	bpe          string
	provider     string

	batchSize   int
	maxLen      int
	topK        int
	topP        float64
	beamSize    int
	sampling    bool
	temperature float64

	gpus   []int
	noCUDA bool

	clean      string
	pairsDB    string
	usageFile  bool
	noProgress bool
}

var augmentArgs augmentFlags

// augmentCmd runs one back-translation job
var augmentCmd = &cobra.Command{
	Use:   "augment",
	Short: "Back-translate a labeled TSV dataset",
	Long: `Reads a TSV file (header, then text<TAB>label rows), paraphrases every text
through the pivot language and writes bt_<name> into the output directory with
the same header and labels.

Both paths may be local or s3:// URIs.

Example:
  bt augment --data-dir data/imdb_train.tsv --output-dir out --batch-size 32 --gpus 0,1`,
	RunE: runAugment,
}

func init() {
	registerAugmentFlags(augmentCmd, &augmentArgs)
	augmentCmd.MarkFlagRequired("data-dir")
	augmentCmd.MarkFlagRequired("output-dir")
	augmentCmd.MarkFlagRequired("batch-size")
}

func registerAugmentFlags(cmd *cobra.Command, a *augmentFlags) {
	f := cmd.Flags()
	d := config.DefaultConfig()

	f.StringVar(&a.dataDir, "data-dir", "", "Input TSV file path or s3:// URI (required)")
	f.StringVar(&a.outputDir, "output-dir", "", "Output directory or s3:// prefix (required)")

	f.StringVar(&a.src2tgtModel, "src2tgt-model", d.Translation.Src2TgtModel, "Source to pivot translation model")
	f.StringVar(&a.tgt2srcModel, "tgt2src-model", d.Translation.Tgt2SrcModel, "Pivot to source translation model")
	f.StringVar(&a.tokenizer, "tokenizer", d.Translation.Tokenizer, "Tokenizer used by the translation server")
	f.StringVar(&a.bpe, "bpe", d.Translation.BPE, "BPE used by the translation server")
	f.StringVar(&a.provider, "provider", d.Translation.Provider, "Translation provider: server, ollama or genai")

	f.IntVar(&a.batchSize, "batch-size", 0, "Texts per translation request (required)")
	f.IntVar(&a.maxLen, "max-len", d.Decoding.MaxLen, "Maximum output length")
	f.IntVar(&a.topK, "sampling-topk", d.Decoding.TopK, "Sample from the k most likely tokens (-1: all)")
	f.Float64Var(&a.topP, "sampling-topp", d.Decoding.TopP, "Nucleus sampling probability mass (-1: off)")
	f.IntVar(&a.beamSize, "beam-size", d.Decoding.BeamSize, "Beam size")
	f.BoolVar(&a.sampling, "sampling", d.Decoding.Sampling, "Sample instead of beam search")
	f.Float64Var(&a.temperature, "temperature", d.Decoding.Temperature, "Sampling temperature")

	f.IntSliceVar(&a.gpus, "gpus", nil, "GPU indices to spread the work over")
	f.BoolVar(&a.noCUDA, "no-cuda", false, "Run on the CPU even if GPUs are listed")

	f.StringVar(&a.clean, "clean", d.Output.Clean, "IMDB markup cleanup: auto, imdb or none")
	f.StringVar(&a.pairsDB, "pairs-db", "", "Also export pairs to this SQLite database")
	f.BoolVar(&a.usageFile, "usage-file", false, "Write <output>.usage.json with token counts")
	f.BoolVar(&a.noProgress, "no-progress", false, "Disable the progress bar")
}

// applyAugmentFlags copies explicitly set flags over the config.
func applyAugmentFlags(cmd *cobra.Command, a augmentFlags, c *config.Config) {
	changed := cmd.Flags().Changed

	if changed("src2tgt-model") {
		c.Translation.Src2TgtModel = a.src2tgtModel
	}
	if changed("tgt2src-model") {
		c.Translation.Tgt2SrcModel = a.tgt2srcModel
	}
	if changed("tokenizer") {
		c.Translation.Tokenizer = a.tokenizer
	}
	if changed("bpe") {
		c.Translation.BPE = a.bpe
	}
	if changed("provider") {
		c.Translation.Provider = a.provider
	}

	if changed("batch-size") {
		c.Decoding.BatchSize = a.batchSize
	}
	if changed("max-len") {
		c.Decoding.MaxLen = a.maxLen
	}
	if changed("sampling-topk") {
		c.Decoding.TopK = a.topK
	}
	if changed("sampling-topp") {
		c.Decoding.TopP = a.topP
	}
	if changed("beam-size") {
		c.Decoding.BeamSize = a.beamSize
	}
	if changed("sampling") {
		c.Decoding.Sampling = a.sampling
	}
	if changed("temperature") {
		c.Decoding.Temperature = a.temperature
	}

	if changed("gpus") {
		c.Devices.GPUs = a.gpus
	}
	if changed("no-cuda") {
		c.Devices.NoCUDA = a.noCUDA
	}

	if changed("clean") {
		c.Output.Clean = a.clean
	}
	if changed("pairs-db") {
		c.Output.PairsDB = a.pairsDB
	}
	if changed("usage-file") {
		c.Output.UsageFile = a.usageFile
	}
	if changed("no-progress") {
		c.Output.Progress = !a.noProgress
	}
}

func runAugment(cmd *cobra.Command, args []string) error {
	applyAugmentFlags(cmd, augmentArgs, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	available, err := device.Available(ctx, cfg.Devices.Available, len(cfg.Translation.Endpoints))
	if err != nil {
		return err
	}
	devices, err := device.Resolve(cfg.Devices.GPUs, cfg.Devices.NoCUDA, available)
	if err != nil {
		return err
	}

	var s3 storage.Store
	if storage.IsS3(augmentArgs.dataDir) || storage.IsS3(augmentArgs.outputDir) {
		s3, err = storage.NewS3(storage.S3Config{
			Region:    cfg.Storage.S3Region,
			Endpoint:  cfg.Storage.S3Endpoint,
			PathStyle: cfg.Storage.S3PathStyle,
		})
		if err != nil {
			return err
		}
	}

	engineCfg := engineConfig(cfg)
	models := store.Models{Forward: cfg.Translation.Src2TgtModel, Backward: cfg.Translation.Tgt2SrcModel}

	logger.Info("Starting back-translation",
		zap.String("input", augmentArgs.dataDir),
		zap.String("provider", engineCfg.Provider),
		zap.String("forward_model", models.Forward),
		zap.String("backward_model", models.Backward),
		zap.Ints("devices", devices))

	res, err := augment.Run(ctx, augment.Options{
		Input:     augmentArgs.dataDir,
		OutputDir: augmentArgs.outputDir,
		Models:    models,
		Decode:    decodeOptions(cfg),
		Devices:   devices,
		Factory: augment.NewFactory(engineCfg, models, augment.Languages{
			Source: cfg.Translation.SourceLang,
			Pivot:  cfg.Translation.PivotLang,
		}),
		Storage:   storage.NewRouter(s3),
		Clean:     textclean.Mode(cfg.Output.Clean),
		PairsDB:   cfg.Output.PairsDB,
		UsageFile: cfg.Output.UsageFile,
		Progress:  cfg.Output.Progress,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Back-translated %d rows in %s\n", res.Rows, res.Duration.Round(time.Millisecond))
	fmt.Fprintf(cmd.OutOrStdout(), "Output: %s\n", res.Output)
	fmt.Fprintf(cmd.OutOrStdout(), "Run ID: %s\n", res.RunID)
	return nil
}

func engineConfig(c *config.Config) translate.Config {
	ec := translate.DefaultConfig()
	ec.Provider = c.Translation.Provider
	ec.BaseURL = c.Translation.BaseURL
	ec.Endpoints = c.Translation.Endpoints
	ec.APIKey = c.Translation.APIKey
	ec.Timeout = c.GetTranslationTimeout()
	ec.MaxRetries = c.Translation.MaxRetries
	return ec
}

func decodeOptions(c *config.Config) translate.DecodeOptions {
	return translate.DecodeOptions{
		BatchSize:   c.Decoding.BatchSize,
		MaxLen:      c.Decoding.MaxLen,
		BeamSize:    c.Decoding.BeamSize,
		Sampling:    c.Decoding.Sampling,
		TopK:        c.Decoding.TopK,
		TopP:        c.Decoding.TopP,
		Temperature: c.Decoding.Temperature,
		Tokenizer:   c.Translation.Tokenizer,
		BPE:         c.Translation.BPE,
	}
}
