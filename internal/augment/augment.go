// Package augment runs one back-translation augmentation job end to end:
// load the labeled TSV, paraphrase every text, write the augmented copy.
package augment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"backtranslate/internal/dataset"
	"backtranslate/internal/dispatch"
	"backtranslate/internal/logging"
	"backtranslate/internal/storage"
	"backtranslate/internal/store"
	"backtranslate/internal/textclean"
	"backtranslate/internal/translate"
	"backtranslate/internal/usage"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// Options configures one run.
type Options struct {
	Input     string // local path or s3:// URI of the TSV
	OutputDir string // local directory or s3:// prefix

	Models  store.Models
	Decode  translate.DecodeOptions
	Devices []int
	Factory dispatch.Factory
	Storage storage.Store

	Clean     textclean.Mode
	PairsDB   string // empty disables the SQLite export
	UsageFile bool

	Progress       bool
	ProgressWriter io.Writer // default os.Stderr

	RunID string // generated when empty
}

// Result summarizes a finished run.
type Result struct {
	Output   string
	Rows     int
	RunID    string
	Duration time.Duration
	Usage    usage.AggregatedStats
}

func (o *Options) validate() error {
	if o.Input == "" {
		return errors.New("input path is required")
	}
	if o.OutputDir == "" {
		return errors.New("output directory is required")
	}
	if o.Factory == nil {
		return errors.New("back-translator factory is required")
	}
	if o.Storage == nil {
		return errors.New("storage is required")
	}
	return o.Decode.Validate()
}

// Run executes the augmentation job.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	timer := logging.StartTimer(logging.CategoryBoot, "augment")
	log := logging.Get(logging.CategoryBoot)

	runID := opts.RunID
	if runID == "" {
		runID = store.NewRunID()
	}
	tracker := usage.NewTracker(runID)
	ctx = usage.NewContext(ctx, tracker)

	ds, err := load(ctx, opts.Storage, opts.Input)
	if err != nil {
		return nil, err
	}

	texts := ds.Texts()
	labels := ds.Labels()
	if textclean.ShouldClean(opts.Clean, opts.Input) {
		logging.Get(logging.CategoryClean).Info("Cleaning IMDB markup", zap.Int("rows", len(texts)))
		textclean.CleanAll(texts)
	}

	log.Info(fmt.Sprintf("Do back-translation for %d sentences", len(texts)),
		zap.String("run_id", runID),
		zap.Ints("devices", opts.Devices))

	factory := opts.Factory
	var bar *progressbar.ProgressBar
	if opts.Progress && len(texts) > 0 {
		bar = newBar(opts.ProgressWriter, len(texts))
		factory = withProgress(factory, bar)
	}

	outputs, err := dispatch.Run(ctx, opts.Devices, factory, texts, opts.Decode)
	if bar != nil {
		_ = bar.Close()
	}
	if err != nil {
		return nil, err
	}
	if len(labels) != len(outputs) {
		return nil, fmt.Errorf("%w: %d labels, %d outputs", translate.ErrCountMismatch, len(labels), len(outputs))
	}

	outPath := storage.Join(opts.OutputDir, dataset.OutputName(opts.Input))
	if err := write(ctx, opts.Storage, outPath, ds.Header, outputs, labels); err != nil {
		return nil, err
	}

	if opts.PairsDB != "" {
		if err := exportPairs(ctx, opts.PairsDB, runID, opts.Models, texts, outputs, labels); err != nil {
			return nil, err
		}
	}

	stats := tracker.Stats()
	if opts.UsageFile {
		if err := writeUsage(ctx, opts.Storage, outPath+".usage.json", tracker); err != nil {
			return nil, err
		}
	}

	log.Info("Translated documents are saved in " + outPath)
	return &Result{
		Output:   outPath,
		Rows:     len(outputs),
		RunID:    runID,
		Duration: timer.StopWithInfo(),
		Usage:    stats,
	}, nil
}

func load(ctx context.Context, st storage.Store, uri string) (*dataset.Dataset, error) {
	r, err := st.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	ds, err := dataset.Load(r)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", uri, err)
	}
	return ds, nil
}

func write(ctx context.Context, st storage.Store, uri string, header, texts, labels []string) error {
	w, err := st.Create(ctx, uri)
	if err != nil {
		return err
	}
	if err := dataset.Write(w, header, texts, labels); err != nil {
		w.Close()
		return fmt.Errorf("failed to write %s: %w", uri, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish %s: %w", uri, err)
	}
	return nil
}

func writeUsage(ctx context.Context, st storage.Store, uri string, tracker *usage.Tracker) error {
	w, err := st.Create(ctx, uri)
	if err != nil {
		return err
	}
	if _, err := tracker.WriteTo(w); err != nil {
		w.Close()
		return fmt.Errorf("failed to write usage report: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish usage report: %w", err)
	}
	logging.Get(logging.CategoryUsage).Debug("Usage report written", zap.String("path", uri))
	return nil
}

func exportPairs(ctx context.Context, path, runID string, models store.Models, sources, paraphrases, labels []string) error {
	ps, err := store.Open(path)
	if err != nil {
		return err
	}
	defer ps.Close()

	pairs := make([]store.Pair, len(sources))
	for i := range sources {
		pairs[i] = store.Pair{Label: labels[i], Source: sources[i], Paraphrase: paraphrases[i]}
	}
	if err := ps.SavePairs(ctx, runID, models, pairs); err != nil {
		return err
	}
	logging.Get(logging.CategoryStore).Debug("Pairs exported", zap.String("db", ps.Path()))
	return nil
}

func newBar(w io.Writer, total int) *progressbar.ProgressBar {
	if w == nil {
		w = os.Stderr
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("back-translating"),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// withProgress makes every worker report finished batches to bar.
func withProgress(factory dispatch.Factory, bar *progressbar.ProgressBar) dispatch.Factory {
	return func(dev, slot int) (*translate.BackTranslator, error) {
		bt, err := factory(dev, slot)
		if err != nil {
			return nil, err
		}
		bt.OnProgress = func(n int) { _ = bar.Add(n) }
		return bt, nil
	}
}

// Languages names the source and pivot language of a run.
type Languages struct {
	Source string
	Pivot  string
}

// NewFactory returns a factory that builds forward and backward engines
// for each worker from the engine configuration.
func NewFactory(cfg translate.Config, models store.Models, langs Languages) dispatch.Factory {
	return func(dev, slot int) (*translate.BackTranslator, error) {
		fwd, err := translate.NewEngine(cfg, translate.Route{
			Model: models.Forward, From: langs.Source, To: langs.Pivot, Device: dev, Slot: slot,
		})
		if err != nil {
			return nil, fmt.Errorf("forward engine: %w", err)
		}
		bwd, err := translate.NewEngine(cfg, translate.Route{
			Model: models.Backward, From: langs.Pivot, To: langs.Source, Device: dev, Slot: slot,
		})
		if err != nil {
			return nil, fmt.Errorf("backward engine: %w", err)
		}
		return translate.NewBackTranslator(fwd, bwd), nil
	}
}
