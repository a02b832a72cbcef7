// Package dispatch spreads a back-translation job over the run's devices.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"backtranslate/internal/device"
	"backtranslate/internal/logging"
	"backtranslate/internal/translate"
	"backtranslate/internal/usage"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Factory builds the back-translator for one worker. slot is the worker's
// position in the device list.
type Factory func(dev, slot int) (*translate.BackTranslator, error)

// Shard splits texts into n contiguous shards of len(texts)/n items; the last
// shard also takes the remainder. Shards may be empty when n > len(texts).
func Shard(texts []string, n int) [][]string {
	if n <= 0 {
		return nil
	}
	size := len(texts) / n
	shards := make([][]string, n)
	for i := 0; i < n; i++ {
		start := i * size
		end := start + size
		if i == n-1 {
			end = len(texts)
		}
		shards[i] = texts[start:end]
	}
	return shards
}

// Run back-translates texts on devices and returns the paraphrases in input
// order. With more than one device, shard i runs on devices[i] and the first
// failing worker cancels the others.
func Run(ctx context.Context, devices []int, factory Factory, texts []string, opts translate.DecodeOptions) ([]string, error) {
	if len(devices) == 0 {
		devices = []int{device.CPU}
	}
	log := logging.Get(logging.CategoryDispatch)

	if len(devices) == 1 {
		if device.IsCPU(devices) {
			log.Info("No GPU requested, translating on the CPU")
		}
		log.Info("Translating on a single worker",
			zap.String("device", translate.DeviceName(devices[0])),
			zap.Int("texts", len(texts)))
		return runShard(ctx, factory, devices[0], 0, texts, opts)
	}

	shards := Shard(texts, len(devices))
	results := make([][]string, len(shards))

	g, gctx := errgroup.WithContext(ctx)
	for i, dev := range devices {
		shard := shards[i]
		log.Info("Starting worker",
			zap.Int("slot", i),
			zap.String("device", translate.DeviceName(dev)),
			zap.Int("texts", len(shard)))

		g.Go(func() error {
			out, err := runShard(gctx, factory, dev, i, shard, opts)
			if err != nil {
				return fmt.Errorf("worker %d (%s): %w", i, translate.DeviceName(dev), err)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("Back-translation failed", zap.Error(err))
		return nil, err
	}

	out := make([]string, 0, len(texts))
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func runShard(ctx context.Context, factory Factory, dev, slot int, texts []string, opts translate.DecodeOptions) ([]string, error) {
	if len(texts) == 0 {
		return []string{}, nil
	}
	bt, err := factory(dev, slot)
	if err != nil {
		return nil, fmt.Errorf("failed to create back-translator: %w", err)
	}

	start := time.Now()
	ctx = usage.WithDevice(ctx, translate.DeviceName(dev))
	out, err := bt.BackTranslate(ctx, texts, opts)
	if err != nil {
		return nil, err
	}
	if len(out) != len(texts) {
		return nil, fmt.Errorf("%w: shard of %d returned %d", translate.ErrCountMismatch, len(texts), len(out))
	}

	logging.Get(logging.CategoryDispatch).Info("Worker finished",
		zap.Int("slot", slot),
		zap.String("device", translate.DeviceName(dev)),
		zap.Int("texts", len(texts)),
		zap.Duration("elapsed", time.Since(start)))
	return out, nil
}
