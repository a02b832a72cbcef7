package translate

import (
	"context"
	"fmt"
	"time"

	"backtranslate/internal/logging"
	"backtranslate/internal/usage"

	"go.uber.org/zap"
)

// Directions recorded in usage stats.
const (
	DirectionForward  = "forward"
	DirectionBackward = "backward"
)

// slowBatch is how long one forward+backward batch may take before it is
// logged as slow.
const slowBatch = 2 * time.Minute

// BackTranslator paraphrases documents by translating them into the pivot
// language and back.
type BackTranslator struct {
	Forward  Engine
	Backward Engine

	// OnProgress, if set, is called with the size of each finished batch.
	OnProgress func(done int)
}

// NewBackTranslator pairs a forward and a backward engine.
func NewBackTranslator(forward, backward Engine) *BackTranslator {
	return &BackTranslator{Forward: forward, Backward: backward}
}

// BackTranslate returns one paraphrase per document, in document order.
func (b *BackTranslator) BackTranslate(ctx context.Context, docs []string, opts DecodeOptions) ([]string, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return []string{}, nil
	}

	log := logging.Get(logging.CategoryTranslate)
	fwdCtx := usage.WithDirection(ctx, DirectionForward)
	bwdCtx := usage.WithDirection(ctx, DirectionBackward)

	out := make([]string, 0, len(docs))
	for start := 0; start < len(docs); start += opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+opts.BatchSize, len(docs))
		batch := docs[start:end]
		timer := logging.StartTimer(logging.CategoryTranslate, "batch")

		pivot, err := b.Forward.Translate(fwdCtx, batch, opts)
		if err != nil {
			return nil, fmt.Errorf("forward translation of rows %d-%d via %s: %w", start, end-1, b.Forward.Name(), err)
		}
		if len(pivot) != len(batch) {
			return nil, fmt.Errorf("forward translation via %s: %w: sent %d, got %d", b.Forward.Name(), ErrCountMismatch, len(batch), len(pivot))
		}

		back, err := b.Backward.Translate(bwdCtx, pivot, opts)
		if err != nil {
			return nil, fmt.Errorf("backward translation of rows %d-%d via %s: %w", start, end-1, b.Backward.Name(), err)
		}
		if len(back) != len(batch) {
			return nil, fmt.Errorf("backward translation via %s: %w: sent %d, got %d", b.Backward.Name(), ErrCountMismatch, len(batch), len(back))
		}

		timer.StopWithThreshold(slowBatch)
		out = append(out, back...)
		log.Debug("Batch back-translated",
			zap.Int("start", start),
			zap.Int("size", len(batch)),
			zap.Int("done", len(out)),
			zap.Int("total", len(docs)))
		if b.OnProgress != nil {
			b.OnProgress(len(batch))
		}
	}

	return out, nil
}
