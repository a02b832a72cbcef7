package translate

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

var languageNames = map[string]string{
	"en": "English",
	"de": "German",
	"fr": "French",
	"es": "Spanish",
	"it": "Italian",
	"ru": "Russian",
	"zh": "Chinese",
	"ja": "Japanese",
	"ko": "Korean",
	"pt": "Portuguese",
	"nl": "Dutch",
}

func languageName(code string) string {
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	return code
}

// translationInstruction is the system prompt LLM providers receive.
func translationInstruction(from, to string) string {
	return fmt.Sprintf("You are a translation engine. Translate the user's text from %s to %s. "+
		"Preserve meaning and tone. Output only the translation, with no notes, quotes or explanations.",
		languageName(from), languageName(to))
}

// translateEach runs fn for every text with at most limit requests in flight
// and returns the results in input order. The first error cancels the rest.
func translateEach(ctx context.Context, texts []string, limit int, fn func(ctx context.Context, text string) (string, error)) ([]string, error) {
	out := make([]string, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, text := range texts {
		g.Go(func() error {
			translated, err := fn(gctx, text)
			if err != nil {
				return fmt.Errorf("text %d: %w", i, err)
			}
			out[i] = translated
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
