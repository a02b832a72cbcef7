// Package textclean strips markup artifacts that some classification corpora
// carry in their text column.
package textclean

import (
	"strings"

	"backtranslate/internal/logging"

	"go.uber.org/zap"
)

const anchorOpen = "<a href="

var imdbReplacer = strings.NewReplacer(
	"<br />", " ",
	"&quot;", `"`,
	"<p>", " ",
)

// CleanIMDB removes the HTML left in IMDB review text: line breaks, quote
// entities, paragraph tags and anchors. Escaped newlines ("\n" as two
// characters) become spaces.
func CleanIMDB(s string) string {
	s = imdbReplacer.Replace(s)

	if strings.Contains(s, anchorOpen) {
		for {
			start := strings.Index(s, anchorOpen)
			if start == -1 {
				break
			}
			end := strings.Index(s[start:], ">")
			if end != -1 {
				s = s[:start] + s[start+end+1:]
				continue
			}
			// Unterminated anchor: drop the marker, keep the text after it.
			logging.Get(logging.CategoryClean).Info("incomplete href", zap.String("before", s))
			s = s[:start] + s[start+len(anchorOpen):]
			logging.Get(logging.CategoryClean).Info("incomplete href", zap.String("after", s))
		}
		s = strings.ReplaceAll(s, "</a>", "")
	}

	return strings.ReplaceAll(s, `\n`, " ")
}

// IsIMDBPath reports whether a dataset path names an IMDB corpus.
func IsIMDBPath(path string) bool {
	return strings.Contains(path, "imdb") || strings.Contains(path, "IMDB")
}

// Mode selects when cleanup runs.
type Mode string

const (
	ModeAuto Mode = "auto" // clean when the input path names IMDB
	ModeIMDB Mode = "imdb"
	ModeNone Mode = "none"
)

// ShouldClean resolves a mode against the input path.
func ShouldClean(mode Mode, path string) bool {
	switch mode {
	case ModeIMDB:
		return true
	case ModeNone:
		return false
	default:
		return IsIMDBPath(path)
	}
}

// CleanAll applies CleanIMDB to every text in place and returns the slice.
func CleanAll(texts []string) []string {
	for i, t := range texts {
		texts[i] = CleanIMDB(t)
	}
	return texts
}
