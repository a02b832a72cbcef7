// Package dataset reads and writes the two-column (text, label) TSV files used
// for text classification corpora.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"backtranslate/internal/logging"

	"go.uber.org/zap"
)

// OutputPrefix is prepended to the input basename to name the output file.
const OutputPrefix = "bt_"

// ErrEmpty is returned when the input has no header row.
var ErrEmpty = errors.New("dataset has no header row")

// Row is one labeled sample.
type Row struct {
	Text  string
	Label string
}

// Dataset is a header plus labeled rows.
type Dataset struct {
	Header []string
	Rows   []Row
}

// Len returns the number of rows, header excluded.
func (d *Dataset) Len() int {
	return len(d.Rows)
}

// Texts returns the text column.
func (d *Dataset) Texts() []string {
	texts := make([]string, len(d.Rows))
	for i, r := range d.Rows {
		texts[i] = r.Text
	}
	return texts
}

// Labels returns the label column.
func (d *Dataset) Labels() []string {
	labels := make([]string, len(d.Rows))
	for i, r := range d.Rows {
		labels[i] = r.Label
	}
	return labels
}

func newWriter(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	return cw
}

// Load parses a TSV stream. The first record is the header and every
// following record must have exactly two fields.
func Load(r io.Reader) (*Dataset, error) {
	timer := logging.StartTimer(logging.CategoryDataset, "Load")
	defer timer.Stop()

	tr := newReader(r)
	header, _, err := tr.Read()
	if err == io.EOF {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	ds := &Dataset{Header: header}
	for {
		record, line, err := tr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: failed to read record: %w", line, err)
		}
		if len(record) != 2 {
			return nil, fmt.Errorf("line %d: expected 2 fields (text, label), got %d", line, len(record))
		}
		ds.Rows = append(ds.Rows, Row{Text: record[0], Label: record[1]})
	}

	logging.Get(logging.CategoryDataset).Debug("Loaded dataset",
		zap.Int("rows", len(ds.Rows)),
		zap.Strings("header", header))
	return ds, nil
}

// Write emits the header and one (text, label) row per position.
func Write(w io.Writer, header []string, texts, labels []string) error {
	if len(texts) != len(labels) {
		return fmt.Errorf("row count mismatch: %d texts, %d labels", len(texts), len(labels))
	}

	cw := newWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i := range texts {
		if err := cw.Write([]string{texts[i], labels[i]}); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}
	return nil
}

// OutputName returns the file name the augmented copy of input is saved under.
// It accepts local paths and s3:// URIs.
func OutputName(input string) string {
	input = strings.TrimRight(strings.ReplaceAll(input, "\\", "/"), "/")
	return OutputPrefix + path.Base(input)
}
