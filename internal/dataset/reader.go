package dataset

import (
	"bufio"
	"io"
	"strings"
)

type readState int

const (
	stateStartRecord readState = iota
	stateStartField
	stateInField
	stateInQuoted
	stateQuoteInQuoted
)

// tsvReader splits tab-separated records. A quote opens a quoted field only
// as the first character of the field; a closing quote followed by anything
// other than a tab, newline or second quote ends the quoting and the rest of
// the field is read literally. Quotes inside an unquoted field are literal.
type tsvReader struct {
	r    *bufio.Reader
	line int // lines consumed so far
}

func newReader(r io.Reader) *tsvReader {
	return &tsvReader{r: bufio.NewReader(r)}
}

// Read returns the next record and the line it starts on. Blank lines are
// skipped. It returns io.EOF once the input is exhausted.
func (t *tsvReader) Read() ([]string, int, error) {
	var (
		record []string
		field  strings.Builder
		state  = stateStartRecord
		line   = t.line + 1
	)
	endField := func() {
		record = append(record, field.String())
		field.Reset()
	}

	for {
		c, _, err := t.r.ReadRune()
		if err == io.EOF {
			if state == stateStartRecord {
				return nil, line, io.EOF
			}
			// An unterminated quoted field runs to the end of input.
			endField()
			return record, line, nil
		}
		if err != nil {
			return nil, line, err
		}

		switch state {
		case stateStartRecord, stateStartField:
			switch {
			case state == stateStartRecord && isNewline(c):
				t.newline(c)
				line = t.line + 1
			case c == '"':
				state = stateInQuoted
			case c == '\t':
				endField()
				state = stateStartField
			case isNewline(c):
				endField()
				t.newline(c)
				return record, line, nil
			default:
				field.WriteRune(c)
				state = stateInField
			}

		case stateInField:
			switch {
			case c == '\t':
				endField()
				state = stateStartField
			case isNewline(c):
				endField()
				t.newline(c)
				return record, line, nil
			default:
				field.WriteRune(c)
			}

		case stateInQuoted:
			if c == '"' {
				state = stateQuoteInQuoted
				continue
			}
			if c == '\n' {
				t.line++
			}
			field.WriteRune(c)

		case stateQuoteInQuoted:
			switch {
			case c == '"':
				field.WriteRune('"')
				state = stateInQuoted
			case c == '\t':
				endField()
				state = stateStartField
			case isNewline(c):
				endField()
				t.newline(c)
				return record, line, nil
			default:
				field.WriteRune(c)
				state = stateInField
			}
		}
	}
}

func isNewline(c rune) bool {
	return c == '\n' || c == '\r'
}

// newline consumes a record terminator, treating \r\n as one.
func (t *tsvReader) newline(c rune) {
	t.line++
	if c != '\r' {
		return
	}
	next, _, err := t.r.ReadRune()
	if err == nil && next != '\n' {
		_ = t.r.UnreadRune()
	}
}
