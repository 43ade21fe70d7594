package frame

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// ParseError reports a malformed or empty matrix file.
type ParseError struct {
	Source string
	// Line is 1-based and counts the header. 0 when the error is not tied to a line.
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s:%d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ErrNoReadings is wrapped by ParseError when nothing follows the header.
var ErrNoReadings = errors.New("no readings after header")

// LoadFile reads a matrix file: one header line, then one comma separated row
// of readings per line.
func LoadFile(path string) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f, path)
}

// Load parses a matrix from r. source names the input in errors.
func Load(r io.Reader, source string) (*Frame, error) {
	br := bufio.NewReader(r)
	// The header is discarded regardless of content.
	if _, err := br.ReadString('\n'); err != nil {
		if err == io.EOF {
			return nil, &ParseError{Source: source, Err: ErrNoReadings}
		}
		return nil, &ParseError{Source: source, Err: err}
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var data []float64
	cols := 0
	rows := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, &ParseError{Source: source, Line: perr.Line + 1, Err: perr.Err}
			}
			return nil, &ParseError{Source: source, Err: err}
		}
		if blank(record) {
			continue
		}
		line, _ := cr.FieldPos(0)
		line++ // header
		if rows == 0 {
			cols = len(record)
			data = make([]float64, 0, cols*64)
		} else if len(record) != cols {
			return nil, &ParseError{Source: source, Line: line, Err: fmt.Errorf("got %d columns, expected %d", len(record), cols)}
		}
		for i, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, &ParseError{Source: source, Line: line, Err: fmt.Errorf("column %d: %w", i+1, err)}
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &ParseError{Source: source, Line: line, Err: fmt.Errorf("column %d: non-finite reading %q", i+1, field)}
			}
			data = append(data, v)
		}
		rows++
	}
	if rows == 0 {
		return nil, &ParseError{Source: source, Err: ErrNoReadings}
	}
	return New(source, rows, cols, data)
}

// blank reports whether a record holds only whitespace.
func blank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
