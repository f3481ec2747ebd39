// Package csvio reads payment records from CSV input and renders final
// account balances back out as CSV.
//
// Input format, one record per row with a header:
//
//	type, client, tx, amount
//	deposit, 1, 1, 1.0
//	withdrawal, 1, 2, 0.5
//	dispute, 1, 1,
//
// The amount column may be empty (contest events carry none). Whitespace
// around fields is tolerated.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/payflow/internal/event"
)

// ParseError reports a row that could not be parsed into a Record.
// These are input-shape errors, distinct from event validation errors:
// a row that parses but has a bogus type string still becomes a Record.
type ParseError struct {
	Line int
	Err  error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// Unwrap returns the underlying parse failure.
func (e *ParseError) Unwrap() error { return e.Err }

// Reader streams Records from CSV input.
type Reader struct {
	cr   *csv.Reader
	line int
}

// NewReader wraps r in a record reader. The first row is expected to be the
// header and is skipped on the first Read.
func NewReader(r io.Reader) *Reader {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1 // rows with a trailing empty amount may have 3 or 4 fields
	cr.ReuseRecord = true
	return &Reader{cr: cr}
}

// Line returns the input line of the most recently read row (the header
// counts as line 1).
func (r *Reader) Line() int { return r.line }

// Read returns the next record. io.EOF signals clean end of input; a
// *ParseError reports a malformed row, after which reading may continue
// with the next row.
func (r *Reader) Read() (event.Record, error) {
	for {
		row, err := r.cr.Read()
		if err == io.EOF {
			return event.Record{}, io.EOF
		}
		if err != nil {
			r.line++
			return event.Record{}, &ParseError{Line: r.line, Err: err}
		}
		r.line++

		// Skip the header row.
		if r.line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "type") {
			continue
		}

		rec, err := parseRow(row)
		if err != nil {
			return event.Record{}, &ParseError{Line: r.line, Err: err}
		}
		return rec, nil
	}
}

func parseRow(row []string) (event.Record, error) {
	if len(row) < 3 {
		return event.Record{}, fmt.Errorf("expected at least 3 fields, got %d", len(row))
	}

	client, err := strconv.ParseUint(strings.TrimSpace(row[1]), 10, 16)
	if err != nil {
		return event.Record{}, fmt.Errorf("invalid client id %q: %w", row[1], err)
	}
	tx, err := strconv.ParseUint(strings.TrimSpace(row[2]), 10, 32)
	if err != nil {
		return event.Record{}, fmt.Errorf("invalid transaction id %q: %w", row[2], err)
	}

	rec := event.Record{
		Type:   strings.TrimSpace(row[0]),
		Client: uint16(client),
		Tx:     uint32(tx),
	}

	if len(row) > 3 {
		if raw := strings.TrimSpace(row[3]); raw != "" {
			amount, err := decimal.NewFromString(raw)
			if err != nil {
				return event.Record{}, fmt.Errorf("invalid amount %q: %w", row[3], err)
			}
			rec.Amount = &amount
		}
	}
	return rec, nil
}

// IsParseError reports whether err is a row-level parse error, which the
// caller may log and skip.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
