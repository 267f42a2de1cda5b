// Package export turns the embedded frame's participant exports into tables.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

var (
	// ErrColumnNotFound is returned when a table has no column with the requested name.
	ErrColumnNotFound = errors.New("column not found")
	// ErrRaggedRow is returned when a row does not have one value per header column.
	ErrRaggedRow = errors.New("row length does not match header")
)

// Table is the tidy export format: one header row and value rows.
type Table struct {
	Header []string `json:"header"`
	Rows   [][]any  `json:"rows"`
}

// ParseTidy decodes a PYTHON_EXPORT_TIDY payload. Numbers are kept as json.Number.
func ParseTidy(raw []byte) (Table, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var t Table
	if err := dec.Decode(&t); err != nil {
		return Table{}, fmt.Errorf("invalid tidy export: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Table{}, fmt.Errorf("invalid tidy export: %w", err)
	}
	return t, nil
}

// Validate checks that every row has one value per header column.
func (t Table) Validate() error {
	for i, row := range t.Rows {
		if len(row) != len(t.Header) {
			return fmt.Errorf("%w: row %d has %d values, header has %d", ErrRaggedRow, i, len(row), len(t.Header))
		}
	}
	return nil
}

// Index returns the position of column name.
func (t Table) Index(name string) (int, error) {
	for i, h := range t.Header {
		if h == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
}

// Column returns every value of column name, in row order.
func (t Table) Column(name string) ([]any, error) {
	idx, err := t.Index(name)
	if err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	out := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Records returns the rows as maps keyed by header.
func (t Table) Records() ([]map[string]any, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(t.Rows))
	for i, row := range t.Rows {
		rec := make(map[string]any, len(t.Header))
		for j, h := range t.Header {
			rec[h] = row[j]
		}
		out[i] = rec
	}
	return out, nil
}

// WriteCSV writes the header and rows as CSV.
func (t Table) WriteCSV(w io.Writer) error {
	if err := t.Validate(); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	record := make([]string, len(t.Header))
	for _, row := range t.Rows {
		for i, v := range row {
			record[i] = Format(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Format renders one cell as text. Null becomes the empty string; composite values are JSON.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
