package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/aretw0/revisit/pkg/ports"
)

const mask = "***"

type piiMiddleware struct {
	next     ports.ModelStore
	patterns []*regexp.Regexp
	fields   map[ports.Field]bool
}

// NewPIIMiddleware creates a middleware that masks participant data before it is stored.
// In the tidy export every value of a column whose header matches a pattern is masked;
// in the JSON export every object key matching a pattern is masked, at any depth.
func NewPIIMiddleware(patternStrings []string, fields ...ports.Field) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pii pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	set := fieldSet(fields)
	return func(next ports.ModelStore) ports.ModelStore {
		return &piiMiddleware{next: next, patterns: patterns, fields: set}
	}, nil
}

func (m *piiMiddleware) Set(ctx context.Context, field ports.Field, value json.RawMessage) error {
	if !m.fields[field] || len(m.patterns) == 0 {
		return m.next.Set(ctx, field, value)
	}

	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		// Let the backend reject malformed JSON with its own error.
		return m.next.Set(ctx, field, value)
	}

	if field == ports.FieldExportTidy {
		m.maskColumns(doc)
	} else {
		m.maskKeys(doc)
	}

	masked, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return m.next.Set(ctx, field, masked)
}

func (m *piiMiddleware) Get(ctx context.Context, field ports.Field) (json.RawMessage, error) {
	return m.next.Get(ctx, field)
}

func (m *piiMiddleware) Subscribe(ctx context.Context, field ports.Field, fn ports.ChangeFunc) (func(), error) {
	return m.next.Subscribe(ctx, field, fn)
}

func (m *piiMiddleware) matches(key string) bool {
	for _, p := range m.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}

func (m *piiMiddleware) maskColumns(doc any) {
	table, ok := doc.(map[string]any)
	if !ok {
		return
	}
	header, _ := table["header"].([]any)
	var cols []int
	for i, h := range header {
		if name, ok := h.(string); ok && m.matches(name) {
			cols = append(cols, i)
		}
	}
	rows, _ := table["rows"].([]any)
	for _, r := range rows {
		row, ok := r.([]any)
		if !ok {
			continue
		}
		for _, c := range cols {
			if c < len(row) && row[c] != nil {
				row[c] = mask
			}
		}
	}
}

func (m *piiMiddleware) maskKeys(doc any) {
	switch v := doc.(type) {
	case map[string]any:
		for k, child := range v {
			if m.matches(k) {
				v[k] = mask
				continue
			}
			m.maskKeys(child)
		}
	case []any:
		for _, child := range v {
			m.maskKeys(child)
		}
	}
}
