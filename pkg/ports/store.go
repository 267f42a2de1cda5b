package ports

import (
	"context"
	"encoding/json"
)

// Field names one slot of the model state shared with the host.
type Field string

const (
	// FieldConfig holds the widget configuration (including the root design under "sequence").
	FieldConfig Field = "config"
	// FieldSequence holds the latest list of participant sequences.
	FieldSequence Field = "sequence"
	// FieldExportJSON holds the latest JSON export.
	FieldExportJSON Field = "participants_data_json"
	// FieldExportTidy holds the latest tidy (header + rows) export.
	FieldExportTidy Field = "participants_data_tidy"
)

// Fields lists every model state field.
var Fields = []Field{FieldConfig, FieldSequence, FieldExportJSON, FieldExportTidy}

// ChangeFunc is called with the new value of a field after it has been written.
type ChangeFunc func(value json.RawMessage)

// ModelStore is the process-wide model state.
// Every write replaces the previous value of the field (last-write-wins). Change
// notifications of one field reach a subscriber in write order, so the last one it
// sees carries the latest value; intermediate values may be skipped.
type ModelStore interface {
	// Get returns the current value of a field.
	// Returns domain.ErrFieldNotFound if the field was never written.
	Get(ctx context.Context, field Field) (json.RawMessage, error)

	// Set replaces the value of a field and notifies subscribers.
	Set(ctx context.Context, field Field, value json.RawMessage) error

	// Subscribe registers fn for changes of field. The returned function deregisters it.
	Subscribe(ctx context.Context, field Field, fn ChangeFunc) (unsubscribe func(), err error)
}
