package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Config is the widget configuration. The raw JSON is kept verbatim so study fields the
// host does not model still reach the embedded frame unchanged.
type Config struct {
	Raw    json.RawMessage
	Design Node
}

// ParseConfig decodes a configuration object and its root design from the "sequence" field.
func ParseConfig(raw []byte) (Config, error) {
	raw = bytes.TrimSpace(raw)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Config{}, fmt.Errorf("%w: config is not a JSON object: %v", ErrStructural, err)
	}

	seq, ok := fields["sequence"]
	if !ok {
		return Config{}, fmt.Errorf("%w: config has no sequence", ErrStructural)
	}
	design, err := DecodeNode(seq, "$.sequence")
	if err != nil {
		return Config{}, err
	}
	if !design.IsComposite() {
		return Config{}, fmt.Errorf("%w: $.sequence: root must be a composite", ErrStructural)
	}

	return Config{Raw: json.RawMessage(append([]byte(nil), raw...)), Design: design}, nil
}

// Stringified returns the CONFIG payload: a JSON string whose contents are the configuration JSON.
func (c Config) Stringified() (json.RawMessage, error) {
	if len(c.Raw) == 0 {
		return nil, fmt.Errorf("%w: empty configuration", ErrSerialization)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, c.Raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	payload, err := json.Marshal(compact.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return payload, nil
}
