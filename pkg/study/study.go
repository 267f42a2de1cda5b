// Package study loads reVISit study configurations and stages their asset files
// into an external application tree.
package study

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// AssetPrefix is the path, relative to the application's public root, that staged assets are served from.
const AssetPrefix = "__revisit-widget/assets/"

// Load reads a study file and returns it as compact JSON.
// Files ending in .yaml or .yml are converted; anything else must already be JSON.
func Load(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read study %s: %w", path, err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes study content according to ext (".json", ".yaml" or ".yml").
// JSON input is only compacted, so key order and number literals reach the frame as
// written. YAML is converted node by node and keeps its key order.
func Parse(data []byte, ext string) (json.RawMessage, error) {
	var out bytes.Buffer
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var root yaml.Node
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, fmt.Errorf("invalid study yaml: %w", err)
		}
		if len(root.Content) == 0 {
			return nil, fmt.Errorf("study is empty")
		}
		if err := writeJSON(&out, root.Content[0]); err != nil {
			return nil, fmt.Errorf("invalid study yaml: %w", err)
		}
	default:
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, fmt.Errorf("study is empty")
		}
		if err := json.Compact(&out, data); err != nil {
			return nil, fmt.Errorf("invalid study json: %w", err)
		}
	}

	if !bytes.HasPrefix(out.Bytes(), []byte("{")) {
		return nil, fmt.Errorf("study must be an object")
	}
	return out.Bytes(), nil
}

// writeJSON encodes a YAML node as JSON, mapping keys in document order.
func writeJSON(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case yaml.AliasNode:
		return writeJSON(buf, n.Alias)
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, value := n.Content[i], n.Content[i+1]
			if key.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: mapping keys must be scalars", key.Line)
			}
			if i > 0 {
				buf.WriteByte(',')
			}
			k, _ := json.Marshal(key.Value)
			buf.Write(k)
			buf.WriteByte(':')
			if err := writeJSON(buf, value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, item := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case yaml.ScalarNode:
		return writeScalar(buf, n)
	default:
		return fmt.Errorf("line %d: unsupported yaml node", n.Line)
	}
	return nil
}

func writeScalar(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.ShortTag() {
	case "!!null":
		buf.WriteString("null")
		return nil
	case "!!bool", "!!int", "!!float":
		// Plain decimal literals are valid JSON and are kept verbatim.
		if n.ShortTag() != "!!bool" && jsonNumber.MatchString(n.Value) {
			buf.WriteString(n.Value)
			return nil
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return err
		}
		out, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		buf.Write(out)
		return nil
	default:
		out, err := json.Marshal(n.Value)
		if err != nil {
			return err
		}
		buf.Write(out)
		return nil
	}
}

var jsonNumber = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)
