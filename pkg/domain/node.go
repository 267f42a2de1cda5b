package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// NodeKind discriminates the Node tagged union.
type NodeKind int

const (
	// KindInvalid is the zero value. It never comes out of decoding.
	KindInvalid NodeKind = iota
	// KindLeaf is a terminal stimulus identifier.
	KindLeaf
	// KindComposite groups ordered components and optional interruptions.
	KindComposite
)

func (k NodeKind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindComposite:
		return "composite"
	default:
		return "invalid"
	}
}

// Node is one element of a study design or of a participant sequence.
//
// For a leaf only ID is meaningful. For a composite, ID is the optional block id and
// Components/Interruptions hold the children.
type Node struct {
	Kind          NodeKind
	ID            string
	Components    []Node
	Interruptions []InterruptionSpec
}

// InterruptionSpec declares stimuli injected at a composite that are excluded from statistics.
type InterruptionSpec struct {
	Components []string `json:"components"`
}

// ParticipantSequence is the realized path of one participant. It shares the Node shape.
type ParticipantSequence = Node

// Leaf builds a leaf node.
func Leaf(id string) Node {
	return Node{Kind: KindLeaf, ID: id}
}

// Composite builds a composite node from its ordered components.
func Composite(components ...Node) Node {
	if components == nil {
		components = []Node{}
	}
	return Node{Kind: KindComposite, Components: components}
}

// Leaves builds a composite whose components are all leaves.
func Leaves(ids ...string) Node {
	nodes := make([]Node, len(ids))
	for i, id := range ids {
		nodes[i] = Leaf(id)
	}
	return Composite(nodes...)
}

// WithInterruptions returns a copy of the composite carrying the given interruption specs.
func (n Node) WithInterruptions(specs ...InterruptionSpec) Node {
	n.Interruptions = append(append([]InterruptionSpec(nil), n.Interruptions...), specs...)
	return n
}

// IsLeaf reports whether n is a leaf.
func (n Node) IsLeaf() bool { return n.Kind == KindLeaf }

// IsComposite reports whether n is a composite.
func (n Node) IsComposite() bool { return n.Kind == KindComposite }

type compositeJSON struct {
	ID            string             `json:"id,omitempty"`
	Components    []Node             `json:"components"`
	Interruptions []InterruptionSpec `json:"interruptions,omitempty"`
}

// MarshalJSON encodes a leaf as a bare string and a composite as an object.
func (n Node) MarshalJSON() ([]byte, error) {
	switch n.Kind {
	case KindLeaf:
		return json.Marshal(n.ID)
	case KindComposite:
		components := n.Components
		if components == nil {
			components = []Node{}
		}
		return json.Marshal(compositeJSON{ID: n.ID, Components: components, Interruptions: n.Interruptions})
	default:
		return nil, fmt.Errorf("%w: cannot encode node of kind %s", ErrStructural, n.Kind)
	}
}

// UnmarshalJSON decodes a string as a leaf, an object with a "components" array as a
// composite and a bare array as an anonymous composite. Anything else is ErrStructural.
func (n *Node) UnmarshalJSON(data []byte) error {
	node, err := DecodeNode(data, "$")
	if err != nil {
		return err
	}
	*n = node
	return nil
}

// DecodeNode decodes raw JSON into a Node, reporting the path of the first malformed element.
func DecodeNode(data []byte, path string) (Node, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Node{}, fmt.Errorf("%w: %s: empty node", ErrStructural, path)
	}

	switch data[0] {
	case '"':
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return Node{}, fmt.Errorf("%w: %s: %v", ErrStructural, path, err)
		}
		return Leaf(id), nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return Node{}, fmt.Errorf("%w: %s: %v", ErrStructural, path, err)
		}
		children, err := decodeChildren(raw, path)
		if err != nil {
			return Node{}, err
		}
		return Composite(children...), nil
	case '{':
		return decodeComposite(data, path)
	default:
		return Node{}, fmt.Errorf("%w: %s: expected string or object with components, got %s", ErrStructural, path, abbreviate(data))
	}
}

// DecodeNodes decodes a JSON array of nodes, as carried by a SEQUENCE_ARRAY payload.
func DecodeNodes(data []byte) ([]Node, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []Node{}, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: $: expected array of sequences: %v", ErrStructural, err)
	}
	return decodeChildren(raw, "$")
}

func decodeComposite(data []byte, path string) (Node, error) {
	var obj struct {
		ID            json.RawMessage   `json:"id"`
		Components    json.RawMessage   `json:"components"`
		Interruptions []json.RawMessage `json:"interruptions"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return Node{}, fmt.Errorf("%w: %s: %v", ErrStructural, path, err)
	}

	var raw []json.RawMessage
	if len(obj.Components) == 0 || bytes.Equal(obj.Components, []byte("null")) {
		return Node{}, fmt.Errorf("%w: %s: object has no components", ErrStructural, path)
	}
	if err := json.Unmarshal(obj.Components, &raw); err != nil {
		return Node{}, fmt.Errorf("%w: %s.components: expected array: %v", ErrStructural, path, err)
	}

	children, err := decodeChildren(raw, path+".components")
	if err != nil {
		return Node{}, err
	}
	node := Composite(children...)

	// Block ids are informational; non-string ids are ignored.
	if len(obj.ID) > 0 {
		_ = json.Unmarshal(obj.ID, &node.ID)
	}

	for i, rawSpec := range obj.Interruptions {
		var spec struct {
			Components []string `json:"components"`
		}
		if err := json.Unmarshal(rawSpec, &spec); err != nil {
			return Node{}, fmt.Errorf("%w: %s.interruptions[%d]: %v", ErrStructural, path, i, err)
		}
		// Interruptions without components (e.g. pure spacing rules) declare nothing.
		if len(spec.Components) == 0 {
			continue
		}
		node.Interruptions = append(node.Interruptions, InterruptionSpec{Components: spec.Components})
	}

	return node, nil
}

func decodeChildren(raw []json.RawMessage, path string) ([]Node, error) {
	children := make([]Node, 0, len(raw))
	for i, r := range raw {
		child, err := DecodeNode(r, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

func abbreviate(data []byte) string {
	const limit = 32
	if len(data) > limit {
		return string(data[:limit]) + "..."
	}
	return string(data)
}
