package frequency

import (
	"fmt"

	"github.com/aretw0/revisit/pkg/domain"
)

// Flatten returns the leaf ids of nodes in depth-first, left-to-right order.
// Duplicates and order are preserved; empty composites contribute nothing.
// Nodes of an unknown kind are skipped; use FlattenChecked to have them reported.
func Flatten(nodes []domain.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = appendLeaves(out, n)
	}
	return out
}

func appendLeaves(out []string, n domain.Node) []string {
	switch n.Kind {
	case domain.KindLeaf:
		return append(out, n.ID)
	case domain.KindComposite:
		for _, c := range n.Components {
			out = appendLeaves(out, c)
		}
	}
	return out
}

// FlattenChecked is Flatten that fails with domain.ErrStructural on the first node
// that is neither a leaf nor a composite.
func FlattenChecked(nodes []domain.Node) ([]string, error) {
	out := make([]string, 0, len(nodes))
	for i, n := range nodes {
		var err error
		out, err = appendLeavesChecked(out, n, fmt.Sprintf("$[%d]", i))
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func appendLeavesChecked(out []string, n domain.Node, path string) ([]string, error) {
	switch n.Kind {
	case domain.KindLeaf:
		return append(out, n.ID), nil
	case domain.KindComposite:
		for i, c := range n.Components {
			var err error
			out, err = appendLeavesChecked(out, c, fmt.Sprintf("%s.components[%d]", path, i))
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s: node of kind %s", domain.ErrStructural, path, n.Kind)
	}
}
