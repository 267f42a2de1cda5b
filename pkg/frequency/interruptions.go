package frequency

import "github.com/aretw0/revisit/pkg/domain"

// ExtractInterruptions collects the ids of every InterruptionSpec in the design.
// At each node its own interruptions come first, then each child in order, so
// ancestors are listed before descendants. The result is not deduplicated.
func ExtractInterruptions(root domain.Node) []string {
	var ids []string
	var traverse func(n domain.Node)
	traverse = func(n domain.Node) {
		if !n.IsComposite() {
			return
		}
		for _, spec := range n.Interruptions {
			ids = append(ids, spec.Components...)
		}
		for _, c := range n.Components {
			traverse(c)
		}
	}
	traverse(root)
	return ids
}

// ExclusionSet converts an interruption id list into a membership set.
func ExclusionSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
