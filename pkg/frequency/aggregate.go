package frequency

import "github.com/aretw0/revisit/pkg/domain"

// Aggregate counts the leaves of every participant sequence, drops every id the design
// declares as an interruption, and derives Sum and Max.
//
// Exclusion is id-based: an id listed as an interruption anywhere is removed in total,
// even if it also appears in the normal flow.
func Aggregate(design domain.Node, sequences []domain.Node) (domain.Aggregate, error) {
	if len(sequences) == 0 {
		return domain.EmptyAggregate(), nil
	}

	leaves, err := FlattenChecked(sequences)
	if err != nil {
		return domain.Aggregate{}, err
	}

	table := make(domain.FrequencyTable, len(leaves))
	for _, id := range leaves {
		table[id]++
	}

	for _, id := range ExtractInterruptions(design) {
		delete(table, id)
	}

	agg := domain.Aggregate{Table: table, Max: domain.NoData}
	for _, count := range table {
		agg.Sum += count
		if !agg.Max.Valid || count > agg.Max.Value {
			agg.Max = domain.Max{Value: count, Valid: true}
		}
	}
	return agg, nil
}
