package frequency

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aretw0/revisit/pkg/domain"
)

// Memo caches the most recent Aggregate keyed by the value hash of its inputs.
// Safe for concurrent use.
type Memo struct {
	mu     sync.Mutex
	key    [sha256.Size]byte
	result domain.Aggregate
	valid  bool
}

// NewMemo creates an empty memo.
func NewMemo() *Memo {
	return &Memo{}
}

// Compute returns the aggregate for (design, sequences). recomputed is false when the
// inputs hash to the previously computed key and the cached value was returned.
func (m *Memo) Compute(design domain.Node, sequences []domain.Node) (agg domain.Aggregate, recomputed bool, err error) {
	key, err := inputKey(design, sequences)
	if err != nil {
		return domain.Aggregate{}, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.valid && m.key == key {
		return m.result, false, nil
	}

	agg, err = Aggregate(design, sequences)
	if err != nil {
		return domain.Aggregate{}, false, err
	}
	m.key, m.result, m.valid = key, agg, true
	return agg, true, nil
}

// Reset drops the cached result.
func (m *Memo) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.valid = false
}

func inputKey(design domain.Node, sequences []domain.Node) ([sha256.Size]byte, error) {
	if sequences == nil {
		sequences = []domain.Node{}
	}
	data, err := json.Marshal(struct {
		Design    domain.Node   `json:"d"`
		Sequences []domain.Node `json:"s"`
	}{design, sequences})
	if err != nil {
		return [sha256.Size]byte{}, fmt.Errorf("hash inputs: %w", err)
	}
	return sha256.Sum256(data), nil
}
