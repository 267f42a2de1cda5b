package domain

import (
	"encoding/json"
	"strconv"
)

// FrequencyTable maps a stimulus id to the number of times it was shown.
type FrequencyTable map[string]int

// Max is the greatest count of a FrequencyTable. Valid is false when the table is empty ("no data").
type Max struct {
	Value int
	Valid bool
}

// NoData is the Max sentinel for an empty table.
var NoData = Max{}

// MarshalJSON encodes the "no data" sentinel as null.
func (m Max) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}

// UnmarshalJSON accepts null as "no data".
func (m *Max) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = NoData
		return nil
	}
	if err := json.Unmarshal(data, &m.Value); err != nil {
		return err
	}
	m.Valid = true
	return nil
}

func (m Max) String() string {
	if !m.Valid {
		return "no data"
	}
	return strconv.Itoa(m.Value)
}

// Aggregate is the derived frequency summary of a set of participant sequences.
type Aggregate struct {
	Table FrequencyTable `json:"table"`
	Sum   int            `json:"sum"`
	Max   Max            `json:"max"`
}

// EmptyAggregate returns the aggregate of an empty sequence list.
func EmptyAggregate() Aggregate {
	return Aggregate{Table: FrequencyTable{}, Sum: 0, Max: NoData}
}

// HasData reports whether at least one stimulus survived exclusion.
func (a Aggregate) HasData() bool {
	return a.Max.Valid
}

// Weight returns count/Max for id. The boolean is false when there is no data for id,
// which callers must render distinctly from a zero weight.
func (a Aggregate) Weight(id string) (float64, bool) {
	if !a.Max.Valid || a.Max.Value == 0 {
		return 0, false
	}
	count, ok := a.Table[id]
	if !ok {
		return 0, false
	}
	return float64(count) / float64(a.Max.Value), true
}
