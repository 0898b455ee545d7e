// Package command maps stable finger counts to lamp commands.
package command

import (
	"fmt"
	"sort"
)

// MaxLevel is the top of the lamp's 12-bit slider range.
const MaxLevel = 4095

// Level is a lamp slider position in [0, MaxLevel].
type Level int

// Percent returns the level as an integer percentage of MaxLevel.
func (l Level) Percent() int {
	return int(l) * 100 / MaxLevel
}

// Valid reports whether the level lies within the slider range.
func (l Level) Valid() bool {
	return l >= 0 && l <= MaxLevel
}

// Mapping is a table from finger count to slider level.
type Mapping map[int]Level

// DefaultMapping returns the blue-to-red gradient used by the lamp:
// one finger is blue, five fingers is red.
func DefaultMapping() Mapping {
	return Mapping{
		1: 2048,
		2: 2560,
		3: 3072,
		4: 3584,
		5: MaxLevel,
	}
}

// Mapper looks up the level for a stable finger count.
// Its table is copied at construction and never changes afterwards.
type Mapper struct {
	table map[int]Level
}

// NewMapper validates m and returns a Mapper over a private copy of it.
func NewMapper(m Mapping) (*Mapper, error) {
	if len(m) == 0 {
		return nil, fmt.Errorf("mapping is empty")
	}

	table := make(map[int]Level, len(m))
	for count, level := range m {
		if count <= 0 {
			return nil, fmt.Errorf("mapping key %d: finger count must be positive", count)
		}
		if !level.Valid() {
			return nil, fmt.Errorf("mapping %d: level %d outside [0, %d]", count, level, MaxLevel)
		}
		table[count] = level
	}

	return &Mapper{table: table}, nil
}

// Map returns the level for count, or false when count is not in the table.
func (m *Mapper) Map(count int) (Level, bool) {
	level, ok := m.table[count]
	return level, ok
}

// Counts returns the mapped finger counts in ascending order.
func (m *Mapper) Counts() []int {
	counts := make([]int, 0, len(m.table))
	for c := range m.table {
		counts = append(counts, c)
	}
	sort.Ints(counts)
	return counts
}
