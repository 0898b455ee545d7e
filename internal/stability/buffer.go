// Package stability turns a jittery per-frame finger count into a stable value.
//
// A Buffer keeps the most recent positive counts. Evaluate reports a value only
// once the buffer is full and every entry agrees; any absent or zero reading
// clears the history so the next value has to accumulate from scratch.
package stability

// DefaultThreshold is the number of identical consecutive frames required
// before a count is considered stable.
const DefaultThreshold = 5

// Observation is one classifier reading: either no detection, or a finger count.
type Observation struct {
	Count    int
	Detected bool
}

// Absent returns an observation for a frame with no hand.
func Absent() Observation {
	return Observation{}
}

// Count returns an observation for a detected hand with n raised fingers.
func Count(n int) Observation {
	return Observation{Count: n, Detected: true}
}

// Actionable reports whether the observation carries a positive count.
func (o Observation) Actionable() bool {
	return o.Detected && o.Count > 0
}

// State describes where a gesture episode currently is.
type State int

const (
	// StateIdle means the buffer is empty.
	StateIdle State = iota
	// StateAccumulating means the buffer holds history but no verdict.
	StateAccumulating
	// StateStable means the buffer is full and unanimous.
	StateStable
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateStable:
		return "stable"
	default:
		return "unknown"
	}
}

// Buffer is a fixed-capacity history of positive finger counts.
// It is not safe for concurrent use; the cycle controller owns it.
type Buffer struct {
	values   []int
	capacity int
}

// NewBuffer creates a Buffer holding up to capacity entries.
// A capacity below 1 falls back to DefaultThreshold.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = DefaultThreshold
	}
	return &Buffer{
		values:   make([]int, 0, capacity),
		capacity: capacity,
	}
}

// Observe feeds one reading into the buffer.
// Absent and zero readings clear it; positive counts are appended and the
// oldest entry is dropped once the buffer is full.
func (b *Buffer) Observe(o Observation) {
	if !o.Actionable() {
		b.Reset()
		return
	}

	if len(b.values) >= b.capacity {
		copy(b.values, b.values[1:])
		b.values = b.values[:b.capacity-1]
	}
	b.values = append(b.values, o.Count)
}

// Reset discards all buffered history.
func (b *Buffer) Reset() {
	b.values = b.values[:0]
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	return len(b.values)
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return b.capacity
}

// Values returns a copy of the buffered entries, oldest first.
func (b *Buffer) Values() []int {
	out := make([]int, len(b.values))
	copy(out, b.values)
	return out
}

// State reports the episode state derived from the current contents.
func (b *Buffer) State() State {
	if len(b.values) == 0 {
		return StateIdle
	}
	if _, ok := Evaluate(b); ok {
		return StateStable
	}
	return StateAccumulating
}
