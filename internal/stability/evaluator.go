package stability

// Evaluate returns the stable value of the buffer.
// It reports ok only when the buffer is at full capacity and every entry is
// identical, so a single disagreeing frame anywhere in the window withholds
// the verdict.
func Evaluate(b *Buffer) (value int, ok bool) {
	if b == nil || len(b.values) < b.capacity {
		return 0, false
	}

	first := b.values[0]
	for _, v := range b.values[1:] {
		if v != first {
			return 0, false
		}
	}
	return first, true
}
