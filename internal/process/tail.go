package process

import "sync"

// tailBuffer is a thread-safe circular buffer of output lines.
type tailBuffer struct {
	lines []string
	size  int
	head  int
	count int
	mu    sync.RWMutex
}

func newTailBuffer(size int) *tailBuffer {
	return &tailBuffer{
		lines: make([]string, size),
		size:  size,
	}
}

// Add appends a line, overwriting the oldest one if full.
func (tb *tailBuffer) Add(line string) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.lines[tb.head] = line
	tb.head = (tb.head + 1) % tb.size

	if tb.count < tb.size {
		tb.count++
	}
}

// Lines returns all lines in chronological order.
func (tb *tailBuffer) Lines() []string {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	if tb.count == 0 {
		return nil
	}

	result := make([]string, tb.count)
	if tb.count < tb.size {
		copy(result, tb.lines[:tb.count])
	} else {
		// Full: oldest line sits at head
		n := copy(result, tb.lines[tb.head:])
		copy(result[n:], tb.lines[:tb.head])
	}
	return result
}
