package stream

import "sync"

// DefaultTailLimit is how much trailing output is retained for failure
// classification.
const DefaultTailLimit = 10 * 1024

// TailBuffer accumulates the trailing portion of a run's combined output.
// Writes past the limit discard the oldest bytes. The failure classifier
// inspects the result after a non-zero exit.
//
// Safe for concurrent use; both stream drain goroutines write to it.
type TailBuffer struct {
	mu    sync.Mutex
	limit int
	data  []byte
}

// NewTailBuffer creates a tail buffer keeping at most limit bytes. A
// non-positive limit falls back to DefaultTailLimit.
func NewTailBuffer(limit int) *TailBuffer {
	if limit <= 0 {
		limit = DefaultTailLimit
	}
	return &TailBuffer{limit: limit}
}

// WriteString appends s, evicting from the front when over the limit.
func (t *TailBuffer) WriteString(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(s) >= t.limit {
		// The write alone fills the window; keep only its tail.
		t.data = append(t.data[:0], s[len(s)-t.limit:]...)
		return
	}
	t.data = append(t.data, s...)
	if over := len(t.data) - t.limit; over > 0 {
		t.data = append(t.data[:0], t.data[over:]...)
	}
}

// WriteLine appends a line and its terminator.
func (t *TailBuffer) WriteLine(line string) {
	t.WriteString(line + "\n")
}

// String returns the retained tail.
func (t *TailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.data)
}

// Len returns the number of retained bytes.
func (t *TailBuffer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.data)
}
