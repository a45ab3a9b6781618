package pipeline

import (
	"sync"

	dompipeline "github.com/kailas-cloud/docingest/internal/domain/pipeline"
)

// DefaultHistorySize is the number of finished runs kept by a History.
const DefaultHistorySize = 100

// History keeps the stats of the most recent finished runs. It is safe for concurrent use.
type History struct {
	mu    sync.Mutex
	items []*dompipeline.Stats // ring buffer
	next  int
	full  bool
}

// NewHistory creates a History holding at most size runs.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{items: make([]*dompipeline.Stats, size)}
}

// Add records a finished run, evicting the oldest when full.
func (h *History) Add(s *dompipeline.Stats) {
	if s == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items[h.next] = s
	h.next = (h.next + 1) % len(h.items)
	if h.next == 0 {
		h.full = true
	}
}

// Len returns the number of runs held.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.full {
		return len(h.items)
	}
	return h.next
}

// Recent returns up to limit runs, newest first. Non-positive limit returns all.
func (h *History) Recent(limit int) []*dompipeline.Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.next
	if h.full {
		n = len(h.items)
	}
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]*dompipeline.Stats, 0, n)
	for i := 1; i <= n; i++ {
		idx := (h.next - i + len(h.items)) % len(h.items)
		out = append(out, h.items[idx])
	}
	return out
}
