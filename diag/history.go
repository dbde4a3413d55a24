package diag

import (
	"slices"
	"sync"
)

// historyLimit caps the retained error records per backend.
const historyLimit = 10

// History is a per-backend ring buffer of EnhancedError records. A new
// install clears the backend's prior history before recording anything.
type History struct {
	mu      sync.Mutex
	entries map[string][]EnhancedError
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{entries: make(map[string][]EnhancedError)}
}

// Record appends an error to a backend's history, evicting the oldest entry
// once the ring is full.
func (h *History) Record(backendID string, e EnhancedError) {
	if h == nil || backendID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := append(h.entries[backendID], e)
	if len(entries) > historyLimit {
		entries = entries[len(entries)-historyLimit:]
	}
	h.entries[backendID] = entries
}

// For returns a copy of a backend's recorded errors, oldest first.
func (h *History) For(backendID string) []EnhancedError {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.entries[backendID])
}

// Clear drops all records for a backend.
func (h *History) Clear(backendID string) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entries, backendID)
}
