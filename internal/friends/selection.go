package friends

import "sync"

// Selection is the set of friend IDs the user picked for comparison.
// It keeps insertion order so First is stable. Safe for concurrent use.
//
// Only the first selected friend is overlaid on availability; the rest are
// kept so the UI can show the whole selection.
type Selection struct {
	mu  sync.RWMutex
	ids []string
}

// NewSelection returns a selection pre-populated with ids (duplicates and
// empty IDs are ignored).
func NewSelection(ids ...string) *Selection {
	s := &Selection{}
	for _, id := range ids {
		s.Select(id)
	}
	return s
}

// Select adds id to the selection. It reports whether the set changed.
func (s *Selection) Select(id string) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if indexOf(s.ids, id) >= 0 {
		return false
	}
	s.ids = append(s.ids, id)
	return true
}

// Deselect removes id. It reports whether the set changed.
func (s *Selection) Deselect(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.ids, id)
	if i < 0 {
		return false
	}
	s.ids = append(s.ids[:i:i], s.ids[i+1:]...)
	return true
}

// Replace swaps the whole selection for ids.
func (s *Selection) Replace(ids []string) {
	next := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || indexOf(next, id) >= 0 {
			continue
		}
		next = append(next, id)
	}
	s.mu.Lock()
	s.ids = next
	s.mu.Unlock()
}

func (s *Selection) Clear() {
	s.mu.Lock()
	s.ids = nil
	s.mu.Unlock()
}

func (s *Selection) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return indexOf(s.ids, id) >= 0
}

func (s *Selection) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// IDs returns a copy of the selection in insertion order.
func (s *Selection) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// First returns the earliest selected friend, or "" if nothing is selected.
func (s *Selection) First() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.ids) == 0 {
		return ""
	}
	return s.ids[0]
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
