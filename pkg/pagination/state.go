package pagination

import (
	"fmt"

	"github.com/Sternrassler/marvel-client/pkg/marvel"
)

// State holds the characters accumulated across pages and the load flag.
// It is not safe for concurrent use; the Controller confines it to its Loop.
type State struct {
	items   []marvel.Character
	total   int
	loading bool
	loaded  bool
}

// NewState returns an empty state.
func NewState() *State {
	return &State{}
}

// Reset clears accumulated items and the known total.
func (s *State) Reset() {
	s.items = nil
	s.total = 0
	s.loading = false
	s.loaded = false
}

// BeginLoad marks a fetch as outstanding.
func (s *State) BeginLoad() error {
	if s.loading {
		return ErrAlreadyLoading
	}
	s.loading = true
	return nil
}

// ApplyPage appends the page results and returns the indices they were inserted at.
func (s *State) ApplyPage(page *marvel.Page) []int {
	start := len(s.items)
	s.items = append(s.items, page.Results...)
	s.total = page.Total
	s.loading = false
	s.loaded = true

	indices := make([]int, len(page.Results))
	for i := range indices {
		indices[i] = start + i
	}
	return indices
}

// FailLoad clears the load flag and leaves items and total untouched.
func (s *State) FailLoad() {
	s.loading = false
}

// Exhaust stops further paging by clamping the total to what has been loaded.
func (s *State) Exhaust() {
	s.total = len(s.items)
}

// Count returns the number of accumulated characters.
func (s *State) Count() int { return len(s.items) }

// Total returns the last total reported by the server.
func (s *State) Total() int { return s.total }

// IsLoading reports whether a fetch is outstanding.
func (s *State) IsLoading() bool { return s.loading }

// Loaded reports whether at least one page has been applied since the last reset.
func (s *State) Loaded() bool { return s.loaded }

// HasMore reports whether the server has items beyond those accumulated.
func (s *State) HasMore() bool { return len(s.items) < s.total }

// NextOffset is the offset of the next page to request.
func (s *State) NextOffset() int { return len(s.items) }

// At returns the character at index i.
func (s *State) At(i int) (marvel.Character, error) {
	if i < 0 || i >= len(s.items) {
		return marvel.Character{}, fmt.Errorf("%w: %d (loaded %d)", ErrIndexOutOfRange, i, len(s.items))
	}
	return s.items[i], nil
}

// Items returns a copy of the accumulated characters.
func (s *State) Items() []marvel.Character {
	out := make([]marvel.Character, len(s.items))
	copy(out, s.items)
	return out
}
