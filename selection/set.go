// Package selection provides an insertion-ordered set of catalog items keyed
// by an identity key, with toggle semantics.
package selection

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Keyed is implemented by every item that can be selected
type Keyed[K comparable] interface {
	Key() K
}

// selectable is implemented by items that may refuse selection
type selectable interface {
	Selectable() bool
}

// quantified is implemented by items carrying a quantity. The item decides
// how the requested quantity is clamped.
type quantified[T any] interface {
	WithQuantity(n int) T
}

// Set is an insertion-ordered set of items. The zero value is an empty set
// ready to use. A Set is not safe for concurrent use.
type Set[K comparable, T Keyed[K]] struct {
	items []T
	index map[K]int
}

// New returns a set holding items, in order, skipping duplicates and items
// that are not selectable
func New[K comparable, T Keyed[K]](items ...T) *Set[K, T] {
	s := &Set[K, T]{}
	for _, item := range items {
		if !s.Contains(item.Key()) {
			s.add(item)
		}
	}
	return s
}

// Toggle removes the item if its key is present, otherwise inserts it.
// It reports whether the item is selected afterwards. Items that are not
// selectable are never inserted.
func (s *Set[K, T]) Toggle(item T) bool {
	key := item.Key()
	if i, ok := s.index[key]; ok {
		s.removeAt(i)
		return false
	}
	return s.add(item)
}

// SetQuantity parses raw as a positive integer and applies it to the item
// stored under key. Parse failures and values below 1 become 1. It reports
// false when the key is not in the set or the item has no quantity.
func (s *Set[K, T]) SetQuantity(key K, raw string) bool {
	if s == nil {
		return false
	}
	i, ok := s.index[key]
	if !ok {
		return false
	}
	q, ok := any(s.items[i]).(quantified[T])
	if !ok {
		return false
	}
	s.items[i] = q.WithQuantity(ParseQuantity(raw))
	return true
}

// ParseQuantity converts user input to a quantity of at least 1. Like
// parseInt in a browser it reads the leading digits, so "5.7" and "5 tests"
// give 5.
func ParseQuantity(raw string) int {
	digits := strings.TrimPrefix(strings.TrimSpace(raw), "+")
	end := 0
	for end < len(digits) && digits[end] >= '0' && digits[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(digits[:end])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// Contains reports whether key is selected
func (s *Set[K, T]) Contains(key K) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[key]
	return ok
}

// Get returns the item stored under key
func (s *Set[K, T]) Get(key K) (T, bool) {
	if s == nil {
		var zero T
		return zero, false
	}
	i, ok := s.index[key]
	if !ok {
		var zero T
		return zero, false
	}
	return s.items[i], true
}

// Items returns a copy of the selected items in insertion order
func (s *Set[K, T]) Items() []T {
	if s == nil {
		return []T{}
	}
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of selected items
func (s *Set[K, T]) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Clear removes every item
func (s *Set[K, T]) Clear() {
	s.items = nil
	s.index = nil
}

// Clone returns an independent copy of the set
func (s *Set[K, T]) Clone() *Set[K, T] {
	if s == nil {
		return nil
	}
	c := &Set[K, T]{}
	for _, item := range s.items {
		c.add(item)
	}
	return c
}

// MarshalJSON encodes the set as an array of items in insertion order
func (s Set[K, T]) MarshalJSON() ([]byte, error) {
	if s.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.items)
}

// UnmarshalJSON decodes an array of items, keeping the first of duplicates
func (s *Set[K, T]) UnmarshalJSON(data []byte) error {
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	s.Clear()
	for _, item := range items {
		if !s.Contains(item.Key()) {
			s.add(item)
		}
	}
	return nil
}

func (s *Set[K, T]) add(item T) bool {
	if sel, ok := any(item).(selectable); ok && !sel.Selectable() {
		return false
	}
	if s.index == nil {
		s.index = make(map[K]int)
	}
	s.index[item.Key()] = len(s.items)
	s.items = append(s.items, item)
	return true
}

func (s *Set[K, T]) removeAt(i int) {
	delete(s.index, s.items[i].Key())
	s.items = append(s.items[:i], s.items[i+1:]...)
	for j := i; j < len(s.items); j++ {
		s.index[s.items[j].Key()] = j
	}
}
