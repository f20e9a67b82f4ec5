// Package stock provides the fixed-capacity indexed store of mirror commands.
//
// A Stock never touches hardware. It guards its slots with its own lock so
// bookkeeping never contends with in-flight device transactions.
package stock

import (
	"fmt"
	"sync"

	"github.com/mirror-control/mcc/internal/mirror"
)

// Stock holds up to Capacity validated commands addressed by index.
type Stock struct {
	mu    sync.RWMutex
	slots []*mirror.Command
	size  int
}

// New creates an empty stock. A negative capacity is treated as zero.
func New(capacity int) *Stock {
	if capacity < 0 {
		capacity = 0
	}
	return &Stock{slots: make([]*mirror.Command, capacity)}
}

// Capacity returns the fixed number of slots.
func (s *Stock) Capacity() int {
	return len(s.slots)
}

// Size returns the number of defined slots.
func (s *Stock) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// CheckIndex fails with ErrOutOfBounds when index is outside [0, Capacity).
func (s *Stock) CheckIndex(index int) error {
	if index < 0 || index >= len(s.slots) {
		return fmt.Errorf("%w: index %d outside [0, %d)", mirror.ErrOutOfBounds, index, len(s.slots))
	}
	return nil
}

// Set validates c and stores it at index, replacing any previous entry.
func (s *Stock) Set(index int, c mirror.Command) error {
	if err := s.CheckIndex(index); err != nil {
		return err
	}
	if err := mirror.Validate(c); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slots[index] == nil {
		s.size++
	}
	stored := c
	s.slots[index] = &stored
	return nil
}

// Get returns the command at index or ErrUndefinedValue for an empty slot.
func (s *Stock) Get(index int) (mirror.Command, error) {
	if err := s.CheckIndex(index); err != nil {
		return mirror.Command{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.slots[index] == nil {
		return mirror.Command{}, fmt.Errorf("%w: stock slot %d is empty", mirror.ErrUndefinedValue, index)
	}
	return *s.slots[index], nil
}

// IsDefined reports whether index holds a command.
func (s *Stock) IsDefined(index int) (bool, error) {
	if err := s.CheckIndex(index); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slots[index] != nil, nil
}

// Remove clears the slot at index. Clearing an empty slot is not an error.
func (s *Stock) Remove(index int) error {
	if err := s.CheckIndex(index); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slots[index] != nil {
		s.slots[index] = nil
		s.size--
	}
	return nil
}

// Reset clears every slot.
func (s *Stock) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.slots {
		s.slots[i] = nil
	}
	s.size = 0
}

// Indices returns the defined slot indices in ascending order.
func (s *Stock) Indices() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int, 0, s.size)
	for i, c := range s.slots {
		if c != nil {
			out = append(out, i)
		}
	}
	return out
}
