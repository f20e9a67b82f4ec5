package session

import (
	"context"
	"time"

	"github.com/mirror-control/mcc/internal/mirror"
	"github.com/mirror-control/mcc/internal/stock"
)

// Index checks come before the state check so an out-of-range index fails
// with ErrOutOfBounds whatever the session state. Closed sessions keep the
// capacity of the last open.

// SetStockCommand validates c and stores it at index.
func (s *Session) SetStockCommand(ctx context.Context, index int, c mirror.Command) (err error) {
	start := time.Now()
	defer func() { s.record(ctx, "stock.set", map[string]interface{}{"index": index}, err, start) }()

	st := s.currentStock()
	if err := st.CheckIndex(index); err != nil {
		return err
	}
	if !s.isOpened() {
		return mirror.ErrDeviceNotOpen
	}
	return st.Set(index, c)
}

// StockCommand returns the command stored at index.
func (s *Session) StockCommand(index int) (mirror.Command, error) {
	st := s.currentStock()
	if err := st.CheckIndex(index); err != nil {
		return mirror.Command{}, err
	}
	if !s.isOpened() {
		return mirror.Command{}, mirror.ErrDeviceNotOpen
	}
	return st.Get(index)
}

// RemoveStockCommand clears the slot at index.
func (s *Session) RemoveStockCommand(ctx context.Context, index int) (err error) {
	start := time.Now()
	defer func() { s.record(ctx, "stock.remove", map[string]interface{}{"index": index}, err, start) }()

	st := s.currentStock()
	if err := st.CheckIndex(index); err != nil {
		return err
	}
	if !s.isOpened() {
		return mirror.ErrDeviceNotOpen
	}
	return st.Remove(index)
}

// IsStockCommandDefined reports whether index holds a command.
func (s *Session) IsStockCommandDefined(index int) (bool, error) {
	st := s.currentStock()
	if err := st.CheckIndex(index); err != nil {
		return false, err
	}
	if !s.isOpened() {
		return false, mirror.ErrDeviceNotOpen
	}
	return st.IsDefined(index)
}

// ApplyStockCommand applies the stored command at index. It is validated
// again before it reaches the device.
func (s *Session) ApplyStockCommand(ctx context.Context, index int, mode mirror.Mode, trig bool) error {
	c, err := s.StockCommand(index)
	if err != nil {
		return err
	}
	return s.Apply(ctx, c, mode, trig)
}

// ResetStock clears every slot.
func (s *Session) ResetStock(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { s.record(ctx, "stock.reset", nil, err, start) }()

	if !s.isOpened() {
		return mirror.ErrDeviceNotOpen
	}
	s.currentStock().Reset()
	return nil
}

// StockSize returns the number of defined slots.
func (s *Session) StockSize() (int, error) {
	if !s.isOpened() {
		return 0, mirror.ErrDeviceNotOpen
	}
	return s.currentStock().Size(), nil
}

// StockCapacity returns the number of slots the device offers.
func (s *Session) StockCapacity() (int, error) {
	if !s.isOpened() {
		return 0, mirror.ErrDeviceNotOpen
	}
	return s.currentStock().Capacity(), nil
}

// StockIndices lists the defined slots in ascending order.
func (s *Session) StockIndices() ([]int, error) {
	if !s.isOpened() {
		return nil, mirror.ErrDeviceNotOpen
	}
	return s.currentStock().Indices(), nil
}

func (s *Session) currentStock() *stock.Stock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stock
}
