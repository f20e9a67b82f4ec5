package session

import (
	"context"
	"fmt"
	"time"

	"github.com/mirror-control/mcc/internal/link"
	"github.com/mirror-control/mcc/internal/mirror"
)

// Apply validates c and sends it to the mirror. The last-applied command
// and its timestamp change only when the device accepted c.
func (s *Session) Apply(ctx context.Context, c mirror.Command, mode mirror.Mode, trig bool) (err error) {
	start := time.Now()
	defer func() {
		s.record(ctx, "apply", map[string]interface{}{"mode": mode.String(), "trig": trig}, err, start)
	}()

	if err := s.checkApplicable(); err != nil {
		return err
	}
	if err := mirror.Validate(c); err != nil {
		return err
	}

	if !s.hw.TryLock() {
		return mirror.ErrOperationOngoing
	}
	defer s.hw.Unlock()
	// The loop may have moved the session while we waited for the lock.
	if err := s.checkApplicable(); err != nil {
		return err
	}
	return s.send(ctx, c, mode, trig)
}

// ApplyCommand applies c immediately.
func (s *Session) ApplyCommand(ctx context.Context, c mirror.Command, trig bool) error {
	return s.Apply(ctx, c, mirror.ModeImmediate, trig)
}

// ApplySmoothCommand ramps the mirror to c.
func (s *Session) ApplySmoothCommand(ctx context.Context, c mirror.Command, trig bool) error {
	return s.Apply(ctx, c, mirror.ModeSmooth, trig)
}

// ApplyFlat ramps the mirror to the factory flat command read from the
// configured .mro file.
func (s *Session) ApplyFlat(ctx context.Context, trig bool) error {
	if err := s.checkApplicable(); err != nil {
		return err
	}
	if s.flat == "" {
		return fmt.Errorf("%w: no flat file configured", mirror.ErrUnavailableData)
	}
	c, err := s.LoadCommandFile(ctx, s.flat)
	if err != nil {
		return err
	}
	return s.Apply(ctx, c, mirror.ModeSmooth, trig)
}

// LastAppliedCommand returns the command the device last accepted.
func (s *Session) LastAppliedCommand() (mirror.Command, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.opened {
		return mirror.Command{}, mirror.ErrDeviceNotOpen
	}
	return s.lastApplied, nil
}

// LastAppliedAt returns when the last command was accepted, to the second.
func (s *Session) LastAppliedAt() (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.opened {
		return time.Time{}, mirror.ErrDeviceNotOpen
	}
	return s.lastAppliedAt, nil
}

func (s *Session) checkApplicable() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.stateLocked() {
	case StateClosed:
		return mirror.ErrDeviceNotOpen
	case StateLocked:
		return mirror.ErrDeviceLocked
	case StateDisconnected:
		return mirror.ErrDeviceDisconnected
	}
	return nil
}

// send runs one command transaction. The caller holds hw.
func (s *Session) send(ctx context.Context, c mirror.Command, mode mirror.Mode, trig bool) error {
	timeout := s.timing.CommandTimeoutApply
	if mode == mirror.ModeSmooth {
		timeout = s.timing.CommandTimeoutApplySmooth
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.link.SendCommand(cctx, c, mode, trig); err != nil {
		return link.Normalize(err, "send command")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastApplied = c
	s.lastAppliedAt = s.stamp()
	return nil
}
