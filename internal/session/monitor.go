package session

import (
	"context"
	"log"
	"time"

	"github.com/mirror-control/mcc/internal/link"
	"github.com/mirror-control/mcc/internal/mirror"
)

// SetMonitoringEnabled starts or stops the monitoring loop. Enabling polls
// the device once before returning so the getters have data. Disabling
// returns only after the loop has exited; no event fires afterwards.
func (s *Session) SetMonitoringEnabled(ctx context.Context, enabled bool) (err error) {
	start := time.Now()
	defer func() {
		s.record(ctx, "monitoring.set", map[string]interface{}{"enabled": enabled}, err, start)
	}()

	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if !s.isOpened() {
		return mirror.ErrDeviceNotOpen
	}
	if !enabled {
		s.stopLoop()
		return nil
	}
	if s.loopDone != nil {
		return nil
	}

	if !s.hw.TryLock() {
		return mirror.ErrOperationOngoing
	}
	s.mu.Lock()
	s.monitor = monitorState{enabled: true, connected: true}
	s.monitor.snapshot = mirror.Snapshot{Enabled: true, Connected: true}
	s.mu.Unlock()
	seed := s.observe(ctx)
	s.hw.Unlock()

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.loopCancel, s.loopDone = cancel, done
	go s.run(loopCtx, done, seed)
	log.Printf("session: monitoring started (every %v)", s.timing.MonitorPollInterval)
	return nil
}

// IsMonitoringEnabled reports whether the loop runs.
func (s *Session) IsMonitoringEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.monitor.enabled
}

// Snapshot returns the latest monitoring state.
func (s *Session) Snapshot() (mirror.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.opened {
		return mirror.Snapshot{}, mirror.ErrDeviceNotOpen
	}
	if !s.monitor.enabled {
		return mirror.Snapshot{}, mirror.ErrUnavailableData
	}
	return s.monitor.snapshot, nil
}

// MirrorTemperature returns the last mirror temperature in degrees Celsius.
func (s *Session) MirrorTemperature() (float64, error) {
	snap, err := s.Snapshot()
	return snap.MirrorTemperature, err
}

// PowerSupplyTemperature returns the last power supply temperature in
// degrees Celsius.
func (s *Session) PowerSupplyTemperature() (float64, error) {
	snap, err := s.Snapshot()
	return snap.PowerSupplyTemperature, err
}

// PositiveCoilsCurrent returns the last positive coils current in Amperes.
func (s *Session) PositiveCoilsCurrent() (float64, error) {
	snap, err := s.Snapshot()
	return snap.PositiveCoilsCurrent, err
}

// NegativeCoilsCurrent returns the last negative coils current in Amperes.
func (s *Session) NegativeCoilsCurrent() (float64, error) {
	snap, err := s.Snapshot()
	return snap.NegativeCoilsCurrent, err
}

// IsLocked reports whether the device is in protection.
func (s *Session) IsLocked() (bool, error) {
	snap, err := s.Snapshot()
	return snap.Locked, err
}

// IsConnected reports whether the device answers.
func (s *Session) IsConnected() (bool, error) {
	snap, err := s.Snapshot()
	return snap.Connected, err
}

// LockThresholds returns the protection limits reported by the device.
func (s *Session) LockThresholds() (mirror.LockThresholds, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.opened {
		return mirror.LockThresholds{}, mirror.ErrDeviceNotOpen
	}
	return s.info.Thresholds, nil
}

func (s *Session) run(ctx context.Context, done chan struct{}, seed []mirror.Event) {
	defer close(done)

	s.dispatch(s.event(mirror.EventMonitoringStarted, nil))
	for _, ev := range seed {
		s.dispatch(ev)
	}

	ticker := time.NewTicker(s.timing.MonitorPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			ev := s.event(mirror.EventMonitoringStopped, nil)
			ev.Snapshot.Enabled = false
			s.dispatch(ev)
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one poll cycle, skipping it when a foreground transaction holds
// the hardware.
func (s *Session) tick(ctx context.Context) {
	if !s.hw.TryLock() {
		if s.metrics != nil {
			s.metrics.PollSkipped()
		}
		return
	}
	events := s.observe(ctx)
	s.hw.Unlock()

	for _, ev := range events {
		if ctx.Err() != nil {
			return
		}
		s.dispatch(ev)
	}
}

// stopLoop cancels the loop and waits for it. The caller holds loopMu.
func (s *Session) stopLoop() {
	if s.loopCancel == nil {
		return
	}
	s.loopCancel()
	<-s.loopDone
	s.loopCancel, s.loopDone = nil, nil

	s.mu.Lock()
	s.monitor = monitorState{connected: true}
	s.mu.Unlock()
	log.Printf("session: monitoring stopped")
}

// observe polls once and folds the result into the monitor state. On entry
// into protection the zero command is asserted. The caller holds hw.
func (s *Session) observe(ctx context.Context) []mirror.Event {
	pctx, cancel := context.WithTimeout(ctx, s.timing.CommandTimeoutPoll)
	tel, err := s.link.PollTelemetry(pctx)
	cancel()
	if ctx.Err() != nil {
		return nil
	}

	events, entered := s.fold(tel, err)
	if entered {
		if err := s.send(ctx, mirror.Zero(), mirror.ModeImmediate, false); err != nil {
			log.Printf("session: zero command on lock: %v", err)
			events = append(events, s.event(mirror.EventTransmissionError, err))
		}
	}
	return events
}

// fold applies one poll result and reports the resulting edges, and whether
// the device just entered protection.
func (s *Session) fold(tel *link.Telemetry, err error) (events []mirror.Event, enteredLock bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := &s.monitor

	if err != nil {
		err = link.Normalize(err, "poll telemetry")
		if !link.IsLinkLost(err) {
			return []mirror.Event{{Type: mirror.EventTransmissionError, Snapshot: m.snapshot, Err: err}}, false
		}
		if m.connected {
			m.connected = false
			m.snapshot.Connected = false
			events = append(events, mirror.Event{Type: mirror.EventConnectionLost, Snapshot: m.snapshot, Err: err})
		}
		return events, false
	}

	m.snapshot = mirror.Snapshot{
		Enabled:                true,
		Locked:                 tel.Locked,
		Connected:              tel.Connected,
		MirrorTemperature:      tel.MirrorTemperature,
		PowerSupplyTemperature: tel.PowerSupplyTemperature,
		PositiveCoilsCurrent:   tel.PositiveCoilsCurrent,
		NegativeCoilsCurrent:   tel.NegativeCoilsCurrent,
		SampledAt:              s.now(),
	}
	if s.metrics != nil {
		s.metrics.ObserveTelemetry(m.snapshot)
	}

	var types []mirror.EventType
	if tel.Connected != m.connected {
		m.connected = tel.Connected
		if tel.Connected {
			types = append(types, mirror.EventConnectionRecovered)
		} else {
			types = append(types, mirror.EventConnectionLost)
		}
	}
	if tel.Locked != m.locked {
		m.locked = tel.Locked
		if tel.Locked {
			types = append(types, mirror.EventLocked)
			enteredLock = true
		} else {
			types = append(types, mirror.EventUnlocked)
		}
	}
	for _, t := range types {
		events = append(events, mirror.Event{Type: t, Snapshot: m.snapshot})
	}
	return events, enteredLock
}

func (s *Session) event(t mirror.EventType, err error) mirror.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return mirror.Event{Type: t, Snapshot: s.monitor.snapshot, Err: err}
}
