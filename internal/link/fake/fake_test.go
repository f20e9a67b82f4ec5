package fake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mirror-control/mcc/internal/link"
	"github.com/mirror-control/mcc/internal/linktest"
	"github.com/mirror-control/mcc/internal/mirror"
)

func TestFakeLinkConformance(t *testing.T) {
	linktest.RunConformance(t, func() link.DeviceLink {
		return New()
	}, linktest.Capabilities{Name: "fake", MinStockCapacity: 1})
}

func TestSmoothRampRecordsSteps(t *testing.T) {
	l := New(WithSmoothSteps(4))
	ctx := context.Background()
	if _, err := l.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	target := mirror.Zero()
	for i := range target {
		target[i] = 0.4
	}
	if err := l.SendCommand(ctx, target, mirror.ModeSmooth, true); err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}

	tx := l.Transactions()
	if len(tx) != 4 {
		t.Fatalf("Expected 4 ramp transactions, got %d", len(tx))
	}
	if tx[0].Command[0] <= 0 || tx[0].Command[0] >= 0.4 {
		t.Errorf("First step should be intermediate, got %v", tx[0].Command[0])
	}
	for i, step := range tx {
		if step.Trig != (i == len(tx)-1) {
			t.Errorf("Step %d: trig=%v, only the last step may trigger", i, step.Trig)
		}
	}
	if l.Current() != target {
		t.Error("Mirror should hold the target after the ramp")
	}

	sent := l.SentCommands()
	if len(sent) != 1 || sent[0].Steps != 4 || sent[0].Mode != mirror.ModeSmooth {
		t.Errorf("Unexpected send record %+v", sent)
	}
}

func TestOverheatLocksDevice(t *testing.T) {
	l := New()
	ctx := context.Background()
	if _, err := l.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	l.SetMirrorTemperature(DefaultThresholds.MirrorTemperature + 5)
	tel, err := l.PollTelemetry(ctx)
	if err != nil {
		t.Fatalf("PollTelemetry failed: %v", err)
	}
	if !tel.Locked {
		t.Fatal("Expected locked telemetry above threshold")
	}

	shape := mirror.Zero()
	shape[0] = 0.5
	if err := l.SendCommand(ctx, shape, mirror.ModeImmediate, false); !errors.Is(err, mirror.ErrDeviceLocked) {
		t.Errorf("Expected ErrDeviceLocked, got %v", err)
	}
	if err := l.SendCommand(ctx, mirror.Zero(), mirror.ModeImmediate, false); err != nil {
		t.Errorf("Zero command must be accepted while locked, got %v", err)
	}
}

func TestErrorSimulation(t *testing.T) {
	l := New()
	ctx := context.Background()

	injected := link.FromStatus(mirror.StatusDefectiveDevice, nil)
	l.SetErrorSimulation(OpConnect, injected)
	if _, err := l.Connect(ctx); !errors.Is(err, mirror.ErrDefectiveDevice) {
		t.Fatalf("Expected ErrDefectiveDevice, got %v", err)
	}
	if l.IsOpen() {
		t.Error("Failed connect must leave the link closed")
	}

	l.DisableErrorSimulation()
	if _, err := l.Connect(ctx); err != nil {
		t.Fatalf("Connect failed after clearing faults: %v", err)
	}

	l.SetConnected(false)
	if err := l.SendCommand(ctx, mirror.Zero(), mirror.ModeImmediate, false); !errors.Is(err, mirror.ErrDeviceDisconnected) {
		t.Errorf("Expected ErrDeviceDisconnected, got %v", err)
	}
	tel, err := l.PollTelemetry(ctx)
	if err != nil {
		t.Fatalf("PollTelemetry failed: %v", err)
	}
	if tel.Connected {
		t.Error("Expected disconnected telemetry")
	}
}

func TestHoldSends(t *testing.T) {
	l := New()
	ctx := context.Background()
	if _, err := l.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	entered, release := l.HoldSends()
	done := make(chan error, 1)
	go func() {
		done <- l.SendCommand(ctx, mirror.Zero(), mirror.ModeImmediate, false)
	}()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("Send never reached the gate")
	}
	select {
	case <-done:
		t.Fatal("Send completed while held")
	default:
	}

	release()
	if err := <-done; err != nil {
		t.Fatalf("Released send failed: %v", err)
	}
}
