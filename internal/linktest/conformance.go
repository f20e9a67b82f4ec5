// Package linktest provides implementation-agnostic conformance testing for
// DeviceLink implementations.
package linktest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mirror-control/mcc/internal/link"
	"github.com/mirror-control/mcc/internal/mirror"
)

// Capabilities defines what the link under test is expected to report.
type Capabilities struct {
	Name             string
	MinStockCapacity int
	// MaxLatency bounds a single immediate transaction. Zero means one second.
	MaxLatency time.Duration
}

// ConformanceResult represents the result of one conformance check.
type ConformanceResult struct {
	TestName string
	Passed   bool
	Error    string
	Duration time.Duration
	Details  map[string]interface{}
}

// ConformanceReport collects the results of a run.
type ConformanceReport struct {
	LinkName      string
	TotalTests    int
	PassedTests   int
	FailedTests   int
	Results       []ConformanceResult
	OverallPassed bool
	Duration      time.Duration
}

// RunConformance runs the complete suite. newLink must return a fresh,
// unconnected link on every call.
func RunConformance(t *testing.T, newLink func() link.DeviceLink, caps Capabilities) {
	start := time.Now()
	if caps.MaxLatency == 0 {
		caps.MaxLatency = time.Second
	}
	name := caps.Name
	if name == "" {
		name = "Unknown Link"
	}

	report := &ConformanceReport{
		LinkName:      name,
		Results:       []ConformanceResult{},
		OverallPassed: true,
	}

	runConnectTests(newLink, caps, report)
	runSendTests(newLink, caps, report)
	runTelemetryTests(newLink, report)
	runLifecycleTests(newLink, report)
	runFailureMappingTests(newLink, report)

	report.Duration = time.Since(start)
	printConformanceReport(t, report)

	if !report.OverallPassed {
		t.Fatalf("Link conformance test failed: %d/%d tests passed", report.PassedTests, report.TotalTests)
	}
}

// check runs fn and records its outcome.
func check(report *ConformanceReport, name string, fn func(details map[string]interface{}) error) {
	result := ConformanceResult{TestName: name, Details: make(map[string]interface{})}
	start := time.Now()
	err := fn(result.Details)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err.Error()
	} else {
		result.Passed = true
	}
	report.addResult(result)
}

func connected(newLink func() link.DeviceLink) (link.DeviceLink, *link.DeviceInfo, error) {
	l := newLink()
	info, err := l.Connect(context.Background())
	if err != nil {
		return nil, nil, fmt.Errorf("Connect failed: %w", err)
	}
	return l, info, nil
}

func runConnectTests(newLink func() link.DeviceLink, caps Capabilities, report *ConformanceReport) {
	check(report, "Connect_Basic", func(details map[string]interface{}) error {
		l, info, err := connected(newLink)
		if err != nil {
			return err
		}
		defer l.Disconnect(context.Background())

		if info == nil {
			return errors.New("Connect returned nil info")
		}
		details["model"] = info.Model
		details["stockCapacity"] = info.StockCapacity
		if info.StockCapacity < caps.MinStockCapacity {
			return fmt.Errorf("stock capacity %d below %d", info.StockCapacity, caps.MinStockCapacity)
		}
		th := info.Thresholds
		if th.MirrorTemperature <= 0 || th.PowerSupplyTemperature <= 0 || th.PositiveCoilsCurrent <= 0 || th.NegativeCoilsCurrent <= 0 {
			return fmt.Errorf("lock thresholds not reported: %+v", th)
		}
		return nil
	})

	check(report, "Connect_CanceledContext", func(details map[string]interface{}) error {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		l := newLink()
		_, err := l.Connect(ctx)
		if err == nil {
			l.Disconnect(context.Background())
			return errors.New("Connect succeeded with a canceled context")
		}
		if mirror.StatusOf(err) == mirror.StatusUnknown {
			return fmt.Errorf("error not normalized: %v", err)
		}
		return nil
	})
}

func runSendTests(newLink func() link.DeviceLink, caps Capabilities, report *ConformanceReport) {
	shape := mirror.Zero()
	for i := range shape {
		shape[i] = 0.2
	}

	cases := []struct {
		name string
		cmd  mirror.Command
		mode mirror.Mode
		trig bool
	}{
		{"Send_ZeroImmediate", mirror.Zero(), mirror.ModeImmediate, false},
		{"Send_ShapeImmediateTrig", shape, mirror.ModeImmediate, true},
		{"Send_ShapeSmooth", shape, mirror.ModeSmooth, false},
		{"Send_ZeroSmoothTrig", mirror.Zero(), mirror.ModeSmooth, true},
	}

	for _, tc := range cases {
		check(report, tc.name, func(details map[string]interface{}) error {
			l, _, err := connected(newLink)
			if err != nil {
				return err
			}
			defer l.Disconnect(context.Background())

			start := time.Now()
			if err := l.SendCommand(context.Background(), tc.cmd, tc.mode, tc.trig); err != nil {
				return fmt.Errorf("SendCommand failed: %w", err)
			}
			elapsed := time.Since(start)
			details["latency"] = elapsed
			if tc.mode == mirror.ModeImmediate && elapsed > caps.MaxLatency {
				return fmt.Errorf("immediate send took %v, limit %v", elapsed, caps.MaxLatency)
			}
			return nil
		})
	}
}

func runTelemetryTests(newLink func() link.DeviceLink, report *ConformanceReport) {
	check(report, "Poll_Nominal", func(details map[string]interface{}) error {
		l, _, err := connected(newLink)
		if err != nil {
			return err
		}
		defer l.Disconnect(context.Background())

		tel, err := l.PollTelemetry(context.Background())
		if err != nil {
			return fmt.Errorf("PollTelemetry failed: %w", err)
		}
		if tel == nil {
			return errors.New("PollTelemetry returned nil telemetry")
		}
		details["mirrorTemperature"] = tel.MirrorTemperature
		if !tel.Connected {
			return errors.New("freshly connected device reports no connection")
		}
		if tel.Locked {
			return errors.New("freshly connected device reports locked")
		}
		return nil
	})
}

func runLifecycleTests(newLink func() link.DeviceLink, report *ConformanceReport) {
	check(report, "Lifecycle_Reconnect", func(details map[string]interface{}) error {
		l, _, err := connected(newLink)
		if err != nil {
			return err
		}
		if err := l.Disconnect(context.Background()); err != nil {
			return fmt.Errorf("Disconnect failed: %w", err)
		}
		if _, err := l.Connect(context.Background()); err != nil {
			return fmt.Errorf("reconnect failed: %w", err)
		}
		return l.Disconnect(context.Background())
	})
}

func runFailureMappingTests(newLink func() link.DeviceLink, report *ConformanceReport) {
	check(report, "Failure_SendAfterDisconnect", func(details map[string]interface{}) error {
		l, _, err := connected(newLink)
		if err != nil {
			return err
		}
		if err := l.Disconnect(context.Background()); err != nil {
			return fmt.Errorf("Disconnect failed: %w", err)
		}
		err = l.SendCommand(context.Background(), mirror.Zero(), mirror.ModeImmediate, false)
		details["error"] = err
		if err == nil {
			return errors.New("SendCommand succeeded on a released link")
		}
		if !link.IsLinkLost(err) {
			return fmt.Errorf("expected a link-lost kind, got %v", err)
		}
		return nil
	})

	check(report, "Failure_PollAfterDisconnect", func(details map[string]interface{}) error {
		l, _, err := connected(newLink)
		if err != nil {
			return err
		}
		if err := l.Disconnect(context.Background()); err != nil {
			return fmt.Errorf("Disconnect failed: %w", err)
		}
		if _, err := l.PollTelemetry(context.Background()); !link.IsLinkLost(err) {
			return fmt.Errorf("expected a link-lost kind, got %v", err)
		}
		return nil
	})
}

func (r *ConformanceReport) addResult(result ConformanceResult) {
	r.TotalTests++
	if result.Passed {
		r.PassedTests++
	} else {
		r.FailedTests++
		r.OverallPassed = false
	}
	r.Results = append(r.Results, result)
}

func printConformanceReport(t *testing.T, report *ConformanceReport) {
	t.Logf("\n%s", strings.Repeat("=", 80))
	t.Logf("DEVICE LINK CONFORMANCE REPORT")
	t.Logf("%s", strings.Repeat("=", 80))
	t.Logf("Link: %s", report.LinkName)
	t.Logf("Passed: %d/%d", report.PassedTests, report.TotalTests)
	t.Logf("Overall: %s", map[bool]string{true: "PASS", false: "FAIL"}[report.OverallPassed])
	t.Logf("Duration: %v", report.Duration)
	t.Logf("%s", strings.Repeat("-", 80))

	for _, result := range report.Results {
		status := "PASS"
		details := ""
		if !result.Passed {
			status = "FAIL"
			details = result.Error
		} else if len(result.Details) > 0 {
			var parts []string
			for k, v := range result.Details {
				parts = append(parts, fmt.Sprintf("%s=%v", k, v))
			}
			details = strings.Join(parts, ", ")
		}
		t.Logf("%-32s %-6s %-12s %s", result.TestName, status, result.Duration, details)
	}
	t.Logf("%s", strings.Repeat("=", 80))
}
