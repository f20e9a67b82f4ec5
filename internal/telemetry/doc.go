// Package telemetry implements the telemetry hub of the Mirror Control
// Container.
//
// The hub fans mirror events out to SSE clients and keeps the last N events,
// within a retention window, so reconnecting clients can resume with
// Last-Event-ID.
package telemetry
