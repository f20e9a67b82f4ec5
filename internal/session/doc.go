// Package session implements the device session of the Mirror Control
// Container: the open/close/locked/disconnected state machine, the command
// application protocol, the command stock facade, command files and the
// monitoring loop that turns telemetry edges into events.
//
// Concurrency model:
//   - one hardware lock serializes every DeviceLink transaction. Foreground
//     operations take it with TryLock and fail with ErrOperationOngoing when
//     it is held; the monitoring loop skips a tick instead.
//   - stock bookkeeping and session flags use their own locks and never wait
//     on hardware.
//   - events are delivered synchronously on the monitoring goroutine.
//     Observers must not block and must not call back into the Session.
package session
