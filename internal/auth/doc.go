// Package auth authenticates API callers with bearer tokens and enforces
// the read, control and telemetry scopes of the Mirror Control Container.
//
// Viewers may read device state and subscribe to telemetry; operators may
// also open and close the device, apply commands and manage the stock.
package auth
