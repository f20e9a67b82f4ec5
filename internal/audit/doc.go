// Package audit implements the audit logger of the Mirror Control Container.
//
// Every hardware action (open, close, apply, stock, monitoring, file) and
// every monitoring event is appended as one JSON line with the acting user,
// parameters, outcome, error code and latency. Files rotate by size and age.
package audit
