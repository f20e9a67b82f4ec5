// Package link defines the DeviceLink port through which the session reaches
// mirror hardware, and the normalization of link faults to mirror error kinds.
//
// Implementations:
//   - link/fake: in-memory simulated mirror with fault injection
//   - link/serial: framed protocol over the mirror's USB serial port
//
// Every implementation must pass linktest.RunConformance.
package link
