// Package mirror holds the domain vocabulary of the deformable mirror control
// container: the 52-value actuator Command and its validator, application
// modes, monitoring snapshots and events, and the normalized error kinds
// shared by every layer.
//
// Error kinds mirror the device status table (codes 0..35). Link
// implementations translate device statuses with ErrorForStatus and the API
// reports them back with StatusOf.
package mirror
