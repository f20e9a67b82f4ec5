package link

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mirror-control/mcc/internal/mirror"
)

// FaultRule maps driver message tokens to a mirror error kind.
type FaultRule struct {
	Kind   error
	Tokens []string
}

// FaultRules is the deterministic token table used to classify driver and
// operating system faults that carry no device status. Rules are checked in
// order; the first matching token wins. Unknown messages map to ErrDriver.
//
// How to extend:
//  1. Add tokens to the rule of the intended kind, upper case.
//  2. Put more specific tokens in earlier rules.
//  3. Cover the token in errors_test.go.
var FaultRules = []FaultRule{
	{mirror.ErrUSBInvalidBaudRate, []string{"INVALID BAUD", "UNRECOGNIZED BAUD", "BAUD RATE"}},
	{mirror.ErrUSBNotSupported, []string{"NOT SUPPORTED", "NOT IMPLEMENTED", "INAPPROPRIATE IOCTL"}},
	{mirror.ErrUSBDeviceNotFound, []string{"NO SUCH FILE", "NO SUCH DEVICE", "CANNOT FIND", "NOT FOUND"}},
	{mirror.ErrDeviceDisconnected, []string{"EOF", "BROKEN PIPE", "DEVICE NOT CONFIGURED", "CLOSED PIPE", "CONNECTION RESET"}},
	{mirror.ErrUSBInsufficientResources, []string{"RESOURCE BUSY", "TOO MANY OPEN FILES", "CANNOT ALLOCATE", "NO BUFFER SPACE"}},
	{mirror.ErrUSBInvalidHandle, []string{"BAD FILE DESCRIPTOR", "INVALID HANDLE", "FILE ALREADY CLOSED"}},
	{mirror.ErrDeviceIO, []string{"TIMEOUT", "TIMED OUT", "DEADLINE EXCEEDED", "CRC", "FRAMING", "SEQUENCE"}},
	{mirror.ErrUSBIO, []string{"INPUT/OUTPUT ERROR", "I/O ERROR", "IO ERROR"}},
	{mirror.ErrDriver, []string{"PERMISSION DENIED", "OPERATION NOT PERMITTED"}},
}

// DeviceError wraps a link fault with its normalized kind and the raw
// device status or driver error.
type DeviceError struct {
	Code     error         // Normalized mirror error kind
	Status   mirror.Status // Device status code, StatusOK when the fault came from the driver
	Original error         // Driver or transport error, may be nil
	Details  interface{}   // Opaque diagnostic payload
}

func (e *DeviceError) Error() string {
	if e.Original == nil {
		return fmt.Sprintf("%v (device status %d)", e.Code, int(e.Status))
	}
	return fmt.Sprintf("%v (link: %v)", e.Code, e.Original)
}

func (e *DeviceError) Unwrap() error {
	return e.Code
}

// FromStatus builds the error for a non-OK device status.
func FromStatus(status mirror.Status, details interface{}) error {
	kind := mirror.ErrorForStatus(status)
	if kind == nil {
		return nil
	}
	return &DeviceError{Code: kind, Status: status, Details: details}
}

// Normalize maps a driver error to a DeviceError. Errors that already carry
// a mirror error kind are returned unchanged.
func Normalize(err error, details interface{}) error {
	if err == nil {
		return nil
	}
	var de *DeviceError
	if errors.As(err, &de) {
		return err
	}
	if mirror.StatusOf(err) != 1 || errors.Is(err, mirror.ErrUnknown) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &DeviceError{Code: mirror.ErrDeviceIO, Original: err, Details: details}
	}
	return &DeviceError{Code: classifyMessage(err.Error()), Original: err, Details: details}
}

func classifyMessage(msg string) error {
	upper := strings.ToUpper(msg)
	for _, rule := range FaultRules {
		for _, token := range rule.Tokens {
			if strings.Contains(upper, token) {
				return rule.Kind
			}
		}
	}
	return mirror.ErrDriver
}

// IsLinkLost reports whether err means the device can no longer be reached.
// Such faults drive the session into its disconnected state instead of being
// reported as transmission errors.
func IsLinkLost(err error) bool {
	return errors.Is(err, mirror.ErrDeviceDisconnected) ||
		errors.Is(err, mirror.ErrUSBDeviceNotFound) ||
		errors.Is(err, mirror.ErrUSBDeviceNotOpened) ||
		errors.Is(err, mirror.ErrUSBInvalidHandle)
}
