package mirror

import (
	"errors"
	"fmt"
)

// Session-state errors.
var (
	ErrDeviceNotOpen      = errors.New("DEVICE_NOT_OPENED")
	ErrDeviceAlreadyOpen  = errors.New("DEVICE_ALREADY_OPENED")
	ErrDeviceLocked       = errors.New("DEVICE_LOCKED")
	ErrDeviceDisconnected = errors.New("DEVICE_DISCONNECTED")
	ErrOperationOngoing   = errors.New("OPERATION_ONGOING")
)

// Validation errors.
var (
	ErrInvalidCommand  = errors.New("INVALID_COMMAND")
	ErrNullPointer     = errors.New("NULL_POINTER")
	ErrOutOfBounds     = errors.New("OUT_OF_BOUNDS")
	ErrUndefinedValue  = errors.New("UNDEFINED_VALUE")
	ErrUnavailableData = errors.New("UNAVAILABLE_DATA")
)

// Hardware and link errors.
var (
	ErrUnknown                  = errors.New("UNKNOWN")
	ErrDefectiveDevice          = errors.New("DEFECTIVE_DEVICE")
	ErrDeviceIO                 = errors.New("DEVICE_IO")
	ErrDriver                   = errors.New("DEVICE_DRIVER")
	ErrSystem                   = errors.New("SYSTEM")
	ErrOutOfSpecifications      = errors.New("OUT_OF_SPECIFICATIONS")
	ErrUSBInvalidHandle         = errors.New("USB_INVALID_HANDLE")
	ErrUSBDeviceNotFound        = errors.New("USB_DEVICE_NOT_FOUND")
	ErrUSBDeviceNotOpened       = errors.New("USB_DEVICE_NOT_OPENED")
	ErrUSBIO                    = errors.New("USB_IO")
	ErrUSBInsufficientResources = errors.New("USB_INSUFFICIENT_RESOURCES")
	ErrUSBInvalidBaudRate       = errors.New("USB_INVALID_BAUD_RATE")
	ErrUSBNotSupported          = errors.New("USB_NOT_SUPPORTED")
)

// File errors.
var (
	ErrFileExists        = errors.New("FILE_EXISTS")
	ErrFileFormat        = errors.New("FILE_FORMAT")
	ErrFileFormatVersion = errors.New("FILE_FORMAT_VERSION")
	ErrFileIO            = errors.New("FILE_IO")

	ErrFilePermission      = errors.New("FILE_IO_EACCES")
	ErrFileWouldBlock      = errors.New("FILE_IO_EAGAIN")
	ErrFileBadDescriptor   = errors.New("FILE_IO_EBADF")
	ErrFileInvalidArgument = errors.New("FILE_IO_EINVAL")
	ErrFileTooManyOpen     = errors.New("FILE_IO_EMFILE")
	ErrFileNotFound        = errors.New("FILE_IO_ENOENT")
	ErrFileOutOfMemory     = errors.New("FILE_IO_ENOMEM")
	ErrFileNoSpace         = errors.New("FILE_IO_ENOSPC")
)

// Status is a device status code as reported by the mirror firmware.
type Status int

// Device status codes. StatusOK is the only non-error status.
const (
	StatusOK Status = iota
	StatusUnknown
	StatusDeviceNotOpened
	StatusDefectiveDevice
	StatusDeviceAlreadyOpened
	StatusDeviceIO
	StatusDeviceLocked
	StatusDeviceDisconnected
	StatusDeviceDriver
	StatusFileExists
	StatusFileFormat
	StatusFileIO
	StatusInvalidCommand
	StatusNullPointer
	StatusOutOfBounds
	StatusOperationOngoing
	StatusSystem
	StatusUnavailableData
	StatusUndefinedValue
	StatusOutOfSpecifications
	StatusFileFormatVersion
	StatusUSBInvalidHandle
	StatusUSBDeviceNotFound
	StatusUSBDeviceNotOpened
	StatusUSBIO
	StatusUSBInsufficientResources
	StatusUSBInvalidBaudRate
	StatusUSBNotSupported
	StatusFileIOEACCES
	StatusFileIOEAGAIN
	StatusFileIOEBADF
	StatusFileIOEINVAL
	StatusFileIOEMFILE
	StatusFileIOENOENT
	StatusFileIOENOMEM
	StatusFileIOENOSPC
)

// statusTable maps each status code to its error kind.
var statusTable = [...]error{
	StatusUnknown:                  ErrUnknown,
	StatusDeviceNotOpened:          ErrDeviceNotOpen,
	StatusDefectiveDevice:          ErrDefectiveDevice,
	StatusDeviceAlreadyOpened:      ErrDeviceAlreadyOpen,
	StatusDeviceIO:                 ErrDeviceIO,
	StatusDeviceLocked:             ErrDeviceLocked,
	StatusDeviceDisconnected:       ErrDeviceDisconnected,
	StatusDeviceDriver:             ErrDriver,
	StatusFileExists:               ErrFileExists,
	StatusFileFormat:               ErrFileFormat,
	StatusFileIO:                   ErrFileIO,
	StatusInvalidCommand:           ErrInvalidCommand,
	StatusNullPointer:              ErrNullPointer,
	StatusOutOfBounds:              ErrOutOfBounds,
	StatusOperationOngoing:         ErrOperationOngoing,
	StatusSystem:                   ErrSystem,
	StatusUnavailableData:          ErrUnavailableData,
	StatusUndefinedValue:           ErrUndefinedValue,
	StatusOutOfSpecifications:      ErrOutOfSpecifications,
	StatusFileFormatVersion:        ErrFileFormatVersion,
	StatusUSBInvalidHandle:         ErrUSBInvalidHandle,
	StatusUSBDeviceNotFound:        ErrUSBDeviceNotFound,
	StatusUSBDeviceNotOpened:       ErrUSBDeviceNotOpened,
	StatusUSBIO:                    ErrUSBIO,
	StatusUSBInsufficientResources: ErrUSBInsufficientResources,
	StatusUSBInvalidBaudRate:       ErrUSBInvalidBaudRate,
	StatusUSBNotSupported:          ErrUSBNotSupported,
	StatusFileIOEACCES:             ErrFilePermission,
	StatusFileIOEAGAIN:             ErrFileWouldBlock,
	StatusFileIOEBADF:              ErrFileBadDescriptor,
	StatusFileIOEINVAL:             ErrFileInvalidArgument,
	StatusFileIOEMFILE:             ErrFileTooManyOpen,
	StatusFileIOENOENT:             ErrFileNotFound,
	StatusFileIOENOMEM:             ErrFileOutOfMemory,
	StatusFileIOENOSPC:             ErrFileNoSpace,
}

// ErrorForStatus maps a device status code to its error kind.
// StatusOK maps to nil and codes outside the table map to ErrUnknown.
func ErrorForStatus(code Status) error {
	if code == StatusOK {
		return nil
	}
	if code < 0 || int(code) >= len(statusTable) {
		return fmt.Errorf("%w: status %d", ErrUnknown, int(code))
	}
	return statusTable[code]
}

// StatusOf returns the status code of the first error kind found in err's
// chain. nil maps to StatusOK and unrecognized errors to the unknown status.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	for code := len(statusTable) - 1; code > 0; code-- {
		if errors.Is(err, statusTable[code]) {
			return Status(code)
		}
	}
	return StatusUnknown
}

// IsFileIO reports whether err is a storage fault, generic or specific.
func IsFileIO(err error) bool {
	if errors.Is(err, ErrFileIO) {
		return true
	}
	for code := StatusFileIOEACCES; int(code) < len(statusTable); code++ {
		if errors.Is(err, statusTable[code]) {
			return true
		}
	}
	return false
}
