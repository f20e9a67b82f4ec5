package mirror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorForStatus(t *testing.T) {
	tests := []struct {
		code Status
		want error
	}{
		{0, nil},
		{2, ErrDeviceNotOpen},
		{6, ErrDeviceLocked},
		{15, ErrOperationOngoing},
		{20, ErrFileFormatVersion},
		{24, ErrUSBIO},
		{35, ErrFileNoSpace},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.code), func(t *testing.T) {
			got := ErrorForStatus(tt.code)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("Expected nil, got %v", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}

	if err := ErrorForStatus(99); !errors.Is(err, ErrUnknown) {
		t.Errorf("Expected ErrUnknown for out-of-table status, got %v", err)
	}
}

func TestStatusConstantsMatchWireCodes(t *testing.T) {
	tests := []struct {
		name string
		got  Status
		want int
	}{
		{"unknown", StatusUnknown, 1},
		{"already opened", StatusDeviceAlreadyOpened, 4},
		{"locked", StatusDeviceLocked, 6},
		{"disconnected", StatusDeviceDisconnected, 7},
		{"usb not opened", StatusUSBDeviceNotOpened, 23},
		{"no space", StatusFileIOENOSPC, 35},
	}
	for _, tt := range tests {
		if int(tt.got) != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
	if int(StatusFileIOENOSPC) != len(statusTable)-1 {
		t.Errorf("status table has %d entries, last code is %d", len(statusTable), StatusFileIOENOSPC)
	}
}

func TestStatusOfRoundTrip(t *testing.T) {
	for code := StatusUnknown; code < Status(len(statusTable)); code++ {
		wrapped := fmt.Errorf("link: %w", ErrorForStatus(code))
		if got := StatusOf(wrapped); got != code {
			t.Errorf("StatusOf(%v) = %d, want %d", wrapped, got, code)
		}
	}
	if StatusOf(nil) != StatusOK {
		t.Error("nil error should map to StatusOK")
	}
	if StatusOf(errors.New("boom")) != StatusUnknown {
		t.Error("unrecognized errors should map to the unknown status")
	}
}

func TestIsFileIO(t *testing.T) {
	if !IsFileIO(fmt.Errorf("%w: %w", ErrFileIO, ErrFileNoSpace)) {
		t.Error("Expected ENOSPC to be a file IO error")
	}
	if !IsFileIO(ErrFilePermission) {
		t.Error("Expected EACCES to be a file IO error")
	}
	if IsFileIO(ErrFileFormat) {
		t.Error("Format errors are not storage faults")
	}
}
