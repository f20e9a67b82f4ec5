package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/mirror-control/mcc/internal/link"
	"github.com/mirror-control/mcc/internal/mirror"
)

func TestToAPIError(t *testing.T) {
	tests := []struct {
		name           string
		inputError     error
		expectedStatus int
		expectedCode   string
	}{
		{"invalid command", fmt.Errorf("%w: value 3 out of range", mirror.ErrInvalidCommand), http.StatusBadRequest, "INVALID_COMMAND"},
		{"out of bounds", mirror.ErrOutOfBounds, http.StatusBadRequest, "OUT_OF_BOUNDS"},
		{"file format", mirror.ErrFileFormat, http.StatusBadRequest, "FILE_FORMAT"},
		{"permission", fmt.Errorf("%w: %w", mirror.ErrFileIO, mirror.ErrFilePermission), http.StatusForbidden, "FILE_IO_EACCES"},
		{"undefined value", mirror.ErrUndefinedValue, http.StatusNotFound, "UNDEFINED_VALUE"},
		{"missing file", fmt.Errorf("%w: %w", mirror.ErrFileIO, mirror.ErrFileNotFound), http.StatusNotFound, "FILE_IO_ENOENT"},
		{"not open", mirror.ErrDeviceNotOpen, http.StatusConflict, "DEVICE_NOT_OPENED"},
		{"busy", mirror.ErrOperationOngoing, http.StatusConflict, "OPERATION_ONGOING"},
		{"file exists", mirror.ErrFileExists, http.StatusConflict, "FILE_EXISTS"},
		{"locked", link.FromStatus(mirror.StatusDeviceLocked, "apply"), http.StatusLocked, "DEVICE_LOCKED"},
		{"disconnected", mirror.ErrDeviceDisconnected, http.StatusServiceUnavailable, "DEVICE_DISCONNECTED"},
		{"no data", mirror.ErrUnavailableData, http.StatusServiceUnavailable, "UNAVAILABLE_DATA"},
		{"usb gone", mirror.ErrUSBDeviceNotFound, http.StatusServiceUnavailable, "USB_DEVICE_NOT_FOUND"},
		{"defective", mirror.ErrDefectiveDevice, http.StatusInternalServerError, "DEFECTIVE_DEVICE"},
		{"unrecognized", errors.New("boom"), http.StatusInternalServerError, "UNKNOWN"},
		{"api error", NewAPIError("BAD_REQUEST", "bad path", http.StatusBadRequest, nil), http.StatusBadRequest, "BAD_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ToAPIError(tt.inputError)
			if status != tt.expectedStatus {
				t.Errorf("status = %d, want %d", status, tt.expectedStatus)
			}

			var resp Response
			if err := json.Unmarshal(body, &resp); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if resp.Result != "error" || resp.Code != tt.expectedCode {
				t.Errorf("envelope = %s/%s, want error/%s", resp.Result, resp.Code, tt.expectedCode)
			}
			if resp.Message == "" || resp.CorrelationID == "" {
				t.Errorf("envelope lacks message or correlation id: %+v", resp)
			}
		})
	}
}

func TestToAPIErrorNil(t *testing.T) {
	status, body := ToAPIError(nil)
	if status != http.StatusOK || body != nil {
		t.Errorf("ToAPIError(nil) = %d, %q", status, body)
	}
}

func TestToAPIErrorCarriesStatusCode(t *testing.T) {
	_, body := ToAPIError(mirror.ErrDeviceLocked)
	var resp struct {
		Details map[string]int `json:"details"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Details["status"] != int(mirror.StatusOf(mirror.ErrDeviceLocked)) {
		t.Errorf("details = %v", resp.Details)
	}
}

func TestAPIErrorString(t *testing.T) {
	err := NewAPIError("BAD_REQUEST", "path must be provided", http.StatusBadRequest, nil)
	if err.Error() != "BAD_REQUEST: path must be provided" {
		t.Errorf("Error() = %q", err.Error())
	}
}
