package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mirror-control/mcc/internal/mirror"
)

// APIError represents an API-layer error with HTTP status code.
type APIError struct {
	Code       string
	Message    string
	Details    interface{}
	StatusCode int
}

// NewAPIError creates a new API error.
func NewAPIError(code string, message string, statusCode int, details interface{}) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		Details:    details,
		StatusCode: statusCode,
	}
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// statusRules maps error kinds to HTTP status codes. Kinds not listed are
// device or system faults and map to 500.
var statusRules = []struct {
	kinds  []error
	status int
}{
	{[]error{mirror.ErrInvalidCommand, mirror.ErrNullPointer, mirror.ErrOutOfBounds, mirror.ErrFileFormat, mirror.ErrFileFormatVersion}, http.StatusBadRequest},
	{[]error{mirror.ErrFilePermission}, http.StatusForbidden},
	{[]error{mirror.ErrUndefinedValue, mirror.ErrFileNotFound}, http.StatusNotFound},
	{[]error{mirror.ErrDeviceNotOpen, mirror.ErrDeviceAlreadyOpen, mirror.ErrOperationOngoing, mirror.ErrFileExists}, http.StatusConflict},
	{[]error{mirror.ErrDeviceLocked}, http.StatusLocked},
	{[]error{mirror.ErrDeviceDisconnected, mirror.ErrUnavailableData, mirror.ErrUSBDeviceNotFound, mirror.ErrUSBDeviceNotOpened}, http.StatusServiceUnavailable},
}

// StatusFor returns the HTTP status for a session error.
func StatusFor(err error) int {
	for _, rule := range statusRules {
		for _, kind := range rule.kinds {
			if errors.Is(err, kind) {
				return rule.status
			}
		}
	}
	return http.StatusInternalServerError
}

// ToAPIError converts an error to an HTTP status code and JSON body. The
// envelope code is the error kind name; the message carries the full chain.
func ToAPIError(err error) (int, []byte) {
	if err == nil {
		return http.StatusOK, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, marshalErrorResponse(apiErr.Code, apiErr.Message, apiErr.Details)
	}

	status := mirror.StatusOf(err)
	code := mirror.ErrorForStatus(status).Error()
	return StatusFor(err), marshalErrorResponse(code, err.Error(), map[string]interface{}{
		"status": int(status),
	})
}

func marshalErrorResponse(code, message string, details interface{}) []byte {
	response := Response{
		Result:        "error",
		Code:          code,
		Message:       message,
		Details:       details,
		CorrelationID: generateCorrelationID(),
	}

	jsonBytes, err := json.Marshal(response)
	if err != nil {
		fallback := map[string]interface{}{
			"result":        "error",
			"code":          "INTERNAL",
			"message":       "Failed to marshal error response",
			"correlationId": generateCorrelationID(),
		}
		jsonBytes, _ := json.Marshal(fallback)
		return jsonBytes
	}
	return jsonBytes
}
