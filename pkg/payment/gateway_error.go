package payment

import (
	"encoding/json"
	"errors"
	"fmt"
)

// GatewayError is a non-2xx response from the payment gateway. The status
// code classifies it: 4xx responses are terminal and must not be retried,
// everything else is transient.
type GatewayError struct {
	StatusCode int
	Code       string
	Message    string
}

func newGatewayError(statusCode int, body []byte) *GatewayError {
	ge := &GatewayError{StatusCode: statusCode}

	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		ge.Code = payload.Error.Code
		ge.Message = payload.Error.Message
	}
	if ge.Message == "" {
		ge.Message = string(body)
	}

	return ge
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment gateway error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("payment gateway error %d: %s", e.StatusCode, e.Message)
}

// IsTerminal reports whether the gateway rejected the request with a
// client-side error. Retrying a terminal failure cannot succeed.
func IsTerminal(err error) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.StatusCode >= 400 && ge.StatusCode < 500
	}
	return false
}

// IsTransient reports whether the failure is worth a bounded retry:
// a gateway 5xx or any network-level error.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.StatusCode >= 500
	}
	return !IsTerminal(err)
}
