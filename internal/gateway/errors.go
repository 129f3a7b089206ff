package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// TransportError is a network-level failure (connection, timeout) while
// talking to the gateway. It is never retried.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway %s request failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError is a non-success HTTP status returned by the gateway.
type APIError struct {
	StatusCode int
	Model      string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = truncateForLog(e.Body, 512)
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("gateway API error: status %d: %s", e.StatusCode, msg)
}

// ServiceUnavailable reports whether the gateway answered 503.
func (e *APIError) ServiceUnavailable() bool {
	return e.StatusCode == http.StatusServiceUnavailable
}

func newAPIError(statusCode int, model string, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode, Model: model, Body: string(body)}
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		apiErr.Message = errResp.Error.Message
	}
	return apiErr
}
