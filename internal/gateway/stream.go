package gateway

import (
	"io"
)

// Stream is the response handle returned by ChatStream. The caller owns Body
// and must Close the stream.
type Stream struct {
	StatusCode int
	// Model is the model used for the final attempt.
	Model string
	// Downgraded is set when the request was reissued after a 503.
	Downgraded bool
	Body       io.ReadCloser
}

// OK reports whether the gateway accepted the request.
func (s *Stream) OK() bool {
	return s.StatusCode >= 200 && s.StatusCode <= 299
}

// Err returns nil for a successful stream. Otherwise it consumes and closes
// the body and describes the failure as an *APIError.
func (s *Stream) Err() error {
	if s.OK() {
		return nil
	}
	var body []byte
	if s.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(s.Body, maxErrorBody))
		_ = s.Body.Close()
	}
	return newAPIError(s.StatusCode, s.Model, body)
}

func (s *Stream) Close() error {
	if s.Body == nil {
		return nil
	}
	return s.Body.Close()
}
