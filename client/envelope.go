package client

import (
	"encoding/json"
	"fmt"
	"net/http"

	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Code    string          `json:"code,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// DecodeData unmarshals the data member into out. A nil out or an empty data
// member is not an error.
func (e *Envelope) DecodeData(out any) error {
	if out == nil || len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("[Envelope DecodeData] %w", err)
	}
	return nil
}

// APIError is a response the server rejected with success=false.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api error: %d %s", e.Status, e.Message)
}

// Unwrap maps the server's error code back onto the shared sentinels, so
// errors.Is(err, apperrors.ErrSameAsOld) works on the client side.
func (e *APIError) Unwrap() error {
	if sentinel, ok := apperrors.FromCode(e.Code); ok {
		return sentinel
	}
	return nil
}

func decodeEnvelope(status int, body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &APIError{Status: status, Message: http.StatusText(status)}
	}
	return &env, nil
}
