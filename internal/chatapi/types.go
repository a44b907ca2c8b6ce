package chatapi

import (
	"errors"
	"fmt"
)

const (
	SessionPath = "/api/chat/session"
	MessagePath = "/api/chat/message"
)

var (
	// ErrSessionCreation wraps every failure of the create-session call
	ErrSessionCreation = errors.New("session creation failed")
	// ErrMessageSend wraps every failure of the send-message call
	ErrMessageSend = errors.New("message send failed")
	// ErrEmptyResponse reports a successful send whose response text is missing or blank
	ErrEmptyResponse = errors.New("empty response payload")
	// ErrMalformedEnvelope reports a success status with a body of the wrong shape
	ErrMalformedEnvelope = errors.New("malformed response envelope")
)

// StatusError is returned when the backend answers with a non-2xx status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Body)
}

// SessionRequest is the body of the create-session call
type SessionRequest struct{}

// MessageRequest is the body of the send-message call
type MessageRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// SessionData carries the issued session identifier
type SessionData struct {
	SessionID string `json:"session_id"`
}

// MessageData carries the assistant reply
type MessageData struct {
	Response string `json:"response"`
}

// Envelope is the response wrapper shared by both endpoints. Success is
// optional: one backend variant omits it, the other sets it to true.
type Envelope[T any] struct {
	Success *bool  `json:"success,omitempty"`
	Data    *T     `json:"data"`
	Message string `json:"message,omitempty"`
}

// payload returns the data block when the envelope describes a success
func (e Envelope[T]) payload() (*T, error) {
	if e.Success != nil && !*e.Success {
		if e.Message != "" {
			return nil, fmt.Errorf("%w: backend reported failure: %s", ErrMalformedEnvelope, e.Message)
		}
		return nil, fmt.Errorf("%w: backend reported failure", ErrMalformedEnvelope)
	}
	if e.Data == nil {
		return nil, fmt.Errorf("%w: missing data", ErrMalformedEnvelope)
	}
	return e.Data, nil
}
