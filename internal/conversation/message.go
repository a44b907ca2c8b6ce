package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single entry of the conversation log
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	Pending   bool      `json:"pending"` // Only ever true for the typing placeholder
}

// State is the position of the controller in the per-message cycle
type State int

const (
	StateIdle State = iota
	StateSubmitted
	StateAwaitingResponse
	StateResolved
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitted:
		return "submitted"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Snapshot is a read-only copy of the conversation handed to observers
type Snapshot struct {
	Messages []Message
	State    State
}

// Pending reports whether the snapshot holds the typing placeholder
func (s Snapshot) Pending() bool {
	for _, msg := range s.Messages {
		if msg.Pending {
			return true
		}
	}
	return false
}

// newMessageID returns a time-ordered unique identifier
func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func newMessage(role Role, text string, pending bool) Message {
	return Message{
		ID:        newMessageID(),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now(),
		Pending:   pending,
	}
}
