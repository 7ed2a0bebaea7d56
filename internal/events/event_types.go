package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventStaffBound EventType = "staff_bound"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// NewEvent stamps an event with a fresh id.
func NewEvent(eventType EventType, at time.Time, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: at,
		Payload:   payload,
	}
}

// StaffBoundPayload is emitted once a staff record gains a platform identity.
type StaffBoundPayload struct {
	StaffID        string `json:"staff_id"`
	OwnerIdentity  string `json:"owner_identity"`
	OfficialOpenID string `json:"official_openid"`
	Code           string `json:"code"`
}
