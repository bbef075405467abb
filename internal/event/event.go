package event

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeLoginSucceeded   Type = "auth.login.succeeded"
	TypeLoginFailed      Type = "auth.login.failed"
	TypeAccountLocked    Type = "auth.account.locked"
	TypeLogout           Type = "auth.logout"
	TypeTokenRefreshed   Type = "auth.token.refreshed"
	TypeUserRegistered   Type = "auth.user.registered"
	TypePasswordChanged  Type = "auth.password.changed"
	TypeProfileUpdated   Type = "user.profile.updated"
	TypeUserSuspended    Type = "user.suspended"
	TypeUserActivated    Type = "user.activated"
	TypeUserDeleted      Type = "user.deleted"
	TypeRoleAssigned     Type = "user.role.assigned"
	TypeRoleRevoked      Type = "user.role.revoked"
	TypeBootstrapCreated Type = "user.bootstrap.created"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Outcome   string         `json:"outcome"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp string         `json:"timestamp"`
	ActorID   string         `json:"actor_id,omitempty"`   // Who triggered the event
	SubjectID string         `json:"subject_id,omitempty"` // Account the event is about
	IP        string         `json:"ip,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
}

func New(t Type, outcome string, actorID string, subjectID string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Outcome:   outcome,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		ActorID:   actorID,
		SubjectID: subjectID,
	}
}

func (e Event) WithOrigin(ip string, userAgent string) Event {
	e.IP = ip
	e.UserAgent = userAgent
	return e
}

func (e Event) With(key string, value any) Event {
	payload := make(map[string]any, len(e.Payload)+1)
	for k, v := range e.Payload {
		payload[k] = v
	}
	payload[key] = value
	e.Payload = payload
	return e
}

type Publisher interface {
	Publish(e Event)
}

type Bus interface {
	Publisher
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}

// Discard drops every event; handy where no bus is wired.
type Discard struct{}

func (Discard) Publish(Event) {}
