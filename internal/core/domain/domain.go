package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the persistent identity behind a phone number. The ID doubles as
// the identity string carried on live connections.
type User struct {
	ID          string
	Name        string
	AvatarURL   string
	Bio         string
	DeviceToken string
	CreatedAt   time.Time
}

func NewUser(id string) *User {
	return &User{
		ID:        id,
		CreatedAt: time.Now(),
	}
}

type ConversationStatus string

const (
	ConversationPending  ConversationStatus = "pending"
	ConversationActive   ConversationStatus = "active"
	ConversationDeclined ConversationStatus = "declined"
	ConversationBlocked  ConversationStatus = "blocked"
)

// Conversation is a two-party chat. Participants are stored as a sorted pair
// so the same two identities always resolve to the same row.
// DeliveredUpTo and ReadUpTo are the per-participant progress cursors; both
// only ever move forward.
type Conversation struct {
	ID            uuid.UUID
	Participants  [2]string
	Status        ConversationStatus
	CreatedBy     string
	LastMessageAt *time.Time
	DeliveredUpTo map[string]time.Time
	ReadUpTo      map[string]time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ParticipantPair returns the two identities in canonical (sorted) order.
func ParticipantPair(a, b string) [2]string {
	if a < b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}

// Other returns the participant that is not id.
func (c *Conversation) Other(id string) string {
	if c.Participants[0] == id {
		return c.Participants[1]
	}
	return c.Participants[0]
}

func (c *Conversation) HasParticipant(id string) bool {
	return c.Participants[0] == id || c.Participants[1] == id
}

// Message is one chat entry addressed from one identity to another.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	From           string
	To             string
	Text           string
	CreatedAt      time.Time
}

// PresenceRecord is the last known online/offline state of an identity and
// when it transitioned. Records are never deleted; offline plus a timestamp
// is still a valid answer.
type PresenceRecord struct {
	Online bool      `json:"online"`
	At     time.Time `json:"at"`
}

type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

func ParseCallKind(s string) CallKind {
	if s == string(CallVideo) {
		return CallVideo
	}
	return CallAudio
}

type CallState string

const (
	CallRinging      CallState = "ringing"
	CallAnswered     CallState = "answered"
	CallEnded        CallState = "ended"
	CallDeclined     CallState = "declined"
	CallTimeout      CallState = "timeout"
	CallCancelled    CallState = "cancelled"
	CallDisconnected CallState = "disconnected"
)

// CallSession is one in-progress call attempt between exactly two identities.
// A session exists only while it is ringing or answered; every other state is
// terminal and removes it.
type CallSession struct {
	ID        string
	Caller    string
	Callee    string
	Kind      CallKind
	State     CallState
	StartedAt time.Time
}

// Peer returns the other party of the session, or "" if id is not part of it.
func (s *CallSession) Peer(id string) string {
	switch id {
	case s.Caller:
		return s.Callee
	case s.Callee:
		return s.Caller
	}
	return ""
}

// CallStatus is the REST-facing view of a session for GET /calls/{id}/status.
type CallStatus struct {
	Active    bool       `json:"active"`
	CallID    string     `json:"callId"`
	State     CallState  `json:"state,omitempty"`
	Kind      CallKind   `json:"kind,omitempty"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
}

// Descriptor is an opaque session descriptor exchanged during call setup.
// The core never inspects the body beyond checking it is well formed.
type Descriptor struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func (d *Descriptor) Valid() bool {
	return d != nil && d.Type != "" && d.SDP != ""
}
