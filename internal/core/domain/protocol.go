package domain

import (
	"encoding/json"
	"time"
)

const (
	TypePresence            = "presence"
	TypeMessage             = "message"
	TypeDelivered           = "delivered"
	TypeReadUpTo            = "read_up_to"
	TypeTyping              = "typing"
	TypeCallInvite          = "call:invite"
	TypeCallIncoming        = "call:incoming"
	TypeCallRinging         = "call:ringing"
	TypeCallBusy            = "call:busy"
	TypeCallAnswer          = "call:answer"
	TypeCallDeclined        = "call:declined"
	TypeCallCandidate       = "call:candidate"
	TypeCallHangup          = "call:hangup"
	TypeCallEnded           = "call:ended"
	TypeCallCancelled       = "call:cancelled"
	TypeChatRequest         = "chat_request"
	TypeChatRequestAccepted = "chat_request_accepted"
	TypeChatRequestDeclined = "chat_request_declined"
	TypeProfileUpdated      = "user_profile_updated"
	TypeError               = "error"
)

// Frame is the envelope for inbound events; the concrete payload shares the
// same top-level object, so a second unmarshal into the typed struct follows
// the type switch.
type Frame struct {
	Type string `json:"type"`
}

// ---- inbound signals ----

type MessageSignal struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

type DeliveredSignal struct {
	MessageID string `json:"messageId"`
}

type ReadSignal struct {
	ConversationID string     `json:"conversationId"`
	At             *time.Time `json:"at,omitempty"`
}

type TypingSignal struct {
	To             string `json:"to"`
	ConversationID string `json:"conversationId,omitempty"`
	Typing         bool   `json:"typing"`
}

type CallInvite struct {
	To    string      `json:"to"`
	Kind  string      `json:"kind"`
	Offer *Descriptor `json:"offer"`
}

type CallAnswerSignal struct {
	CallID string      `json:"callId"`
	Accept bool        `json:"accept"`
	Answer *Descriptor `json:"answer,omitempty"`
}

type CallCandidateSignal struct {
	CallID    string          `json:"callId"`
	Candidate json.RawMessage `json:"candidate"`
}

type CallHangupSignal struct {
	CallID string `json:"callId"`
}

// ---- outbound events ----

type PresenceEvent struct {
	Type     string    `json:"type"`
	Identity string    `json:"identity"`
	Online   bool      `json:"online"`
	At       time.Time `json:"at"`
}

type MessageEvent struct {
	Type           string    `json:"type"`
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Text           string    `json:"text"`
	At             time.Time `json:"at"`
}

type DeliveredEvent struct {
	Type           string    `json:"type"`
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	By             string    `json:"by"`
	At             time.Time `json:"at"`
}

type ReadUpToEvent struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversationId"`
	By             string    `json:"by"`
	At             time.Time `json:"at"`
}

type TypingEvent struct {
	Type           string    `json:"type"`
	From           string    `json:"from"`
	ConversationID string    `json:"conversationId,omitempty"`
	Typing         bool      `json:"typing"`
	At             time.Time `json:"at"`
}

type CallIncomingEvent struct {
	Type   string      `json:"type"`
	CallID string      `json:"callId"`
	From   string      `json:"from"`
	Offer  *Descriptor `json:"offer"`
	Kind   CallKind    `json:"kind"`
	At     time.Time   `json:"at"`
}

type CallRingingEvent struct {
	Type   string    `json:"type"`
	CallID string    `json:"callId"`
	To     string    `json:"to"`
	Kind   CallKind  `json:"kind"`
	At     time.Time `json:"at"`
}

type CallBusyEvent struct {
	Type string `json:"type"`
	To   string `json:"to"`
}

type CallAnswerEvent struct {
	Type   string      `json:"type"`
	CallID string      `json:"callId"`
	From   string      `json:"from"`
	Answer *Descriptor `json:"answer"`
	Kind   CallKind    `json:"kind"`
}

type CallDeclinedEvent struct {
	Type   string `json:"type"`
	CallID string `json:"callId"`
	From   string `json:"from"`
}

type CallCandidateEvent struct {
	Type      string          `json:"type"`
	CallID    string          `json:"callId"`
	From      string          `json:"from"`
	Candidate json.RawMessage `json:"candidate"`
}

type CallEndedEvent struct {
	Type   string    `json:"type"`
	CallID string    `json:"callId"`
	By     string    `json:"by"`
	At     time.Time `json:"at"`
	State  CallState `json:"state"`
}

type CallCancelledEvent struct {
	Type   string    `json:"type"`
	CallID string    `json:"callId"`
	By     string    `json:"by"`
	At     time.Time `json:"at"`
}

type ChatRequestEvent struct {
	Type           string             `json:"type"`
	ConversationID string             `json:"conversationId"`
	From           string             `json:"from"`
	To             string             `json:"to"`
	Status         ConversationStatus `json:"status"`
	At             time.Time          `json:"at"`
}

type ChatRequestAcceptedEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	PartnerID      string `json:"partnerId"`
}

type ChatRequestDeclinedEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	By             string `json:"by"`
}

type ProfileUpdatedEvent struct {
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Bio       string `json:"bio,omitempty"`
}

// ErrorMessage is a WS-safe error
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
