package domain

import "errors"

var (
	ErrUnauthorized         = errors.New("identity could not be established")
	ErrBusy                 = errors.New("party already in an active call")
	ErrUnknownSession       = errors.New("unknown or expired call session")
	ErrMalformedPayload     = errors.New("malformed payload")
	ErrInvalidUserID        = errors.New("invalid user id")
	ErrUserNotFound         = errors.New("user not found")
	ErrInvalidConversation  = errors.New("invalid conversation id")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("identity is not a conversation participant")
	ErrConversationInactive = errors.New("conversation is not active")
	ErrMessageNotFound      = errors.New("message not found")
	ErrNoDeviceToken        = errors.New("recipient has no device token")
)
