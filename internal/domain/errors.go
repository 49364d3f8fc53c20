package domain

import "errors"

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrBadPassword        = errors.New("bad room password")
	ErrNotConnected       = errors.New("participant not connected")
	ErrMalformedPayload   = errors.New("malformed payload")
	ErrPersistenceFailure = errors.New("persistence failure")
	ErrSendFailure        = errors.New("send failure")

	ErrNotMember       = errors.New("not a member of this room")
	ErrInvalidRoomType = errors.New("invalid room type")
	ErrInvalidRoomID   = errors.New("invalid room id")
	ErrMessageEmpty    = errors.New("message content cannot be empty")
	ErrMessageTooLong  = errors.New("message content exceeds maximum length")
	ErrSelfDirect      = errors.New("cannot open a direct channel with yourself")
	ErrUnknownType     = errors.New("unknown message type")
	ErrRateLimited     = errors.New("rate limit exceeded")
)
