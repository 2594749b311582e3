package domain

import "errors"

var (
	// ErrRateLimited is returned when an address exceeds its admission window.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrRoomCapacity is returned when the global room ceiling is reached.
	ErrRoomCapacity = errors.New("maximum number of rooms reached")
	// ErrRoomFull is returned when a room holds its maximum connected players.
	ErrRoomFull = errors.New("room is full")
	// ErrRoomNotFound is returned when no open room matches a code.
	ErrRoomNotFound = errors.New("room not found or no longer active")
	// ErrInvalidName is returned for display names outside 1-20 trimmed characters.
	ErrInvalidName = errors.New("invalid display name")
	// ErrTooManyConnections is returned when one address holds too many live channels.
	ErrTooManyConnections = errors.New("too many connections from address")
	// ErrRoomOwned is returned when a room code is already owned by another host.
	ErrRoomOwned = errors.New("room code already in use")
	// ErrCodeSpaceExhausted indicates room-code generation ran out of attempts.
	ErrCodeSpaceExhausted = errors.New("room code space exhausted")
	// ErrIdentityGeneration indicates participant-id generation ran out of attempts.
	ErrIdentityGeneration = errors.New("failed to generate unique identity")
	// ErrMalformedMessage indicates an undecodable or invalid inbound payload.
	ErrMalformedMessage = errors.New("malformed message")
)
