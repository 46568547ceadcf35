package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a user ID has no registration.
	ErrNotFound = errors.New("user not registered")

	// ErrUnreachable wraps dial and I/O failures towards a registry or a peer.
	ErrUnreachable = errors.New("peer unreachable")

	// ErrMalformed is returned when a message violates the line protocol.
	ErrMalformed = errors.New("malformed message")

	// ErrUnknownCommand is returned for a request line with no known prefix.
	ErrUnknownCommand = fmt.Errorf("%w: unknown command", ErrMalformed)

	// ErrRejected is returned when a receiver's acceptance policy discards an opinion.
	ErrRejected = errors.New("opinion rejected")

	// ErrInvalidRequest is returned for registrations with an empty user ID or a bad address.
	ErrInvalidRequest = errors.New("invalid request")
)
