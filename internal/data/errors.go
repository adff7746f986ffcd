package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrUnknownTicket is returned when no ticket with the given token exists.
	ErrUnknownTicket = errors.New("unknown ticket")
	// ErrInvalidTransition is returned when a lifecycle update targets a ticket
	// that is not in the required source state.
	ErrInvalidTransition = errors.New("invalid ticket status transition")
	// ErrDuplicateTicket is returned when an explicit token collides with an
	// existing ticket.
	ErrDuplicateTicket = errors.New("duplicate ticket token")
)
