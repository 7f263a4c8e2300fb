package domain

import "time"

type ConnectionID string

// ConnectionState follows Connecting -> Authenticated -> Active -> Closed.
type ConnectionState int

const (
	StateConnecting ConnectionState = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type CloseReason int

const (
	CloseNormal CloseReason = iota
	CloseErrored
)

func (r CloseReason) String() string {
	if r == CloseErrored {
		return "errored"
	}
	return "normal"
}

// Session is the server-side record of one open connection.
type Session struct {
	ID        ConnectionID
	Principal Principal
	State     ConnectionState
	OpenedAt  time.Time
}
