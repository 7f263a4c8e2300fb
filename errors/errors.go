package errors

import "fmt"

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	ErrAuthenticationFailure = fmt.Errorf("authentication failure")
	ErrTokenMissing          = fmt.Errorf("%w: bearer token is missing", ErrAuthenticationFailure)
	ErrTokenExpired          = fmt.Errorf("%w: token expired", ErrAuthenticationFailure)

	ErrRuntimeUnavailable = fmt.Errorf("automation runtime unavailable")

	ErrTransportFailure = fmt.Errorf("transport failure")
	ErrSessionClosed    = fmt.Errorf("%w: session closed", ErrTransportFailure)
	ErrSendTimeout      = fmt.Errorf("%w: send timed out", ErrTransportFailure)

	ErrInvalidGroupID   = fmt.Errorf("invalid group id")
	ErrReservedGroup    = fmt.Errorf("reserved group")
	ErrUnknownSession   = fmt.Errorf("unknown session")
	ErrDuplicateSession = fmt.Errorf("session already registered")
	ErrInvalidPayload   = fmt.Errorf("invalid payload")
	ErrInvalidFrame     = fmt.Errorf("invalid frame")
	ErrInvalidManifest  = fmt.Errorf("invalid agent manifest")
)

// Fixed client-facing messages. They never carry internal detail.
const (
	MsgSystemMetricsFailed = "Failed to retrieve system metrics"
	MsgAgentUpdatesFailed  = "Failed to retrieve agent updates"
	MsgInvalidRequest      = "Invalid request"
)
