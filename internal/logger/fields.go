package logger

import "log/slog"

// Field keys shared across receiver and sender log lines.
const (
	KeyPeerIP   = "peer_ip"
	KeyConnID   = "conn_id"
	KeyService  = "service"
	KeyCadence  = "cadence"
	KeyState    = "state"
	KeyBytes    = "bytes"
	KeyResponse = "response"
	KeyAttempt  = "attempt"
	KeyError    = "error"
)

// WithConn returns a logger pre-bound with the connection's peer
// address and a unique connection ID, as every receiver state
// transition should log both — the ID disambiguates concurrent
// connections from the same peer IP in the log stream.
func WithConn(base *slog.Logger, peerIP, connID string) *slog.Logger {
	return base.With(KeyPeerIP, peerIP, KeyConnID, connID)
}

// WithState returns a logger pre-bound with the connection's current
// state-machine state.
func WithState(base *slog.Logger, state string) *slog.Logger {
	return base.With(KeyState, state)
}

// WithSchedule returns a logger pre-bound with the (service, cadence)
// pair a scheduler pass or upload attempt concerns.
func WithSchedule(base *slog.Logger, service, cadence string) *slog.Logger {
	return base.With(KeyService, service, KeyCadence, cadence)
}

// Err returns a slog.Attr for an error, or a no-op attr for a nil error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
