package core

// SessionID identifies one signaling connection on the relay server.
type SessionID string
