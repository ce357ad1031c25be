package ws

import "errors"

var (
	ErrInvalidHandshake   = errors.New("invalid handshake")
	ErrNegotiationAborted = errors.New("negotiation aborted")
	ErrTransport          = errors.New("transport error")
	ErrDuplicateKey       = errors.New("duplicate session key")
	ErrSendFailure        = errors.New("send failure")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrUnknownOpcode      = errors.New("unknown opcode")

	ErrMaxReconnectAttempts = errors.New("max reconnect attempts reached")
)
