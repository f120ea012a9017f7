package session

import (
	"errors"

	"github.com/RoanBrand/mqttcore/packet"
)

var (
	ErrWrongDirection     = errors.New("server to client packet received")
	ErrAlreadyConnected   = errors.New("second CONNECT on connection")
	ErrNotConnected       = errors.New("packet received before CONNECT")
	ErrNotAuthorized      = errors.New("not authorized")
	ErrIdentifierRejected = errors.New("client identifier rejected")
)

// ProtocolError is returned by HandleMessage for a packet that violates the
// protocol. The transport must close the connection after sending any reply.
type ProtocolError struct {
	ConnID string
	Type   packet.Type
	Err    error
}

func (e *ProtocolError) Error() string {
	return "session " + e.ConnID + ": " + e.Type.String() + ": " + e.Err.Error()
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func protocolViolation(connID string, t packet.Type, err error) error {
	return &ProtocolError{ConnID: connID, Type: t, Err: err}
}
