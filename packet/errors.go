package packet

import (
	"errors"
	"strconv"
)

var (
	// Remaining Length
	ErrOutOfRange      = errors.New("remaining length out of range")
	ErrMalformedLength = errors.New("malformed remaining length")
	ErrUnexpectedEnd   = errors.New("unexpected end of input")

	// Packets
	ErrInvalidType      = errors.New("invalid control packet type")
	ErrInvalidFlags     = errors.New("invalid fixed header flags")
	ErrTruncated        = errors.New("truncated packet")
	ErrMalformedPayload = errors.New("malformed packet")
	ErrProtocolVersion  = errors.New("unsupported protocol name or level")
	ErrStringTooLong    = errors.New("string longer than 65535 bytes")
)

// DecodeError is returned for any packet that could not be decoded.
// Offset is the position of the offending byte, counted from the start of the
// input given to Decode or ReadMessage, or from the first byte fed to a Decoder.
type DecodeError struct {
	Type   Type // RESERVED if the first byte was not decoded yet
	Offset int64
	Err    error
}

func (e *DecodeError) Error() string {
	s := "packet: " + e.Err.Error()
	if e.Type.Valid() {
		s += " in " + e.Type.String()
	}
	return s + " at offset " + strconv.FormatInt(e.Offset, 10)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type detailError struct {
	kind error
	msg  string
}

func (e *detailError) Error() string {
	return e.kind.Error() + ": " + e.msg
}

func (e *detailError) Unwrap() error {
	return e.kind
}

func malformed(msg string) error {
	return &detailError{kind: ErrMalformedPayload, msg: msg}
}
