package packet

import (
	"bytes"
	"io"
)

// Message is one MQTT control packet. The set of implementations is closed:
// *Connect, *Connack, *Publish, *Puback, *Pubrec, *Pubrel, *Pubcomp,
// *Subscribe, *Suback, *Unsubscribe, *Unsuback, *Pingreq, *Pingresp and *Disconnect.
type Message interface {
	Type() Type

	// flags returns the fixed header flags nibble.
	flags() byte
	// size returns the variable header length plus the payload length.
	size() int
	appendBody(dst []byte) ([]byte, error)
	decodeBody(fh FixedHeader, r *reader) error
}

func newMessage(t Type) Message {
	switch t {
	case CONNECT:
		return &Connect{}
	case CONNACK:
		return &Connack{}
	case PUBLISH:
		return &Publish{}
	case PUBACK:
		return &Puback{}
	case PUBREC:
		return &Pubrec{}
	case PUBREL:
		return &Pubrel{}
	case PUBCOMP:
		return &Pubcomp{}
	case SUBSCRIBE:
		return &Subscribe{}
	case SUBACK:
		return &Suback{}
	case UNSUBSCRIBE:
		return &Unsubscribe{}
	case UNSUBACK:
		return &Unsuback{}
	case PINGREQ:
		return &Pingreq{}
	case PINGRESP:
		return &Pingresp{}
	case DISCONNECT:
		return &Disconnect{}
	}
	return nil
}

// Header returns the fixed header m encodes with.
func Header(m Message) FixedHeader {
	return FixedHeader{Type: m.Type(), Flags: m.flags(), RemainingLength: uint32(m.size())}
}

// Size returns the number of bytes Encode produces for m.
func Size(m Message) int {
	n := m.size()
	return 1 + RemainingLengthSize(uint32(n)) + n
}

// Append appends the encoding of m to dst: fixed header, variable header, payload.
// On error dst is returned unchanged.
func Append(dst []byte, m Message) ([]byte, error) {
	n := m.size()
	if n > MaxRemainingLength {
		return dst, ErrOutOfRange
	}

	start := len(dst)
	out, err := Header(m).Append(dst)
	if err != nil {
		return dst[:start], err
	}

	if out, err = m.appendBody(out); err != nil {
		return dst[:start], err
	}
	return out, nil
}

// Encode returns the encoding of m.
func Encode(m Message) ([]byte, error) {
	n := m.size()
	if n > MaxRemainingLength {
		return nil, ErrOutOfRange
	}
	return Append(make([]byte, 0, 1+RemainingLengthSize(uint32(n))+n), m)
}

// Write encodes m to w.
func Write(w io.Writer, m Message) (int, error) {
	b, err := Encode(m)
	if err != nil {
		return 0, err
	}
	return w.Write(b)
}

// Decode decodes one complete packet from the start of b and returns it with
// the number of bytes consumed.
func Decode(b []byte) (Message, int, error) {
	fh, n, err := DecodeFixedHeader(b)
	if err != nil {
		return nil, n, err
	}

	end := n + int(fh.RemainingLength)
	if len(b) < end {
		return nil, len(b), &DecodeError{Type: fh.Type, Offset: int64(len(b)), Err: ErrTruncated}
	}

	m, err := decodeMessage(fh, b[n:end], int64(n))
	if err != nil {
		return nil, end, err
	}
	return m, end, nil
}

// ReadMessage reads exactly one packet from r, blocking until it is complete.
// A clean io.EOF before the first byte is returned as is.
func ReadMessage(r io.Reader) (Message, int, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return nil, 0, err
	}

	t, flags, err := splitFirstByte(b[0])
	if err != nil {
		return nil, 1, &DecodeError{Type: t, Err: err}
	}

	var ld lengthDecoder
	ld.reset()
	n := 1
	for {
		if _, err = io.ReadFull(r, b[:]); err != nil {
			if err == io.EOF {
				err = ErrUnexpectedEnd
			}
			return nil, n, &DecodeError{Type: t, Offset: int64(n), Err: err}
		}
		n++

		done, err := ld.feed(b[0])
		if err != nil {
			return nil, n, &DecodeError{Type: t, Offset: int64(n - 1), Err: err}
		}
		if done {
			break
		}
	}

	fh := FixedHeader{Type: t, Flags: flags, RemainingLength: ld.value}

	// The body buffer grows with the bytes actually read, not with the claimed length.
	var body bytes.Buffer
	got, err := io.CopyN(&body, r, int64(fh.RemainingLength))
	if err != nil {
		if err == io.EOF {
			err = ErrTruncated
		}
		return nil, n + int(got), &DecodeError{Type: t, Offset: int64(n) + got, Err: err}
	}

	m, err := decodeMessage(fh, body.Bytes(), int64(n))
	return m, n + int(got), err
}

// decodeMessage decodes a body of exactly fh.RemainingLength bytes.
// base is the offset of body[0] in the caller's input.
func decodeMessage(fh FixedHeader, body []byte, base int64) (Message, error) {
	m := newMessage(fh.Type)
	if m == nil {
		return nil, &DecodeError{Type: fh.Type, Offset: base, Err: ErrInvalidType}
	}

	r := reader{b: body}
	if err := m.decodeBody(fh, &r); err != nil {
		return nil, &DecodeError{Type: fh.Type, Offset: base + int64(r.off), Err: err}
	}
	if r.len() != 0 {
		return nil, &DecodeError{Type: fh.Type, Offset: base + int64(r.off), Err: malformed("unexpected trailing bytes")}
	}
	return m, nil
}
