package packet

import (
	"errors"
	"math"
	"strings"
	"unicode/utf8"
)

var (
	errInvalidUTF        = errors.New("invalid UTF8")
	errContainsWildCards = errors.New("contains wildcard characters")
	errEmptyTopic        = errors.New("empty")
)

// [MQTT-1.5.3-1] [MQTT-1.5.3-3]
func checkUTF8(str []byte, checkWildCards bool) error {
	for i := 0; i < len(str); {
		if str[i] == 0 { // [MQTT-1.5.3-2]
			return errInvalidUTF
		}

		if checkWildCards && (str[i] == '+' || str[i] == '#') { // [MQTT-3.3.2-2]
			return errContainsWildCards
		}

		if str[i]&0x80 == 0 {
			i++
			continue
		}

		// Surrogate halves decode as RuneError too.
		r, size := utf8.DecodeRune(str[i:])
		if r == utf8.RuneError && size == 1 {
			return errInvalidUTF
		}
		i += size
	}
	return nil
}

// CheckTopicFilter reports whether f is a well formed Topic Filter.
// [MQTT-4.7.1-2] [MQTT-4.7.1-3] [MQTT-4.7.3-1]
func CheckTopicFilter(f string) error {
	if len(f) == 0 {
		return malformed("empty topic filter")
	}
	if len(f) > math.MaxUint16 {
		return ErrStringTooLong
	}
	if err := checkUTF8([]byte(f), false); err != nil {
		return malformed("topic filter: " + err.Error())
	}

	levels := strings.Split(f, "/")
	for i, l := range levels {
		switch {
		case l == "#":
			if i != len(levels)-1 {
				return malformed("multi-level wildcard not last in topic filter")
			}
		case l == "+":
		case strings.ContainsAny(l, "+#"):
			return malformed("wildcard must occupy an entire topic level")
		}
	}
	return nil
}

// checkTopicName applies the rules a decoder enforces on a Topic Name.
func checkTopicName(t string) error {
	if t == "" { // [MQTT-4.7.3-1]
		return errEmptyTopic
	}
	return checkUTF8([]byte(t), true)
}

func appendUint16(dst []byte, v uint16) []byte {
	return append(dst, byte(v>>8), byte(v))
}

func appendString(dst []byte, s string) ([]byte, error) {
	if len(s) > math.MaxUint16 {
		return dst, ErrStringTooLong
	}
	dst = appendUint16(dst, uint16(len(s)))
	return append(dst, s...), nil
}

func appendBinary(dst []byte, b []byte) ([]byte, error) {
	if len(b) > math.MaxUint16 {
		return dst, ErrStringTooLong
	}
	dst = appendUint16(dst, uint16(len(b)))
	return append(dst, b...), nil
}

// reader walks the body of one packet. Its offset locates decode failures.
type reader struct {
	b   []byte
	off int
}

func (r *reader) len() int {
	return len(r.b) - r.off
}

func (r *reader) readByte(what string) (byte, error) {
	if r.len() < 1 {
		return 0, malformed("no " + what)
	}
	b := r.b[r.off]
	r.off++
	return b, nil
}

func (r *reader) readUint16(what string) (uint16, error) {
	if r.len() < 2 {
		return 0, malformed("no " + what)
	}
	v := uint16(r.b[r.off])<<8 | uint16(r.b[r.off+1])
	r.off += 2
	return v, nil
}

// readBinary returns a view into the body; callers copy what they keep.
func (r *reader) readBinary(what string) ([]byte, error) {
	l, err := r.readUint16(what + " length")
	if err != nil {
		return nil, err
	}
	if r.len() < int(l) {
		return nil, malformed(what + " too short")
	}
	b := r.b[r.off : r.off+int(l)]
	r.off += int(l)
	return b, nil
}

func (r *reader) readString(what string, checkWildCards bool) (string, error) {
	b, err := r.readBinary(what)
	if err != nil {
		return "", err
	}
	if err = checkUTF8(b, checkWildCards); err != nil {
		r.off -= len(b)
		return "", malformed(what + ": " + err.Error())
	}
	return string(b), nil
}

func (r *reader) readPacketID() (uint16, error) {
	id, err := r.readUint16("packet identifier")
	if err != nil {
		return 0, err
	}
	if id == 0 { // [MQTT-2.3.1-1]
		r.off -= 2
		return 0, malformed("zero packet identifier")
	}
	return id, nil
}

func (r *reader) rest() []byte {
	if r.len() == 0 {
		return nil
	}
	b := make([]byte, r.len())
	copy(b, r.b[r.off:])
	r.off = len(r.b)
	return b
}

func copyBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}
