package packet

// FixedHeader is the outermost framing of every control packet.
type FixedHeader struct {
	Type            Type
	Flags           byte // low nibble of the first byte
	RemainingLength uint32
}

// PUBLISH flag bits
const (
	flagRetain = 0x01
	flagQoS    = 0x06
	flagDup    = 0x08
)

// Dup reports the PUBLISH DUP flag.
func (fh FixedHeader) Dup() bool { return fh.Flags&flagDup != 0 }

// QoS returns the PUBLISH QoS level in the flags.
func (fh FixedHeader) QoS() QoS { return QoS(fh.Flags&flagQoS) >> 1 }

// Retain reports the PUBLISH RETAIN flag.
func (fh FixedHeader) Retain() bool { return fh.Flags&flagRetain != 0 }

// Size returns the encoded size of the header.
func (fh FixedHeader) Size() int {
	return 1 + RemainingLengthSize(fh.RemainingLength)
}

// Append appends the encoded header to dst.
func (fh FixedHeader) Append(dst []byte) ([]byte, error) {
	if err := checkFlags(fh.Type, fh.Flags); err != nil {
		return dst, err
	}
	if fh.RemainingLength > MaxRemainingLength {
		return dst, ErrOutOfRange
	}

	dst = append(dst, byte(fh.Type)<<4|fh.Flags)
	return AppendRemainingLength(dst, fh.RemainingLength)
}

// DecodeFixedHeader decodes the fixed header at the start of b and returns it
// with the number of bytes it occupied. The Remaining Length is not checked
// against the bytes that follow.
func DecodeFixedHeader(b []byte) (FixedHeader, int, error) {
	if len(b) == 0 {
		return FixedHeader{}, 0, &DecodeError{Err: ErrUnexpectedEnd}
	}

	t, flags, err := splitFirstByte(b[0])
	if err != nil {
		return FixedHeader{}, 0, &DecodeError{Type: t, Err: err}
	}

	l, n, err := DecodeRemainingLength(b[1:])
	if err != nil {
		return FixedHeader{}, 1 + n, &DecodeError{Type: t, Offset: int64(n), Err: err}
	}

	return FixedHeader{Type: t, Flags: flags, RemainingLength: l}, 1 + n, nil
}

func splitFirstByte(b byte) (Type, byte, error) {
	t, flags := Type(b>>4), b&0x0F
	if !t.Valid() {
		return 0, flags, ErrInvalidType
	}
	if err := checkFlags(t, flags); err != nil {
		return t, flags, err
	}
	return t, flags, nil
}

// [MQTT-2.2.2-2]
func checkFlags(t Type, flags byte) error {
	if !t.Valid() {
		return ErrInvalidType
	}
	if flags > 0x0F {
		return ErrInvalidFlags
	}

	if t != PUBLISH {
		if flags != t.fixedFlags() {
			return ErrInvalidFlags
		}
		return nil
	}

	qos := QoS(flags&flagQoS) >> 1
	if !qos.Valid() { // [MQTT-3.3.1-4]
		return ErrInvalidFlags
	}
	if flags&flagDup != 0 && qos == AtMostOnce { // [MQTT-3.3.1-2]
		return ErrInvalidFlags
	}
	return nil
}
