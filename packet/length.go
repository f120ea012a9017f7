package packet

// MaxRemainingLength is the largest value four Remaining Length bytes can hold (256 MB).
const MaxRemainingLength = 268435455

const maxLengthBytes = 4

// AppendRemainingLength appends the variable length encoding of l to dst.
func AppendRemainingLength(dst []byte, l uint32) ([]byte, error) {
	if l > MaxRemainingLength {
		return dst, ErrOutOfRange
	}

	for {
		eb := byte(l % 128)
		l /= 128
		if l > 0 {
			eb |= 128
		}
		dst = append(dst, eb)
		if l == 0 {
			return dst, nil
		}
	}
}

// RemainingLengthSize returns the number of bytes the encoding of l takes.
func RemainingLengthSize(l uint32) int {
	switch {
	case l < 128:
		return 1
	case l < 16384:
		return 2
	case l < 2097152:
		return 3
	default:
		return 4
	}
}

// DecodeRemainingLength decodes a Remaining Length from the start of b,
// returning the value and the number of bytes it occupied.
func DecodeRemainingLength(b []byte) (uint32, int, error) {
	var d lengthDecoder
	d.reset()
	for i := range b {
		done, err := d.feed(b[i])
		if err != nil {
			return 0, d.n, err
		}
		if done {
			return d.value, d.n, nil
		}
	}
	return 0, d.n, ErrUnexpectedEnd
}

// lengthDecoder accumulates a Remaining Length one byte at a time,
// so it can be suspended between reads.
type lengthDecoder struct {
	value uint32
	mul   uint32
	n     int
}

func (d *lengthDecoder) reset() {
	d.value, d.mul, d.n = 0, 1, 0
}

func (d *lengthDecoder) feed(b byte) (bool, error) {
	d.n++
	d.value += uint32(b&127) * d.mul
	if b&128 == 0 {
		return true, nil
	}
	if d.n == maxLengthBytes {
		return false, ErrMalformedLength
	}
	d.mul *= 128
	return false, nil
}
