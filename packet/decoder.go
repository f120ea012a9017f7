package packet

// Decoder parser states
const (
	controlAndFlags = iota
	length
	body
)

// Decoder decodes a stream of packets fed to it in chunks of any size, such as
// the results of successive conn.Read calls. Partial packets are accumulated
// until complete. The zero value is ready to use.
//
// After a decode error the Decoder keeps returning that error: a corrupt
// stream cannot be resynchronised and the connection must be closed.
type Decoder struct {
	// MaxRemainingLength limits the size of accepted packets.
	// Zero means MaxRemainingLength of the protocol.
	MaxRemainingLength uint32

	header FixedHeader
	length lengthDecoder
	buf    []byte

	start   int64 // offset of the current packet's first byte
	offset  int64 // bytes consumed so far
	rxState uint8
	err     error
}

// Offset returns the number of bytes fed to d so far.
func (d *Decoder) Offset() int64 {
	return d.offset
}

// Pending reports whether a packet is partially decoded.
func (d *Decoder) Pending() bool {
	return d.rxState != controlAndFlags
}

// Feed consumes rx, calling f with every packet it completes, in order.
// Feed stops at the first error, whether from decoding or from f.
func (d *Decoder) Feed(rx []byte, f func(Message) error) error {
	if d.err != nil {
		return d.err
	}

	for i := 0; i < len(rx); {
		switch d.rxState {
		case controlAndFlags:
			t, flags, err := splitFirstByte(rx[i])
			if err != nil {
				return d.fail(&DecodeError{Type: t, Offset: d.offset, Err: err})
			}

			d.header = FixedHeader{Type: t, Flags: flags}
			d.start = d.offset
			d.length.reset()
			d.rxState = length
			i++
			d.offset++
		case length:
			done, err := d.length.feed(rx[i])
			if err != nil {
				return d.fail(&DecodeError{Type: d.header.Type, Offset: d.offset, Err: err})
			}
			i++
			d.offset++

			if !done {
				continue
			}

			d.header.RemainingLength = d.length.value
			if max := d.MaxRemainingLength; max != 0 && d.header.RemainingLength > max {
				return d.fail(&DecodeError{Type: d.header.Type, Offset: d.offset - 1, Err: ErrOutOfRange})
			}

			d.buf = d.buf[:0]
			if d.header.RemainingLength == 0 {
				if err := d.emit(f); err != nil {
					return err
				}
			} else {
				d.rxState = body
			}
		case body:
			toRead := int(d.header.RemainingLength) - len(d.buf)
			if avail := len(rx) - i; avail < toRead {
				toRead = avail
			}

			d.buf = append(d.buf, rx[i:i+toRead]...)
			i += toRead
			d.offset += int64(toRead)

			if len(d.buf) == int(d.header.RemainingLength) {
				if err := d.emit(f); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func (d *Decoder) emit(f func(Message) error) error {
	d.rxState = controlAndFlags
	base := d.start + int64(d.header.Size())

	m, err := decodeMessage(d.header, d.buf, base)
	if err != nil {
		return d.fail(err)
	}
	return f(m)
}

func (d *Decoder) fail(err error) error {
	d.err = err
	return err
}
