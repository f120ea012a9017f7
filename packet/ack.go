package packet

// Puback answers a QoS 1 PUBLISH.
type Puback struct{ PacketID uint16 }

// Pubrec is the first answer to a QoS 2 PUBLISH.
type Pubrec struct{ PacketID uint16 }

// Pubrel answers a PUBREC.
type Pubrel struct{ PacketID uint16 }

// Pubcomp answers a PUBREL, completing a QoS 2 exchange.
type Pubcomp struct{ PacketID uint16 }

// Unsuback answers an UNSUBSCRIBE.
type Unsuback struct{ PacketID uint16 }

func (*Puback) Type() Type   { return PUBACK }
func (*Pubrec) Type() Type   { return PUBREC }
func (*Pubrel) Type() Type   { return PUBREL }
func (*Pubcomp) Type() Type  { return PUBCOMP }
func (*Unsuback) Type() Type { return UNSUBACK }

func (*Puback) flags() byte   { return 0 }
func (*Pubrec) flags() byte   { return 0 }
func (*Pubrel) flags() byte   { return PUBREL.fixedFlags() }
func (*Pubcomp) flags() byte  { return 0 }
func (*Unsuback) flags() byte { return 0 }

func (*Puback) size() int   { return 2 }
func (*Pubrec) size() int   { return 2 }
func (*Pubrel) size() int   { return 2 }
func (*Pubcomp) size() int  { return 2 }
func (*Unsuback) size() int { return 2 }

func (p *Puback) appendBody(dst []byte) ([]byte, error)   { return appendUint16(dst, p.PacketID), nil }
func (p *Pubrec) appendBody(dst []byte) ([]byte, error)   { return appendUint16(dst, p.PacketID), nil }
func (p *Pubrel) appendBody(dst []byte) ([]byte, error)   { return appendUint16(dst, p.PacketID), nil }
func (p *Pubcomp) appendBody(dst []byte) ([]byte, error)  { return appendUint16(dst, p.PacketID), nil }
func (p *Unsuback) appendBody(dst []byte) ([]byte, error) { return appendUint16(dst, p.PacketID), nil }

func (p *Puback) decodeBody(_ FixedHeader, r *reader) (err error) {
	p.PacketID, err = r.readUint16("packet identifier")
	return
}

func (p *Pubrec) decodeBody(_ FixedHeader, r *reader) (err error) {
	p.PacketID, err = r.readUint16("packet identifier")
	return
}

func (p *Pubrel) decodeBody(_ FixedHeader, r *reader) (err error) {
	p.PacketID, err = r.readUint16("packet identifier")
	return
}

func (p *Pubcomp) decodeBody(_ FixedHeader, r *reader) (err error) {
	p.PacketID, err = r.readUint16("packet identifier")
	return
}

func (p *Unsuback) decodeBody(_ FixedHeader, r *reader) (err error) {
	p.PacketID, err = r.readUint16("packet identifier")
	return
}

// Pingreq is the client's keep alive probe.
type Pingreq struct{}

// Pingresp answers a PINGREQ.
type Pingresp struct{}

// Disconnect is the client's graceful goodbye. It cancels the Will.
type Disconnect struct{}

func (*Pingreq) Type() Type    { return PINGREQ }
func (*Pingresp) Type() Type   { return PINGRESP }
func (*Disconnect) Type() Type { return DISCONNECT }

func (*Pingreq) flags() byte    { return 0 }
func (*Pingresp) flags() byte   { return 0 }
func (*Disconnect) flags() byte { return 0 }

func (*Pingreq) size() int    { return 0 }
func (*Pingresp) size() int   { return 0 }
func (*Disconnect) size() int { return 0 }

func (*Pingreq) appendBody(dst []byte) ([]byte, error)    { return dst, nil }
func (*Pingresp) appendBody(dst []byte) ([]byte, error)   { return dst, nil }
func (*Disconnect) appendBody(dst []byte) ([]byte, error) { return dst, nil }

// Trailing bytes are rejected by decodeMessage.
func (*Pingreq) decodeBody(FixedHeader, *reader) error    { return nil }
func (*Pingresp) decodeBody(FixedHeader, *reader) error   { return nil }
func (*Disconnect) decodeBody(FixedHeader, *reader) error { return nil }
