package packet

// Publish carries an application message in either direction.
// PacketID is only on the wire when QoS > 0.
type Publish struct {
	Dup      bool
	QoS      QoS
	Retain   bool
	Topic    string
	PacketID uint16
	Payload  []byte
}

func (*Publish) Type() Type { return PUBLISH }

func (p *Publish) flags() byte {
	return b2u8(p.Dup)<<3 | byte(p.QoS)<<1 | b2u8(p.Retain)
}

func (p *Publish) size() int {
	n := 2 + len(p.Topic) + len(p.Payload)
	if p.QoS > AtMostOnce {
		n += 2
	}
	return n
}

func (p *Publish) appendBody(dst []byte) ([]byte, error) {
	if err := checkTopicName(p.Topic); err != nil {
		return dst, malformed("topic name: " + err.Error())
	}
	if p.QoS > AtMostOnce && p.PacketID == 0 { // [MQTT-2.3.1-1]
		return dst, malformed("zero packet identifier")
	}

	dst, err := appendString(dst, p.Topic)
	if err != nil {
		return dst, err
	}
	if p.QoS > AtMostOnce {
		dst = appendUint16(dst, p.PacketID)
	}
	return append(dst, p.Payload...), nil
}

func (p *Publish) decodeBody(fh FixedHeader, r *reader) error {
	p.Dup, p.QoS, p.Retain = fh.Dup(), fh.QoS(), fh.Retain()

	var err error
	if p.Topic, err = r.readString("topic name", true); err != nil { // [MQTT-3.3.2-1, 3.3.2-2]
		return err
	}
	if p.Topic == "" { // [MQTT-4.7.3-1]
		return malformed("empty topic name")
	}

	if p.QoS > AtMostOnce {
		if p.PacketID, err = r.readPacketID(); err != nil {
			return err
		}
	}

	p.Payload = r.rest()
	return nil
}
