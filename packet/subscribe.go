package packet

// Subscription is one Topic Filter of a SUBSCRIBE with its requested QoS.
type Subscription struct {
	Filter string
	QoS    QoS
}

// Subscribe requests one or more subscriptions.
type Subscribe struct {
	PacketID      uint16
	Subscriptions []Subscription
}

func (*Subscribe) Type() Type  { return SUBSCRIBE }
func (*Subscribe) flags() byte { return SUBSCRIBE.fixedFlags() }

func (s *Subscribe) size() int {
	n := 2
	for i := range s.Subscriptions {
		n += 2 + len(s.Subscriptions[i].Filter) + 1
	}
	return n
}

func (s *Subscribe) appendBody(dst []byte) ([]byte, error) {
	if len(s.Subscriptions) == 0 { // [MQTT-3.8.3-3]
		return dst, malformed("no topic filter")
	}
	if s.PacketID == 0 { // [MQTT-2.3.1-1]
		return dst, malformed("zero packet identifier")
	}

	dst = appendUint16(dst, s.PacketID)
	var err error
	for _, sub := range s.Subscriptions {
		if !sub.QoS.Valid() {
			return dst, malformed("invalid requested QoS")
		}
		if dst, err = appendString(dst, sub.Filter); err != nil {
			return dst, err
		}
		dst = append(dst, byte(sub.QoS))
	}
	return dst, nil
}

func (s *Subscribe) decodeBody(_ FixedHeader, r *reader) error {
	var err error
	if s.PacketID, err = r.readPacketID(); err != nil {
		return err
	}

	for r.len() > 0 {
		var sub Subscription
		if sub.Filter, err = r.readString("topic filter", false); err != nil { // [MQTT-3.8.3-1]
			return err
		}

		var q byte
		if q, err = r.readByte("requested QoS"); err != nil {
			return err
		}
		if q&0xFC != 0 || !QoS(q).Valid() { // [MQTT-3-8.3-4]
			r.off--
			return malformed("invalid requested QoS")
		}
		sub.QoS = QoS(q)

		s.Subscriptions = append(s.Subscriptions, sub)
	}

	if len(s.Subscriptions) == 0 { // [MQTT-3.8.3-3]
		return malformed("no topic filter")
	}
	return nil
}

// SubackFailure is the SUBACK return code of a rejected subscription.
const SubackFailure byte = 0x80

// Suback answers a SUBSCRIBE with one return code per requested filter,
// in order: the granted QoS level, or SubackFailure.
type Suback struct {
	PacketID    uint16
	ReturnCodes []byte
}

func (*Suback) Type() Type  { return SUBACK }
func (*Suback) flags() byte { return 0 }

func (s *Suback) size() int {
	return 2 + len(s.ReturnCodes)
}

func validSubackCode(c byte) bool {
	return c == SubackFailure || QoS(c).Valid()
}

func (s *Suback) appendBody(dst []byte) ([]byte, error) {
	if len(s.ReturnCodes) == 0 {
		return dst, malformed("no return codes")
	}
	for _, c := range s.ReturnCodes {
		if !validSubackCode(c) {
			return dst, malformed("invalid return code")
		}
	}

	dst = appendUint16(dst, s.PacketID)
	return append(dst, s.ReturnCodes...), nil
}

func (s *Suback) decodeBody(_ FixedHeader, r *reader) error {
	var err error
	if s.PacketID, err = r.readUint16("packet identifier"); err != nil {
		return err
	}
	if r.len() == 0 {
		return malformed("no return codes")
	}

	for r.len() > 0 {
		c, _ := r.readByte("return code")
		if !validSubackCode(c) { // [MQTT-3.9.3-2]
			r.off--
			return malformed("invalid return code")
		}
		s.ReturnCodes = append(s.ReturnCodes, c)
	}
	return nil
}

// Unsubscribe removes one or more subscriptions.
type Unsubscribe struct {
	PacketID uint16
	Filters  []string
}

func (*Unsubscribe) Type() Type  { return UNSUBSCRIBE }
func (*Unsubscribe) flags() byte { return UNSUBSCRIBE.fixedFlags() }

func (u *Unsubscribe) size() int {
	n := 2
	for _, f := range u.Filters {
		n += 2 + len(f)
	}
	return n
}

func (u *Unsubscribe) appendBody(dst []byte) ([]byte, error) {
	if len(u.Filters) == 0 { // [MQTT-3.10.3-2]
		return dst, malformed("no topic filter")
	}
	if u.PacketID == 0 { // [MQTT-2.3.1-1]
		return dst, malformed("zero packet identifier")
	}

	dst = appendUint16(dst, u.PacketID)
	var err error
	for _, f := range u.Filters {
		if dst, err = appendString(dst, f); err != nil {
			return dst, err
		}
	}
	return dst, nil
}

func (u *Unsubscribe) decodeBody(_ FixedHeader, r *reader) error {
	var err error
	if u.PacketID, err = r.readPacketID(); err != nil {
		return err
	}

	for r.len() > 0 {
		f, err := r.readString("topic filter", false) // [MQTT-3.10.3-1]
		if err != nil {
			return err
		}
		u.Filters = append(u.Filters, f)
	}

	if len(u.Filters) == 0 { // [MQTT-3.10.3-2]
		return malformed("no topic filter")
	}
	return nil
}
