package packet

const (
	protocolName  = "MQTT"
	protocolLevel = 4
)

// Connect Flags
const (
	connectReserved     = 0x01
	connectCleanSession = 0x02
	connectWill         = 0x04
	connectWillQoS      = 0x18
	connectWillRetain   = 0x20
	connectPassword     = 0x40
	connectUsername     = 0x80
)

// Will is the message a client registers on CONNECT, to be published if
// its connection is lost without a DISCONNECT.
type Will struct {
	Retain  bool
	QoS     QoS
	Topic   string
	Message []byte
}

// Connect is the first packet a client sends on a new connection.
// Username and Password are present on the wire when non-empty.
type Connect struct {
	ClientID     string
	Username     string
	Password     string
	Will         *Will
	CleanSession bool
	KeepAlive    uint16 // seconds
}

func (*Connect) Type() Type  { return CONNECT }
func (*Connect) flags() byte { return 0 }

// ConnectFlags returns the connect flags byte of the variable header.
func (c *Connect) ConnectFlags() byte {
	var f byte
	if c.Username != "" {
		f |= connectUsername
	}
	if c.Password != "" {
		f |= connectPassword
	}
	if c.Will != nil {
		f |= connectWill | byte(c.Will.QoS)<<3&connectWillQoS
		if c.Will.Retain {
			f |= connectWillRetain
		}
	}
	if c.CleanSession {
		f |= connectCleanSession
	}
	return f
}

func (c *Connect) size() int {
	n := 2 + len(protocolName) + 1 + 1 + 2 // name, level, flags, keep alive
	n += 2 + len(c.ClientID)
	if c.Will != nil {
		n += 2 + len(c.Will.Topic) + 2 + len(c.Will.Message)
	}
	if c.Username != "" {
		n += 2 + len(c.Username)
	}
	if c.Password != "" {
		n += 2 + len(c.Password)
	}
	return n
}

func (c *Connect) appendBody(dst []byte) ([]byte, error) {
	if c.Password != "" && c.Username == "" { // [MQTT-3.1.2-22]
		return dst, malformed("password without username")
	}
	if c.Will != nil {
		if !c.Will.QoS.Valid() {
			return dst, malformed("invalid will QoS level")
		}
		if err := checkTopicName(c.Will.Topic); err != nil {
			return dst, malformed("will topic: " + err.Error())
		}
	}

	dst, _ = appendString(dst, protocolName)
	dst = append(dst, protocolLevel, c.ConnectFlags())
	dst = appendUint16(dst, c.KeepAlive)

	var err error
	if dst, err = appendString(dst, c.ClientID); err != nil {
		return dst, err
	}
	if c.Will != nil {
		if dst, err = appendString(dst, c.Will.Topic); err != nil {
			return dst, err
		}
		if dst, err = appendBinary(dst, c.Will.Message); err != nil {
			return dst, err
		}
	}
	if c.Username != "" {
		if dst, err = appendString(dst, c.Username); err != nil {
			return dst, err
		}
	}
	if c.Password != "" {
		if dst, err = appendString(dst, c.Password); err != nil {
			return dst, err
		}
	}
	return dst, nil
}

func (c *Connect) decodeBody(_ FixedHeader, r *reader) error {
	name, err := r.readBinary("protocol name")
	if err != nil {
		return err
	}
	if string(name) != protocolName { // [MQTT-3.1.2-1]
		return ErrProtocolVersion
	}

	level, err := r.readByte("protocol level")
	if err != nil {
		return err
	}
	if level != protocolLevel { // [MQTT-3.1.2-2]
		r.off--
		return ErrProtocolVersion
	}

	f, err := r.readByte("connect flags")
	if err != nil {
		return err
	}
	if f&connectReserved != 0 { // [MQTT-3.1.2-3]
		r.off--
		return malformed("reserved connect flag set")
	}
	if f&connectWill == 0 && f&(connectWillQoS|connectWillRetain) != 0 { // [MQTT-3.1.2-11, 2-13, 2-15]
		r.off--
		return malformed("will flags without will")
	}
	if f&connectPassword != 0 && f&connectUsername == 0 { // [MQTT-3.1.2-22]
		r.off--
		return malformed("password without username")
	}
	c.CleanSession = f&connectCleanSession != 0

	if c.KeepAlive, err = r.readUint16("keep alive"); err != nil {
		return err
	}

	// Payload
	if c.ClientID, err = r.readString("client identifier", false); err != nil { // [MQTT-3.1.3-4]
		return err
	}

	if f&connectWill != 0 {
		w := Will{
			Retain: f&connectWillRetain != 0,
			QoS:    QoS(f&connectWillQoS) >> 3,
		}
		if !w.QoS.Valid() { // [MQTT-3.1.2-14]
			return malformed("invalid will QoS level")
		}
		if w.Topic, err = r.readString("will topic", true); err != nil { // [MQTT-3.1.3-10]
			return err
		}
		if w.Topic == "" { // [MQTT-4.7.3-1]
			r.off -= 2
			return malformed("empty will topic")
		}
		msg, err := r.readBinary("will message")
		if err != nil {
			return err
		}
		w.Message = copyBytes(msg)
		c.Will = &w
	}

	if f&connectUsername != 0 {
		if c.Username, err = r.readString("user name", false); err != nil { // [MQTT-3.1.3-11]
			return err
		}
	}

	if f&connectPassword != 0 {
		pw, err := r.readBinary("password")
		if err != nil {
			return err
		}
		c.Password = string(pw)
	}

	return nil
}

// ConnectReturnCode is the CONNACK return code.
type ConnectReturnCode byte

const (
	Accepted ConnectReturnCode = iota
	UnacceptableProtocolVersion
	IdentifierRejected
	ServerUnavailable
	BadUsernameOrPassword
	NotAuthorized
)

func (rc ConnectReturnCode) String() string {
	switch rc {
	case Accepted:
		return "connection accepted"
	case UnacceptableProtocolVersion:
		return "unacceptable protocol version"
	case IdentifierRejected:
		return "identifier rejected"
	case ServerUnavailable:
		return "server unavailable"
	case BadUsernameOrPassword:
		return "bad user name or password"
	case NotAuthorized:
		return "not authorized"
	}
	return "invalid return code"
}

// Connack is the server's answer to CONNECT.
type Connack struct {
	SessionPresent bool
	ReturnCode     ConnectReturnCode
}

func (*Connack) Type() Type  { return CONNACK }
func (*Connack) flags() byte { return 0 }
func (*Connack) size() int   { return 2 }

func (c *Connack) appendBody(dst []byte) ([]byte, error) {
	if c.ReturnCode > NotAuthorized {
		return dst, malformed("invalid connect return code")
	}
	return append(dst, b2u8(c.SessionPresent), byte(c.ReturnCode)), nil
}

func (c *Connack) decodeBody(_ FixedHeader, r *reader) error {
	af, err := r.readByte("connect acknowledge flags")
	if err != nil {
		return err
	}
	if af&^0x01 != 0 {
		r.off--
		return malformed("reserved connect acknowledge flags set")
	}

	rc, err := r.readByte("connect return code")
	if err != nil {
		return err
	}
	if ConnectReturnCode(rc) > NotAuthorized {
		r.off--
		return malformed("invalid connect return code")
	}

	c.SessionPresent, c.ReturnCode = af == 1, ConnectReturnCode(rc)
	return nil
}
