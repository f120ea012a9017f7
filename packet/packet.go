// Package packet encodes and decodes MQTT 3.1.1 control packets.
//
// Every packet kind is a struct implementing Message. Messages own their data:
// decoded strings and payloads are copied out of the input, so a Message may
// outlive the buffer it was read from and be handed to other goroutines.
package packet

// Type is the control packet type, held in the high nibble of the first byte.
type Type byte

// Control Packets
const (
	CONNECT Type = iota + 1
	CONNACK
	PUBLISH
	PUBACK
	PUBREC
	PUBREL
	PUBCOMP
	SUBSCRIBE
	SUBACK
	UNSUBSCRIBE
	UNSUBACK
	PINGREQ
	PINGRESP
	DISCONNECT
)

var typeNames = [...]string{
	CONNECT:     "CONNECT",
	CONNACK:     "CONNACK",
	PUBLISH:     "PUBLISH",
	PUBACK:      "PUBACK",
	PUBREC:      "PUBREC",
	PUBREL:      "PUBREL",
	PUBCOMP:     "PUBCOMP",
	SUBSCRIBE:   "SUBSCRIBE",
	SUBACK:      "SUBACK",
	UNSUBSCRIBE: "UNSUBSCRIBE",
	UNSUBACK:    "UNSUBACK",
	PINGREQ:     "PINGREQ",
	PINGRESP:    "PINGRESP",
	DISCONNECT:  "DISCONNECT",
}

// Valid reports whether t may appear on the wire. 0 and 15 are reserved.
func (t Type) Valid() bool {
	return t >= CONNECT && t <= DISCONNECT
}

func (t Type) String() string {
	if !t.Valid() {
		return "RESERVED"
	}
	return typeNames[t]
}

// ServerToClient reports whether t only ever travels from server to client.
func (t Type) ServerToClient() bool {
	switch t {
	case CONNACK, SUBACK, UNSUBACK, PINGRESP:
		return true
	}
	return false
}

// fixedFlags returns the mandated flags nibble for every type except PUBLISH,
// whose flags are derived from the message. [MQTT-2.2.2-1]
func (t Type) fixedFlags() byte {
	switch t {
	case PUBREL, SUBSCRIBE, UNSUBSCRIBE:
		return 0x02
	}
	return 0
}

// QoS is the quality of service level of a PUBLISH, will or subscription.
type QoS byte

const (
	AtMostOnce QoS = iota
	AtLeastOnce
	ExactlyOnce
)

// Valid reports whether q is one of the three defined levels.
func (q QoS) Valid() bool {
	return q <= ExactlyOnce
}

func (q QoS) String() string {
	switch q {
	case AtMostOnce:
		return "QoS0"
	case AtLeastOnce:
		return "QoS1"
	case ExactlyOnce:
		return "QoS2"
	}
	return "invalid QoS"
}

// MinQoS returns the lower of a and b by numeric level.
func MinQoS(a, b QoS) QoS {
	if a < b {
		return a
	}
	return b
}

func b2u8(b bool) byte {
	if b {
		return 1
	}
	return 0
}
