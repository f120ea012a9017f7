package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "CONNECT", CONNECT.String())
	assert.Equal(t, "DISCONNECT", DISCONNECT.String())
	assert.Equal(t, "RESERVED", Type(0).String())
	assert.Equal(t, "RESERVED", Type(15).String())
}

func TestTypeDirection(t *testing.T) {
	t.Parallel()

	for tp := CONNECT; tp <= DISCONNECT; tp++ {
		want := tp == CONNACK || tp == SUBACK || tp == UNSUBACK || tp == PINGRESP
		assert.Equal(t, want, tp.ServerToClient(), tp.String())
	}
}

func TestMinQoS(t *testing.T) {
	t.Parallel()

	assert.Equal(t, AtMostOnce, MinQoS(AtMostOnce, ExactlyOnce))
	assert.Equal(t, AtLeastOnce, MinQoS(ExactlyOnce, AtLeastOnce))
	assert.Equal(t, ExactlyOnce, MinQoS(ExactlyOnce, ExactlyOnce))
}

func TestFixedHeaderReservedTypes(t *testing.T) {
	t.Parallel()

	for _, b := range []byte{0x00, 0xF0} {
		_, _, err := DecodeFixedHeader([]byte{b, 0})
		assert.ErrorIs(t, err, ErrInvalidType)

		var de *DecodeError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, int64(0), de.Offset)
	}

	_, err := FixedHeader{Type: 15}.Append(nil)
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestFixedHeaderMandatedFlags(t *testing.T) {
	t.Parallel()

	msgs := []Message{
		&Subscribe{PacketID: 1, Subscriptions: []Subscription{{Filter: "a"}}},
		&Unsubscribe{PacketID: 1, Filters: []string{"a"}},
		&Pubrel{PacketID: 1},
	}
	for _, m := range msgs {
		b, err := Encode(m)
		require.NoError(t, err)
		assert.Equal(t, byte(0x02), b[0]&0x0F, m.Type().String())
	}

	for flags := byte(0); flags < 16; flags++ {
		_, _, err := DecodeFixedHeader([]byte{byte(SUBSCRIBE)<<4 | flags, 0})
		if flags == 0x02 {
			assert.NoError(t, err)
		} else {
			assert.ErrorIs(t, err, ErrInvalidFlags, flags)
		}
	}
}

func TestFixedHeaderZeroFlags(t *testing.T) {
	t.Parallel()

	for _, tp := range []Type{CONNECT, CONNACK, PUBACK, PUBREC, PUBCOMP, SUBACK, UNSUBACK, PINGREQ, PINGRESP, DISCONNECT} {
		_, _, err := DecodeFixedHeader([]byte{byte(tp)<<4 | 0x01, 0})
		assert.ErrorIs(t, err, ErrInvalidFlags, tp.String())

		_, _, err = DecodeFixedHeader([]byte{byte(tp) << 4, 0})
		assert.NoError(t, err, tp.String())
	}
}

func TestFixedHeaderPublishFlags(t *testing.T) {
	t.Parallel()

	fh, n, err := DecodeFixedHeader([]byte{0x3D, 0x05})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, fh.Dup())
	assert.Equal(t, ExactlyOnce, fh.QoS())
	assert.True(t, fh.Retain())
	assert.Equal(t, uint32(5), fh.RemainingLength)

	_, _, err = DecodeFixedHeader([]byte{0x36, 0}) // QoS 3
	assert.ErrorIs(t, err, ErrInvalidFlags)

	_, _, err = DecodeFixedHeader([]byte{0x38, 0}) // DUP at QoS 0
	assert.ErrorIs(t, err, ErrInvalidFlags)
}

func TestFixedHeaderEncode(t *testing.T) {
	t.Parallel()

	b, err := FixedHeader{Type: PUBLISH, Flags: 0x0B, RemainingLength: 321}.Append(nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x3B, 0xC1, 0x02}, b)

	_, err = FixedHeader{Type: PUBACK, RemainingLength: MaxRemainingLength + 1}.Append(nil)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = FixedHeader{Type: SUBSCRIBE}.Append(nil)
	assert.ErrorIs(t, err, ErrInvalidFlags)
}

func TestFixedHeaderLengthErrors(t *testing.T) {
	t.Parallel()

	_, _, err := DecodeFixedHeader([]byte{0xC0, 0xFF, 0xFF, 0xFF, 0xFF, 0x01})
	assert.ErrorIs(t, err, ErrMalformedLength)

	_, _, err = DecodeFixedHeader([]byte{0xC0, 0xFF})
	assert.ErrorIs(t, err, ErrUnexpectedEnd)

	_, _, err = DecodeFixedHeader(nil)
	assert.ErrorIs(t, err, ErrUnexpectedEnd)
}
