package mqttcore

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoanBrand/mqttcore/auth"
	"github.com/RoanBrand/mqttcore/internal/metrics"
	"github.com/RoanBrand/mqttcore/internal/websocket"
	"github.com/RoanBrand/mqttcore/packet"
)

func newTestServer(t *testing.T, mod func(s *Server)) *Server {
	t.Helper()
	log.SetLevel(log.ErrorLevel)

	s := new(Server)
	s.TCP.Address = "127.0.0.1:0"
	if mod != nil {
		mod(s)
	}

	require.NoError(t, s.setup())
	require.NoError(t, s.setupTCP())
	t.Cleanup(s.Stop)
	return s
}

func dial(t *testing.T, s *Server) net.Conn {
	t.Helper()
	c, err := net.Dial("tcp", s.tcpL.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func send(t *testing.T, c net.Conn, m packet.Message) {
	t.Helper()
	_, err := packet.Write(c, m)
	require.NoError(t, err)
}

func recv(t *testing.T, c net.Conn) packet.Message {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(time.Second * 3))
	m, _, err := packet.ReadMessage(c)
	require.NoError(t, err)
	return m
}

// expectClosed waits for the server to close c.
func expectClosed(t *testing.T, c net.Conn, within time.Duration) {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(within))
	_, _, err := packet.ReadMessage(c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.EOF) || isConnReset(err), "got %v", err)
}

func isConnReset(err error) bool {
	return strings.Contains(err.Error(), "connection reset")
}

func connect(t *testing.T, s *Server, p *packet.Connect) net.Conn {
	t.Helper()
	c := dial(t, s)
	send(t, c, p)
	require.Equal(t, &packet.Connack{ReturnCode: packet.Accepted}, recv(t, c))
	return c
}

func TestSessionOverTCP(t *testing.T) {
	s := newTestServer(t, nil)
	c := connect(t, s, &packet.Connect{ClientID: uuid.NewString(), CleanSession: true, KeepAlive: 30})

	require.Eventually(t, func() bool { return s.SessionCount() == 1 }, time.Second, time.Millisecond*10)

	send(t, c, &packet.Subscribe{PacketID: 7, Subscriptions: []packet.Subscription{
		{Filter: "a/+", QoS: packet.ExactlyOnce},
		{Filter: "b/#/c", QoS: packet.AtMostOnce},
	}})
	assert.Equal(t, &packet.Suback{PacketID: 7, ReturnCodes: []byte{2, packet.SubackFailure}}, recv(t, c))

	send(t, c, &packet.Publish{QoS: packet.ExactlyOnce, Topic: "a/b", PacketID: 9, Payload: []byte("hi")})
	assert.Equal(t, &packet.Pubrec{PacketID: 9}, recv(t, c))
	send(t, c, &packet.Pubrel{PacketID: 9})
	assert.Equal(t, &packet.Pubcomp{PacketID: 9}, recv(t, c))

	send(t, c, &packet.Unsubscribe{PacketID: 8, Filters: []string{"a/+"}})
	assert.Equal(t, &packet.Unsuback{PacketID: 8}, recv(t, c))

	send(t, c, &packet.Pingreq{})
	assert.Equal(t, &packet.Pingresp{}, recv(t, c))

	send(t, c, &packet.Disconnect{})
	expectClosed(t, c, time.Second*3)
	require.Eventually(t, func() bool { return s.SessionCount() == 0 }, time.Second, time.Millisecond*10)
	assert.Zero(t, testutil.ToFloat64(s.metrics.WillsReleased))
}

func TestPacketsSplitAcrossReads(t *testing.T) {
	s := newTestServer(t, nil)
	c := dial(t, s)

	var stream []byte
	for _, m := range []packet.Message{
		&packet.Connect{ClientID: "split", CleanSession: true},
		&packet.Pingreq{},
		&packet.Publish{QoS: packet.AtLeastOnce, Topic: "x", PacketID: 1},
	} {
		b, err := packet.Encode(m)
		require.NoError(t, err)
		stream = append(stream, b...)
	}

	for _, b := range stream {
		_, err := c.Write([]byte{b})
		require.NoError(t, err)
	}

	assert.Equal(t, &packet.Connack{}, recv(t, c))
	assert.Equal(t, &packet.Pingresp{}, recv(t, c))
	assert.Equal(t, &packet.Puback{PacketID: 1}, recv(t, c))
}

func TestUnsupportedProtocolLevel(t *testing.T) {
	s := newTestServer(t, nil)
	c := dial(t, s)

	_, err := c.Write([]byte{0x10, 0x0D, 0, 4, 'M', 'Q', 'T', 'T', 3, 0x02, 0, 0, 0, 1, 'a'})
	require.NoError(t, err)

	assert.Equal(t, &packet.Connack{ReturnCode: packet.UnacceptableProtocolVersion}, recv(t, c))
	expectClosed(t, c, time.Second*3)

	cause := packet.ErrProtocolVersion.Error()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(s.metrics.DecodeErrors.WithLabelValues(cause)) == 1
	}, time.Second, time.Millisecond*10)
}

func TestFirstPacketMustBeConnect(t *testing.T) {
	s := newTestServer(t, nil)
	c := dial(t, s)

	send(t, c, &packet.Pingreq{})
	expectClosed(t, c, time.Second*3)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(s.metrics.ProtocolErrors.WithLabelValues("packet received before CONNECT")) == 1
	}, time.Second, time.Millisecond*10)
}

func TestMalformedStreamCloses(t *testing.T) {
	s := newTestServer(t, nil)
	c := connect(t, s, &packet.Connect{ClientID: "bad", CleanSession: true})

	_, err := c.Write([]byte{0xC2, 0x00}) // PINGREQ with flags set
	require.NoError(t, err)
	expectClosed(t, c, time.Second*3)

	cause := packet.ErrInvalidFlags.Error()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(s.metrics.DecodeErrors.WithLabelValues(cause)) == 1
	}, time.Second, time.Millisecond*10)
}

func TestEmptyWillTopicRejected(t *testing.T) {
	s := newTestServer(t, func(s *Server) {
		s.Store.Dir = t.TempDir()
	})
	c := dial(t, s)

	_, err := c.Write([]byte{
		0x10, 0x12,
		0x00, 0x04, 'M', 'Q', 'T', 'T', 0x04, 0x06, 0x00, 0x00,
		0x00, 0x01, 'c',
		0x00, 0x00,
		0x00, 0x01, 'x',
	})
	require.NoError(t, err)
	expectClosed(t, c, time.Second*3)

	cause := packet.ErrMalformedPayload.Error()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(s.metrics.DecodeErrors.WithLabelValues(cause)) == 1
	}, time.Second, time.Millisecond*10)
	assert.Zero(t, s.SessionCount())
	assert.Zero(t, testutil.ToFloat64(s.metrics.WillsReleased))
}

func TestDecodeCause(t *testing.T) {
	for _, err := range decodeCauses {
		wrapped := &packet.DecodeError{Type: packet.PUBLISH, Err: err}
		assert.Equal(t, err.Error(), decodeCause(wrapped), err.Error())
	}
	assert.Equal(t, packet.ErrUnexpectedEnd.Error(), decodeCause(packet.ErrUnexpectedEnd))
	assert.Equal(t, "other", decodeCause(errors.New("boom")))
}

func TestMaxPacketSize(t *testing.T) {
	s := newTestServer(t, func(s *Server) {
		s.MaxPacketSize = 16
	})
	c := connect(t, s, &packet.Connect{ClientID: "small", CleanSession: true})

	send(t, c, &packet.Publish{Topic: "t", Payload: bytes.Repeat([]byte{'x'}, 32)})
	expectClosed(t, c, time.Second*3)
}

func TestWillJournaledOnAbruptClose(t *testing.T) {
	s := newTestServer(t, func(s *Server) {
		s.Store.Dir = t.TempDir()
	})

	will := &packet.Will{QoS: packet.AtLeastOnce, Retain: true, Topic: "status/dev1", Message: []byte("offline")}
	c := connect(t, s, &packet.Connect{ClientID: "dev1", CleanSession: true, Will: will})
	require.NoError(t, c.Close())

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(s.metrics.WillsJournaled) == 1
	}, time.Second*3, time.Millisecond*10)
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.WillsReleased))
	assert.Zero(t, s.SessionCount())

	var got []*packet.Publish
	n, err := s.DrainWills(func(connID string, released time.Time, p *packet.Publish) error {
		assert.NotEmpty(t, connID)
		assert.False(t, released.IsZero())
		got = append(got, p)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, "status/dev1", got[0].Topic)
	assert.Equal(t, packet.AtLeastOnce, got[0].QoS)
	assert.True(t, got[0].Retain)
	assert.Equal(t, []byte("offline"), got[0].Payload)
}

func TestDrainWillsWithoutJournal(t *testing.T) {
	s := newTestServer(t, nil)
	_, err := s.DrainWills(func(string, time.Time, *packet.Publish) error { return nil })
	assert.Equal(t, errNoJournal, err)
}

func TestConnectTimeout(t *testing.T) {
	s := newTestServer(t, func(s *Server) {
		s.ConnectTimeout = 1
	})
	c := dial(t, s)
	expectClosed(t, c, time.Second*3)
}

func TestKeepAliveReleasesWill(t *testing.T) {
	s := newTestServer(t, nil)
	will := &packet.Will{Topic: "gone", Message: []byte("bye")}
	c := connect(t, s, &packet.Connect{ClientID: "sleepy", KeepAlive: 1, Will: will})

	start := time.Now()
	expectClosed(t, c, time.Second*4)
	assert.GreaterOrEqual(t, time.Since(start), time.Second)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(s.metrics.WillsReleased) == 1
	}, time.Second, time.Millisecond*10)
}

func TestKeepAliveResetByTraffic(t *testing.T) {
	s := newTestServer(t, nil)
	c := connect(t, s, &packet.Connect{ClientID: "pinger", CleanSession: true, KeepAlive: 1})

	for i := 0; i < 4; i++ {
		time.Sleep(time.Millisecond * 700)
		send(t, c, &packet.Pingreq{})
		assert.Equal(t, &packet.Pingresp{}, recv(t, c))
	}
}

func TestAuthRejected(t *testing.T) {
	a := auth.NewBasic()
	a.RegisterUser("roan", "roan", "brand")
	s := newTestServer(t, func(s *Server) {
		s.Auther = a
	})

	c := dial(t, s)
	send(t, c, &packet.Connect{ClientID: "roan", Username: "roan", Password: "nope"})
	assert.Equal(t, &packet.Connack{ReturnCode: packet.NotAuthorized}, recv(t, c))
	expectClosed(t, c, time.Second*3)

	connect(t, s, &packet.Connect{ClientID: "roan", Username: "roan", Password: "brand"})
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(s *Server) {
		s.RateLimit.PerSecond = 0.001
		s.RateLimit.Burst = 1
	})

	connect(t, s, &packet.Connect{ClientID: "first", CleanSession: true})

	c := dial(t, s)
	expectClosed(t, c, time.Second*3)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(s.metrics.RateLimited) == 1
	}, time.Second, time.Millisecond*10)
}

func TestMetricsExposition(t *testing.T) {
	s := newTestServer(t, nil)
	c := connect(t, s, &packet.Connect{ClientID: "metrics", CleanSession: true})
	send(t, c, &packet.Pingreq{})
	recv(t, c)

	rec := httptest.NewRecorder()
	metrics.Handler(s.Gatherer()).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	assert.Contains(t, body, `mqttcore_packets_received_total{type="CONNECT"} 1`)
	assert.Contains(t, body, `mqttcore_packets_sent_total{type="PINGRESP"} 1`)
	assert.Contains(t, body, "mqttcore_sessions 1")
	assert.Contains(t, body, "mqttcore_connections 1")
}

func TestSessionOverWebsocket(t *testing.T) {
	s := newTestServer(t, nil)
	hs := httptest.NewServer(websocket.Handler(false, s.startSession))
	t.Cleanup(hs.Close)

	d := gws.Dialer{Subprotocols: []string{"mqtt"}}
	ws, _, err := d.Dial("ws"+strings.TrimPrefix(hs.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	b, err := packet.Encode(&packet.Connect{ClientID: "ws", CleanSession: true})
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(gws.BinaryMessage, b))

	ws.SetReadDeadline(time.Now().Add(time.Second * 3))
	mt, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, gws.BinaryMessage, mt)

	m, n, err := packet.Decode(msg)
	require.NoError(t, err)
	assert.Equal(t, len(msg), n)
	assert.Equal(t, &packet.Connack{}, m)

	require.Eventually(t, func() bool { return s.SessionCount() == 1 }, time.Second, time.Millisecond*10)
}
