package mqttcore

import (
	"bufio"
	"errors"
	"io"
	"net"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/RoanBrand/mqttcore/packet"
	"github.com/RoanBrand/mqttcore/session"
)

var errGotDisconnect = errors.New("got DISCONNECT")

// conn is one network connection. Only its reader goroutine touches it.
type conn struct {
	server *Server
	conn   net.Conn
	id     string // session table key: remote address
	log    *log.Entry

	clientId  string
	connected bool
	keepAlive time.Duration

	dec packet.Decoder
	tx  *bufio.Writer
	buf []byte // encode scratch
}

func (s *Server) startSession(nc net.Conn) {
	if s.limiter != nil && !s.limiter.Allow(nc.RemoteAddr()) {
		s.metrics.RateLimited.Inc()
		log.WithFields(log.Fields{
			"conn": nc.RemoteAddr().String(),
		}).Debug("Connection rate limited")
		nc.Close()
		return
	}

	if !s.trackConn(nc) {
		nc.Close()
		return
	}
	defer s.untrackConn(nc)

	s.metrics.Connections.Inc()
	defer s.metrics.Connections.Dec()

	c := conn{
		server: s,
		conn:   nc,
		id:     nc.RemoteAddr().String(),
		tx:     bufio.NewWriter(nc),
		buf:    make([]byte, 0, 64),
	}
	c.log = log.WithFields(log.Fields{"conn": c.id})
	c.dec.MaxRemainingLength = s.MaxPacketSize

	nc.SetReadDeadline(time.Now().Add(time.Second * time.Duration(s.ConnectTimeout))) // CONNECT packet timeout

	defer func() {
		if s.sessions.OnConnectionClosed(c.id) {
			c.log.WithField("ClientId", c.clientId).Debug("Session ended without DISCONNECT")
		}
		nc.Close()
	}()

	rx := make([]byte, 1024)
	for {
		n, err := nc.Read(rx)
		if n > 0 {
			if ferr := c.dec.Feed(rx[:n], c.handle); ferr != nil {
				c.handleError(ferr)
				c.tx.Flush()
				return
			}
			if ferr := c.tx.Flush(); ferr != nil {
				c.writeError(ferr)
				return
			}
			c.updateTimeout()
		}

		if err != nil {
			c.readError(err)
			return
		}
	}
}

// handle applies one decoded packet to the session table and queues the reply.
func (c *conn) handle(m packet.Message) error {
	s := c.server
	s.metrics.PacketsIn.WithLabelValues(m.Type().String()).Inc()

	reply, err := s.sessions.HandleMessage(c.id, m)
	if reply != nil {
		if werr := c.writePacket(reply); werr != nil {
			return werr
		}
	}
	if err != nil {
		return err
	}

	switch p := m.(type) {
	case *packet.Connect:
		c.connected, c.clientId = true, p.ClientID
		c.keepAlive = time.Duration(p.KeepAlive) * time.Second * 3 / 2 // [MQTT-3.1.2-24]
		if c.keepAlive == 0 {
			c.conn.SetReadDeadline(time.Time{})
		}

		c.log = c.log.WithField("ClientId", c.clientId)
		c.log.WithFields(log.Fields{
			"clean_session": p.CleanSession,
			"keep_alive":    p.KeepAlive,
			"will":          p.Will != nil,
		}).Info("New session")
	case *packet.Disconnect:
		c.log.Debug("DISCONNECT received")
		return errGotDisconnect
	}
	return nil
}

func (c *conn) writePacket(m packet.Message) error {
	var err error
	if c.buf, err = packet.Append(c.buf[:0], m); err != nil {
		return err
	}
	if _, err = c.tx.Write(c.buf); err != nil {
		return err
	}

	c.server.metrics.PacketsOut.WithLabelValues(m.Type().String()).Inc()
	return nil
}

func (c *conn) updateTimeout() {
	if c.connected && c.keepAlive > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.keepAlive))
	}
}

func (c *conn) handleError(err error) {
	if err == errGotDisconnect {
		return
	}

	s := c.server
	var de *packet.DecodeError
	var pe *session.ProtocolError

	switch {
	case errors.As(err, &de):
		s.metrics.DecodeErrors.WithLabelValues(decodeCause(de.Err)).Inc()

		if errors.Is(err, packet.ErrProtocolVersion) && !c.connected { // [MQTT-3.1.2-2]
			if werr := c.writePacket(&packet.Connack{ReturnCode: packet.UnacceptableProtocolVersion}); werr != nil {
				c.writeError(werr)
			}
		}

		c.log.WithFields(log.Fields{
			"type":   de.Type.String(),
			"offset": de.Offset,
			"err":    de.Err,
		}).Debug("Malformed packet. Dropping connection")
	case errors.As(err, &pe):
		s.metrics.ProtocolErrors.WithLabelValues(pe.Err.Error()).Inc()

		c.log.WithFields(log.Fields{
			"type": pe.Type.String(),
			"err":  pe.Err,
		}).Debug("Protocol violation. Dropping connection")
	default:
		c.writeError(err)
	}
}

var decodeCauses = []error{
	packet.ErrOutOfRange,
	packet.ErrMalformedLength,
	packet.ErrUnexpectedEnd,
	packet.ErrInvalidType,
	packet.ErrInvalidFlags,
	packet.ErrTruncated,
	packet.ErrMalformedPayload,
	packet.ErrProtocolVersion,
	packet.ErrStringTooLong,
}

// decodeCause returns a low cardinality label for a decode failure.
func decodeCause(err error) string {
	for _, c := range decodeCauses {
		if errors.Is(err, c) {
			return c.Error()
		}
	}
	return "other"
}

func (c *conn) readError(err error) {
	if err == io.EOF || errors.Is(err, net.ErrClosed) {
		return
	}

	if errors.Is(err, os.ErrDeadlineExceeded) {
		if c.connected {
			c.log.Debug("KeepAlive timeout. Dropping connection")
		} else {
			c.log.Debug("Timeout waiting for CONNECT. Dropping connection")
		}
		return
	}

	c.log.WithField("err", err).Error("RX error")
}

func (c *conn) writeError(err error) {
	if errors.Is(err, net.ErrClosed) {
		return
	}
	c.log.WithField("err", err).Error("TX error")
}
