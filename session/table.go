package session

import (
	"hash/fnv"
	"sync"

	"github.com/RoanBrand/mqttcore/packet"
)

const numShards = 64

// Auther authenticates connecting clients and authorizes their subscriptions.
// Implementations must return a non-nil error if auth fails.
type Auther interface {
	// AuthUser is called for every CONNECT. username and password may be empty.
	AuthUser(clientID, username, password string) error

	// AuthSubscription is called for every well formed Topic Filter of a SUBSCRIBE.
	AuthSubscription(clientID, filter string) error
}

// WillHandler receives the will of a session that ended without DISCONNECT.
type WillHandler func(connID string, w packet.Will)

type shard struct {
	sync.Mutex
	sessions map[string]*Session // k: connection id
}

// Table maps connection ids to Sessions and drives their state from the
// packets received on each connection. It is safe for concurrent use; packets
// of a single connection must be handed over in the order they arrived.
type Table struct {
	shards [numShards]shard

	maxQoS packet.QoS
	auther Auther
	onWill WillHandler
}

// Option configures a Table.
type Option func(*Table)

// WithMaxQoS caps the QoS granted to subscriptions.
func WithMaxQoS(q packet.QoS) Option {
	return func(t *Table) {
		if q.Valid() {
			t.maxQoS = q
		}
	}
}

// WithAuther enables authentication and subscription authorization.
func WithAuther(a Auther) Option {
	return func(t *Table) {
		t.auther = a
	}
}

// WithWillHandler sets the receiver of released wills. It is called outside of
// any table lock and may block, but it holds up the caller while it does.
func WithWillHandler(h WillHandler) Option {
	return func(t *Table) {
		t.onWill = h
	}
}

// NewTable returns an empty Table. Subscriptions are granted up to QoS 2 by default.
func NewTable(opts ...Option) *Table {
	t := Table{maxQoS: packet.ExactlyOnce}
	for i := range t.shards {
		t.shards[i].sessions = make(map[string]*Session)
	}
	for _, o := range opts {
		o(&t)
	}
	return &t
}

func (t *Table) shard(connID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(connID))
	return &t.shards[h.Sum32()%numShards]
}

// HandleMessage applies m, received on connection connID, to the connection's
// session. It returns the packet to send back, if any. A non-nil error is a
// *ProtocolError and the connection must be closed after sending the reply.
func (t *Table) HandleMessage(connID string, m packet.Message) (packet.Message, error) {
	tp := m.Type()
	if tp.ServerToClient() {
		return nil, protocolViolation(connID, tp, ErrWrongDirection)
	}

	switch p := m.(type) {
	case *packet.Connect:
		return t.connect(connID, p)
	case *packet.Subscribe:
		return t.subscribe(connID, p)
	case *packet.Disconnect:
		if t.remove(connID) == nil {
			return nil, protocolViolation(connID, tp, ErrNotConnected)
		}
		return nil, nil
	}

	sh := t.shard(connID)
	sh.Lock()
	s, ok := sh.sessions[connID]
	if !ok {
		sh.Unlock()
		return nil, protocolViolation(connID, tp, ErrNotConnected)
	}

	var reply packet.Message
	switch p := m.(type) {
	case *packet.Unsubscribe:
		for _, f := range p.Filters {
			s.unsubscribe(f)
		}
		reply = &packet.Unsuback{PacketID: p.PacketID}
	case *packet.Publish:
		switch p.QoS {
		case packet.AtLeastOnce:
			reply = &packet.Puback{PacketID: p.PacketID}
		case packet.ExactlyOnce:
			reply = &packet.Pubrec{PacketID: p.PacketID}
		}
	case *packet.Pubrec:
		reply = &packet.Pubrel{PacketID: p.PacketID}
	case *packet.Pubrel:
		reply = &packet.Pubcomp{PacketID: p.PacketID}
	case *packet.Pingreq:
		reply = &packet.Pingresp{}
	case *packet.Puback, *packet.Pubcomp:
	}
	sh.Unlock()

	return reply, nil
}

func (t *Table) connect(connID string, c *packet.Connect) (packet.Message, error) {
	sh := t.shard(connID)

	sh.Lock()
	if old, ok := sh.sessions[connID]; ok { // [MQTT-3.1.0-2]
		delete(sh.sessions, connID)
		sh.Unlock()
		t.releaseWill(connID, old)
		return nil, protocolViolation(connID, packet.CONNECT, ErrAlreadyConnected)
	}
	sh.Unlock()

	if t.auther != nil {
		if err := t.auther.AuthUser(c.ClientID, c.Username, c.Password); err != nil {
			return &packet.Connack{ReturnCode: packet.NotAuthorized}, protocolViolation(connID, packet.CONNECT, ErrNotAuthorized)
		}
	}

	if c.ClientID == "" && !c.CleanSession { // [MQTT-3.1.3-8]
		return &packet.Connack{ReturnCode: packet.IdentifierRejected}, protocolViolation(connID, packet.CONNECT, ErrIdentifierRejected)
	}

	sh.Lock()
	if _, ok := sh.sessions[connID]; ok {
		sh.Unlock()
		return nil, protocolViolation(connID, packet.CONNECT, ErrAlreadyConnected)
	}
	sh.sessions[connID] = newSession(c)
	sh.Unlock()

	return &packet.Connack{ReturnCode: packet.Accepted}, nil
}

func (t *Table) subscribe(connID string, sub *packet.Subscribe) (packet.Message, error) {
	sh := t.shard(connID)

	sh.Lock()
	s, ok := sh.sessions[connID]
	if !ok {
		sh.Unlock()
		return nil, protocolViolation(connID, packet.SUBSCRIBE, ErrNotConnected)
	}
	clientID := s.ClientID
	sh.Unlock()

	codes := make([]byte, len(sub.Subscriptions))
	for i, r := range sub.Subscriptions {
		if packet.CheckTopicFilter(r.Filter) != nil {
			codes[i] = packet.SubackFailure
			continue
		}
		if t.auther != nil && t.auther.AuthSubscription(clientID, r.Filter) != nil {
			codes[i] = packet.SubackFailure
			continue
		}
		codes[i] = byte(packet.MinQoS(r.QoS, t.maxQoS))
	}

	sh.Lock()
	if s, ok = sh.sessions[connID]; !ok {
		sh.Unlock()
		return nil, protocolViolation(connID, packet.SUBSCRIBE, ErrNotConnected)
	}
	for i, r := range sub.Subscriptions {
		if codes[i] != packet.SubackFailure {
			s.subscribe(r.Filter, packet.QoS(codes[i]))
		}
	}
	sh.Unlock()

	return &packet.Suback{PacketID: sub.PacketID, ReturnCodes: codes}, nil
}

func (t *Table) remove(connID string) *Session {
	sh := t.shard(connID)
	sh.Lock()
	s, ok := sh.sessions[connID]
	if ok {
		delete(sh.sessions, connID)
	}
	sh.Unlock()
	return s
}

func (t *Table) releaseWill(connID string, s *Session) {
	if s.Will != nil && t.onWill != nil {
		t.onWill(connID, *s.Will)
	}
}

// OnConnectionClosed ends the session of connID, if any, handing its will to
// the will handler. It reports whether a session was ended, so it is safe to
// call on every connection exit and any number of times.
func (t *Table) OnConnectionClosed(connID string) bool {
	s := t.remove(connID)
	if s == nil {
		return false
	}
	t.releaseWill(connID, s)
	return true
}

// Session returns a copy of the session of connID.
func (t *Table) Session(connID string) (Session, bool) {
	sh := t.shard(connID)
	sh.Lock()
	defer sh.Unlock()

	s, ok := sh.sessions[connID]
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

// Len returns the number of connected sessions.
func (t *Table) Len() int {
	n := 0
	for i := range t.shards {
		sh := &t.shards[i]
		sh.Lock()
		n += len(sh.sessions)
		sh.Unlock()
	}
	return n
}
