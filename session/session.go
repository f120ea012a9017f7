// Package session holds the broker side protocol state of MQTT connections:
// who connected, what they subscribed to and the will they left behind.
package session

import (
	"github.com/RoanBrand/mqttcore/packet"
)

// Session is the state of one connected client.
type Session struct {
	ClientID     string
	CleanSession bool
	KeepAlive    uint16
	Username     string

	// Filters groups subscribed Topic Filters by granted QoS.
	// A filter is in at most one group.
	Filters map[packet.QoS]map[string]struct{}

	Will *packet.Will
}

func newSession(c *packet.Connect) *Session {
	s := Session{
		ClientID:     c.ClientID,
		CleanSession: c.CleanSession,
		KeepAlive:    c.KeepAlive,
		Username:     c.Username,
		Filters:      make(map[packet.QoS]map[string]struct{}, 3),
	}
	if c.Will != nil {
		w := *c.Will
		w.Message = append([]byte(nil), c.Will.Message...)
		s.Will = &w
	}
	return &s
}

// Subscribed returns the granted QoS of filter.
func (s *Session) Subscribed(filter string) (packet.QoS, bool) {
	for q, filters := range s.Filters {
		if _, ok := filters[filter]; ok {
			return q, true
		}
	}
	return 0, false
}

// FilterCount returns the number of subscribed Topic Filters.
func (s *Session) FilterCount() int {
	n := 0
	for _, filters := range s.Filters {
		n += len(filters)
	}
	return n
}

// subscribe moves filter to the group of qos.
func (s *Session) subscribe(filter string, qos packet.QoS) {
	s.unsubscribe(filter)

	filters, ok := s.Filters[qos]
	if !ok {
		filters = make(map[string]struct{})
		s.Filters[qos] = filters
	}
	filters[filter] = struct{}{}
}

func (s *Session) unsubscribe(filter string) bool {
	for q, filters := range s.Filters {
		if _, ok := filters[filter]; ok {
			delete(filters, filter)
			if len(filters) == 0 {
				delete(s.Filters, q)
			}
			return true
		}
	}
	return false
}

// clone returns a deep copy that shares nothing with s.
func (s *Session) clone() Session {
	c := *s
	c.Filters = make(map[packet.QoS]map[string]struct{}, len(s.Filters))
	for q, filters := range s.Filters {
		cf := make(map[string]struct{}, len(filters))
		for f := range filters {
			cf[f] = struct{}{}
		}
		c.Filters[q] = cf
	}
	if s.Will != nil {
		w := *s.Will
		w.Message = append([]byte(nil), s.Will.Message...)
		c.Will = &w
	}
	return c
}
