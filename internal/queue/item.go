package queue

import (
	"sync"
	"time"

	"github.com/RoanBrand/mqttcore/packet"
)

// Item is a released will waiting to be dispatched.
type Item struct {
	ConnID   string
	Will     packet.Will
	Released time.Time

	next, prev *Item
}

var pool = sync.Pool{}

func GetItem(connID string, w packet.Will) (i *Item) {
	if pi := pool.Get(); pi == nil {
		i = new(Item)
	} else {
		i = pi.(*Item)
	}

	i.ConnID, i.Will, i.Released = connID, w, time.Now()
	return i
}

func ReturnItem(i *Item) {
	i.ConnID, i.Will = "", packet.Will{}
	pool.Put(i)
}
