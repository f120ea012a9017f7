package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger"
	log "github.com/sirupsen/logrus"

	"github.com/RoanBrand/mqttcore/packet"
)

var willPrefix = []byte("will")

var (
	errCorruptKey = errors.New("store: corrupt will key")
	errNotPublish = errors.New("store: journaled will is not a PUBLISH")
)

// WillJournal durably records the wills of connections that closed without
// DISCONNECT, in release order, until something drains them for delivery.
//
// Key: "will" | release time (unix ns, big endian) | sequence (uint16) | connection id.
// Value: the will encoded as the PUBLISH it becomes. Its packet identifier is
// the sequence, so a QoS 1 or 2 will decodes cleanly; a forwarder assigns its own.
type WillJournal struct {
	db  *badger.DB
	seq uint32
}

func NewWillJournal(dir string) (*WillJournal, error) {
	opts := badger.DefaultOptions
	opts.Dir, opts.ValueDir = dir, dir
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &WillJournal{db: db}, nil
}

func (j *WillJournal) Close() error {
	return j.db.Close()
}

func (j *WillJournal) nextSeq() uint16 {
	for {
		if s := uint16(atomic.AddUint32(&j.seq, 1)); s != 0 {
			return s
		}
	}
}

// Put appends the will released for connID at time at.
func (j *WillJournal) Put(connID string, at time.Time, w packet.Will) error {
	seq := j.nextSeq()

	val, err := packet.Encode(WillPublish(w, seq))
	if err != nil {
		return err
	}

	key := make([]byte, 0, len(willPrefix)+10+len(connID))
	key = append(key, willPrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(at.UnixNano()))
	key = append(key, byte(seq>>8), byte(seq))
	key = append(key, connID...)

	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

// WillPublish returns the PUBLISH that delivers w.
func WillPublish(w packet.Will, packetID uint16) *packet.Publish {
	p := packet.Publish{
		QoS:     w.QoS,
		Retain:  w.Retain,
		Topic:   w.Topic,
		Payload: w.Message,
	}
	if w.QoS > packet.AtMostOnce {
		p.PacketID = packetID
	}
	return &p
}

// Len returns the number of journaled wills.
func (j *WillJournal) Len() (int, error) {
	n := 0
	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(willPrefix); it.ValidForPrefix(willPrefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Drain hands every journaled will to iter in release order and removes it.
// If iter fails, that will and the ones after it stay in the journal.
// Records that cannot be decoded are logged and removed without reaching iter.
func (j *WillJournal) Drain(iter func(connID string, released time.Time, p *packet.Publish) error) (int, error) {
	var remove [][]byte
	var iterErr error
	n := 0

	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(willPrefix); it.ValidForPrefix(willPrefix); it.Next() {
			item := it.Item()
			k := item.KeyCopy(nil)

			val, err := item.Value()
			if err != nil {
				return err
			}

			p, err := decodeWill(k, val)
			if err != nil {
				log.WithFields(log.Fields{
					"key": fmt.Sprintf("%q", k),
					"err": err,
				}).Error("Dropping corrupt will journal record")
				remove = append(remove, k)
				continue
			}

			released := time.Unix(0, int64(binary.BigEndian.Uint64(k[len(willPrefix):])))
			connID := string(k[len(willPrefix)+10:])
			if iterErr = iter(connID, released, p); iterErr != nil {
				return nil
			}
			remove = append(remove, k)
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if err = j.delete(remove); err != nil {
		return 0, err
	}
	return n, iterErr
}

func decodeWill(key, val []byte) (*packet.Publish, error) {
	if len(key) < len(willPrefix)+10 {
		return nil, errCorruptKey
	}

	m, _, err := packet.Decode(val)
	if err != nil {
		return nil, err
	}
	p, ok := m.(*packet.Publish)
	if !ok {
		return nil, errNotPublish
	}
	return p, nil
}

func (j *WillJournal) delete(keys [][]byte) error {
	txn := j.db.NewTransaction(true)

	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			if err == badger.ErrTxnTooBig {
				if err = txn.Commit(nil); err != nil {
					txn.Discard()
					return err
				}
				txn = j.db.NewTransaction(true)
				if err = txn.Delete(k); err != nil {
					txn.Discard()
					return err
				}
			} else {
				txn.Discard()
				return err
			}
		}
	}

	return txn.Commit(nil)
}
