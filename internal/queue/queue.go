package queue

import (
	"context"
	"sync"
)

// Base message queue.
type queue struct {
	h, t *Item
	n    int
	sync.Mutex
}

// Basic is an unbounded FIFO queue with a single dispatcher.
type Basic struct {
	queue
	trig *sync.Cond
}

func (q *Basic) Init() {
	q.trig = sync.NewCond(q)
}

func (q *Basic) Reset() {
	q.Lock()
	for i := q.h; i != nil; {
		next := i.next
		i.prev, i.next = nil, nil
		ReturnItem(i)
		i = next
	}
	q.h, q.t, q.n = nil, nil, 0
	q.Unlock()
}

func (q *queue) add(i *Item) {
	if q.h == nil {
		q.h = i
		q.t = i
	} else {
		q.t.next = i
		i.prev = q.t
		q.t = i
	}
	q.n++
}

func (q *queue) pop() *Item {
	i := q.h
	if i == nil {
		return nil
	}

	q.h = i.next
	if q.h == nil {
		q.t = nil
	} else {
		q.h.prev = nil
	}
	i.next = nil // avoid memory leakage
	q.n--
	return i
}

func (q *Basic) Add(i *Item) {
	q.Lock()
	q.add(i)
	q.NotifyDispatcher()
	q.Unlock()
}

// Len returns the number of undispatched items.
func (q *Basic) Len() int {
	q.Lock()
	defer q.Unlock()
	return q.n
}

// NotifyDispatcher will signal dispatcher to check the queue.
func (q *Basic) NotifyDispatcher() {
	q.trig.Signal()
}

// Interrupt wakes the dispatcher so it notices its context is done.
func (q *Basic) Interrupt() {
	q.Lock()
	q.trig.Broadcast()
	q.Unlock()
}

// StartDispatcher will continuously dispatch queue items and remove them,
// returning items to the pool after d. Once ctx is done, it dispatches
// what is left in the queue and returns. Call Interrupt after cancelling ctx.
func (q *Basic) StartDispatcher(ctx context.Context, d func(*Item) error, wg *sync.WaitGroup) {
	defer func() {
		if wg != nil {
			wg.Done()
		}
	}()

	for {
		q.Lock()
		for q.h == nil && ctx.Err() == nil {
			q.trig.Wait()
		}

		i := q.pop()
		q.Unlock()

		if i == nil { // cancelled and drained
			return
		}

		err := d(i)
		ReturnItem(i)
		if err != nil {
			return
		}
	}
}
