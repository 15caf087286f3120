// Package eventq is an unbounded, ordered queue in front of a transport
// events channel. Put never blocks, so adapters can emit while holding locks
// or from inside the consumer's own calls.
package eventq

import (
	"sync"

	"github.com/dkeye/sltalkie/internal/core"
)

type Queue struct {
	mu    sync.Mutex
	queue []core.Event
	wake  chan struct{}
	out   chan core.Event
	done  chan struct{}
	once  sync.Once
}

func New() *Queue {
	q := &Queue{
		wake: make(chan struct{}, 1),
		out:  make(chan core.Event),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

// Events is closed after Close.
func (q *Queue) Events() <-chan core.Event { return q.out }

func (q *Queue) Put(ev core.Event) {
	q.mu.Lock()
	q.queue = append(q.queue, ev)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of undelivered events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

func (q *Queue) run() {
	defer close(q.out)
	for {
		q.mu.Lock()
		if len(q.queue) == 0 {
			q.mu.Unlock()
			select {
			case <-q.wake:
				continue
			case <-q.done:
				return
			}
		}
		ev := q.queue[0]
		q.queue[0] = core.Event{}
		q.queue = q.queue[1:]
		q.mu.Unlock()

		select {
		case q.out <- ev:
		case <-q.done:
			return
		}
	}
}

// Close stops delivery; undelivered events are dropped.
func (q *Queue) Close() { q.once.Do(func() { close(q.done) }) }
