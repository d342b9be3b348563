// Package projection implements the in-process fan-out primitive
// (spec §4.5/§5) and the projection handler that rebuilds a Circle
// from the event log and writes it into the read cache. The unbounded
// single-producer-multi-consumer channel is a small, self-contained
// idiom: each subscriber gets its own goroutine-backed unbounded queue
// so one slow consumer never blocks another, nor the publisher.
package projection

import (
	"sync"

	"github.com/loofy147/circles/internal/circle"
)

// Publisher fans out appended event batches to every live subscriber,
// in order within each batch, with at-least-once delivery.
type Publisher struct {
	mu          sync.Mutex
	subscribers []*subscription
}

type subscription struct {
	in  chan []circle.CircleEvent
	out chan circle.CircleEvent
}

func newSubscription() *subscription {
	s := &subscription{
		in:  make(chan []circle.CircleEvent, 1),
		out: make(chan circle.CircleEvent),
	}
	go s.pump()
	return s
}

// pump drains s.in into an unbounded internal queue and delivers to
// s.out one event at a time, so a publish() call never blocks on a
// slow subscriber.
func (s *subscription) pump() {
	var queue []circle.CircleEvent
	for {
		if len(queue) == 0 {
			batch, ok := <-s.in
			if !ok {
				close(s.out)
				return
			}
			queue = append(queue, batch...)
			continue
		}

		select {
		case s.out <- queue[0]:
			queue = queue[1:]
		case batch, ok := <-s.in:
			if !ok {
				for _, e := range queue {
					s.out <- e
				}
				close(s.out)
				return
			}
			queue = append(queue, batch...)
		}
	}
}

func NewPublisher() *Publisher {
	return &Publisher{}
}

// Subscribe registers a new consumer and returns the channel it
// receives events on. There is no cross-subscriber ordering guarantee.
func (p *Publisher) Subscribe() <-chan circle.CircleEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	sub := newSubscription()
	p.subscribers = append(p.subscribers, sub)
	return sub.out
}

// Publish delivers the batch to all live subscribers, in order within
// this call. It never blocks on a slow consumer.
func (p *Publisher) Publish(events []circle.CircleEvent) {
	if len(events) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, sub := range p.subscribers {
		sub.in <- events
	}
}

// Close stops all subscriptions; any buffered events are delivered
// before each subscriber's channel closes.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, sub := range p.subscribers {
		close(sub.in)
	}
	p.subscribers = nil
}
