package tuner

import (
	"sync"
	"sync/atomic"
)

// DefaultFeedSize is the buffer used when NewFeed is given a non-positive size.
const DefaultFeedSize = 8

// Feed is an Observer backed by a buffered channel, so the goroutine that
// owns the display can drain readings in its own loop. Delivery never
// blocks the worker: when the buffer is full the oldest reading is dropped
// so the latest one, including the final reset, always lands.
type Feed struct {
	ch      chan Reading
	mu      sync.Mutex // serializes the drop-then-send pair
	dropped atomic.Uint64
}

// NewFeed creates a feed holding up to size readings.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = DefaultFeedSize
	}
	return &Feed{ch: make(chan Reading, size)}
}

// Observe is the Observer; pass f.Observe to Controller.Start.
func (f *Feed) Observe(r Reading) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		select {
		case f.ch <- r:
			return
		default:
		}
		select {
		case <-f.ch:
			f.dropped.Add(1)
		default:
		}
	}
}

// Readings returns the receive side of the feed.
func (f *Feed) Readings() <-chan Reading {
	return f.ch
}

// Dropped returns how many readings were discarded because the consumer fell behind.
func (f *Feed) Dropped() uint64 {
	return f.dropped.Load()
}
