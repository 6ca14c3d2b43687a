package publish

import (
	"context"
	"sync"
)

// ChannelPublisher is an in-process Publisher backed by Go channels.
// No external dependencies; used by tests and single-process setups.
type ChannelPublisher struct {
	mu     sync.Mutex
	subs   map[string][]chan string
	closed bool
}

func NewChannelPublisher() *ChannelPublisher {
	return &ChannelPublisher{subs: make(map[string][]chan string)}
}

// Subscribe returns a buffered channel receiving events for one channel
// name. Events are dropped for subscribers that fall behind.
func (c *ChannelPublisher) Subscribe(channel string) <-chan string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan string, 64)
	c.subs[channel] = append(c.subs[channel], ch)
	return ch
}

func (c *ChannelPublisher) Publish(ctx context.Context, channel, data string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	for _, ch := range c.subs[channel] {
		select {
		case ch <- data:
		default:
		}
	}
	return nil
}

func (c *ChannelPublisher) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, chans := range c.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	c.subs = make(map[string][]chan string)
	return nil
}
