package storage

import (
	"context"
	"sync"
)

// Op identifies the kind of change a subscriber is notified about.
type Op int

const (
	OpSet Op = iota
	OpDelete
)

// Event describes a change to a stored key.
type Event struct {
	Key string
	Op  Op
}

// Notifier wraps a Store and pushes change events to subscribers, so
// components react to mutations (for example a changed locale preference)
// instead of polling the store on a timer.
type Notifier struct {
	Store

	mu     sync.Mutex
	nextID int
	subs   map[int]subscription
}

type subscription struct {
	key string // empty matches every key
	ch  chan Event
}

// NewNotifier wraps s. Only mutations made through the returned Notifier
// produce events.
func NewNotifier(s Store) *Notifier {
	return &Notifier{Store: s, subs: make(map[int]subscription)}
}

// Subscribe registers interest in changes to key (or all keys when key is
// empty). The returned cancel func must be called to release the channel.
// Events are dropped rather than block a slow subscriber.
func (n *Notifier) Subscribe(key string) (<-chan Event, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	ch := make(chan Event, 8)
	n.subs[id] = subscription{key: key, ch: ch}

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if sub, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(sub.ch)
		}
	}
	return ch, cancel
}

func (n *Notifier) Set(ctx context.Context, key string, value []byte) error {
	if err := n.Store.Set(ctx, key, value); err != nil {
		return err
	}
	n.publish(Event{Key: key, Op: OpSet})
	return nil
}

func (n *Notifier) Delete(ctx context.Context, key string) error {
	if err := n.Store.Delete(ctx, key); err != nil {
		return err
	}
	n.publish(Event{Key: key, Op: OpDelete})
	return nil
}

func (n *Notifier) publish(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, sub := range n.subs {
		if sub.key != "" && sub.key != ev.Key {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}
