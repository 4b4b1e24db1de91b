// Package focus delivers environment re-focus signals to subscribed clients.
// The host decides what "focus" means (a window regaining visibility, a
// terminal coming back to the foreground, a timer); subscribers only see the
// signal and decide whether to revalidate.
package focus

import (
	"sync"
)

// Notifier fans one focus signal out to all subscribers. Publishing never
// blocks: a subscriber that has not drained its previous signal is skipped,
// which is fine because focus signals are not cumulative.
type Notifier struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

// NewNotifier creates a notifier with no subscribers.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[chan struct{}]struct{})}
}

// Subscribe registers a listener and returns its channel and an unsubscribe
// func. The channel is closed on unsubscribe; unsubscribing twice is safe.
func (n *Notifier) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.subs[ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, ch)
			close(ch)
			n.mu.Unlock()
		})
	}
	return ch, unsub
}

// Focus notifies all listeners (non-blocking).
func (n *Notifier) Focus() {
	n.mu.Lock()
	for ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default: // subscriber still holds an undelivered signal, skip
		}
	}
	n.mu.Unlock()
}

// Len returns the number of active subscribers.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
