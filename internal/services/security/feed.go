package security

import (
	"sync"

	"github.com/amerfu/pllm-gateway/internal/models"
)

// EventFeed fans a persisted SecurityEvent out to every connected
// operator console subscriber, backing the admin live security feed.
// A slow or absent subscriber never blocks resolve(): sends are
// best-effort and dropped on a full buffer, mirroring the bounded
// backpressure the async detector queue already applies.
type EventFeed struct {
	mu   sync.Mutex
	subs map[chan *models.SecurityEvent]struct{}
}

func newEventFeed() *EventFeed {
	return &EventFeed{subs: make(map[chan *models.SecurityEvent]struct{})}
}

// Subscribe registers a new listener and returns the channel it will
// receive persisted events on. The caller must call Unsubscribe when
// done to release it.
func (f *EventFeed) Subscribe() chan *models.SecurityEvent {
	ch := make(chan *models.SecurityEvent, 32)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a listener's channel.
func (f *EventFeed) Unsubscribe(ch chan *models.SecurityEvent) {
	f.mu.Lock()
	if _, ok := f.subs[ch]; ok {
		delete(f.subs, ch)
		close(ch)
	}
	f.mu.Unlock()
}

func (f *EventFeed) publish(ev *models.SecurityEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
