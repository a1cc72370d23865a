package events

import (
	"strings"
	"sync"
	"sync/atomic"
)

// streamBuffer is the per-subscription queue. Events beyond it are dropped
// for that subscription only.
const streamBuffer = 64

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

// Filter selects the events a subscription receives. The zero Filter
// matches everything.
type Filter struct {
	// Prefixes are event name prefixes such as "node." or "playback.".
	Prefixes []string
	// MinLevel drops events below debug|info|warn|error.
	MinLevel string
}

// ParseFilter builds a Filter from comma separated prefixes and a level.
// Prefixes without a dot match a whole family: "edge" matches "edge.*".
func ParseFilter(prefixes, minLevel string) Filter {
	var f Filter
	for _, p := range strings.Split(prefixes, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.Contains(p, ".") {
			p += "."
		}
		f.Prefixes = append(f.Prefixes, p)
	}
	if _, ok := levelRank[strings.ToLower(strings.TrimSpace(minLevel))]; ok {
		f.MinLevel = strings.ToLower(strings.TrimSpace(minLevel))
	}
	return f
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Event) bool {
	if f.MinLevel != "" && levelRank[e.Level] < levelRank[f.MinLevel] {
		return false
	}
	if len(f.Prefixes) == 0 {
		return true
	}
	for _, p := range f.Prefixes {
		if strings.HasPrefix(e.Name, p) {
			return true
		}
	}
	return false
}

// Subscription is a live feed of matching events. C is closed once the
// subscription ends, either through Unsubscribe or CloseAllSubscribers.
type Subscription struct {
	C <-chan Event

	ch      chan Event
	filter  Filter
	dropped atomic.Uint64
}

// Dropped returns how many events were discarded because the subscriber
// fell behind.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

var (
	streamMu     sync.RWMutex
	streams      = make(map[*Subscription]struct{})
	droppedTotal atomic.Uint64
)

// Subscribe registers a subscription for events matching f.
func Subscribe(f Filter) *Subscription {
	ch := make(chan Event, streamBuffer)
	s := &Subscription{C: ch, ch: ch, filter: f}
	streamMu.Lock()
	streams[s] = struct{}{}
	streamMu.Unlock()
	return s
}

// Unsubscribe ends s and closes its channel. Ending a subscription that
// has already ended is a no-op.
func Unsubscribe(s *Subscription) {
	streamMu.Lock()
	defer streamMu.Unlock()
	if _, ok := streams[s]; !ok {
		return
	}
	delete(streams, s)
	close(s.ch)
}

// CloseAllSubscribers ends every subscription. Used on shutdown.
func CloseAllSubscribers() {
	streamMu.Lock()
	defer streamMu.Unlock()
	for s := range streams {
		delete(streams, s)
		close(s.ch)
	}
}

// broadcast never blocks: a full subscription loses the event.
func broadcast(e Event) {
	streamMu.RLock()
	defer streamMu.RUnlock()
	for s := range streams {
		if !s.filter.Match(e) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
			droppedTotal.Add(1)
		}
	}
}

// SubscriberCount returns the number of live subscriptions.
func SubscriberCount() int {
	streamMu.RLock()
	defer streamMu.RUnlock()
	return len(streams)
}

// DroppedTotal returns the events discarded across all subscriptions.
func DroppedTotal() uint64 { return droppedTotal.Load() }

// RecentEvents returns up to the last n buffered events matching f, oldest
// first. n <= 0 returns every match.
func RecentEvents(n int, f Filter) []Event {
	var out []Event
	for _, e := range buffer.Snapshot() {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	if n <= 0 || n >= len(out) {
		return out
	}
	return out[len(out)-n:]
}
