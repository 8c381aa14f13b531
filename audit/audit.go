// Package audit keeps a bounded in-memory trail of security-relevant
// events: token issuance, redemption, poll lifecycle changes and
// administrative actions. Every event is mirrored to the structured log as
// it is recorded; the trail itself exists so operators can query recent
// history over the API without grepping log output. The buffer is a ring:
// once full, the oldest events fall off.
package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veilvote/veilvote/log"
)

// DefaultCapacity is the ring size used when the configuration does not
// say otherwise.
const DefaultCapacity = 4096

// Level classifies how alarming an event is.
type Level string

const (
	LevelInfo Level = "info"
	LevelWarn Level = "warn"
)

// Category groups events by the subsystem they come from.
type Category string

const (
	CategoryIssuance   Category = "issuance"
	CategoryRedemption Category = "redemption"
	CategoryLifecycle  Category = "lifecycle"
	CategoryAdmin      Category = "admin"
)

// Event is one recorded action and its outcome. Details carry contextual
// fields; they must never contain user identities next to pseudonym tags,
// since the trail is queryable and would otherwise become the very link
// the token protocol exists to prevent.
type Event struct {
	ID       string            `json:"id"`
	Time     time.Time         `json:"time"`
	Level    Level             `json:"level"`
	Category Category          `json:"category"`
	Action   string            `json:"action"`
	Outcome  string            `json:"outcome"`
	Details  map[string]string `json:"details,omitempty"`
}

// Trail is a concurrency-safe ring buffer of events.
type Trail struct {
	mu     sync.RWMutex
	buf    []*Event
	next   int
	filled bool
	now    func() time.Time
}

// NewTrail creates a trail holding up to capacity events.
func NewTrail(capacity int) *Trail {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Trail{
		buf: make([]*Event, capacity),
		now: time.Now,
	}
}

// Success records an event with outcome "ok" at info level.
func (t *Trail) Success(category Category, action string, details map[string]string) *Event {
	return t.record(LevelInfo, category, action, "ok", details)
}

// Failure records a rejected or failed action at warn level. The outcome
// should name the rejection class, not quote internal error text.
func (t *Trail) Failure(category Category, action, outcome string, details map[string]string) *Event {
	return t.record(LevelWarn, category, action, outcome, details)
}

func (t *Trail) record(level Level, category Category, action, outcome string, details map[string]string) *Event {
	ev := &Event{
		ID:       uuid.NewString(),
		Time:     t.nowFunc(),
		Level:    level,
		Category: category,
		Action:   action,
		Outcome:  outcome,
		Details:  details,
	}
	fields := []any{"id", ev.ID, "category", string(category), "outcome", outcome}
	for k, v := range details {
		fields = append(fields, k, v)
	}
	switch level {
	case LevelWarn:
		log.Warnw("audit: "+action, fields...)
	default:
		log.Infow("audit: "+action, fields...)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf[t.next] = ev
	t.next++
	if t.next == len(t.buf) {
		t.next = 0
		t.filled = true
	}
	return ev
}

func (t *Trail) nowFunc() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.now()
}

// Events returns up to limit events, newest first. An empty category
// matches everything; limit <= 0 means no limit beyond the ring size.
func (t *Trail) Events(category Category, limit int) []*Event {
	t.mu.RLock()
	defer t.mu.RUnlock()

	size := t.next
	if t.filled {
		size = len(t.buf)
	}
	if limit <= 0 || limit > size {
		limit = size
	}
	out := make([]*Event, 0, limit)
	for i := 1; i <= size && len(out) < limit; i++ {
		ev := t.buf[(t.next-i+len(t.buf))%len(t.buf)]
		if category != "" && ev.Category != category {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Len returns how many events the trail currently holds.
func (t *Trail) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.filled {
		return len(t.buf)
	}
	return t.next
}
