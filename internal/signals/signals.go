// Package signals is the observer bus the store notifies after changes are
// committed, undone or redone.
package signals

import (
	"fmt"
	"sync"

	"github.com/jward/genstore/internal/model"
)

// Action is what happened to the objects named in an Event.
type Action uint8

const (
	Add Action = iota
	Update
	Delete
	Rebuild
	// HomePersonChanged carries no kind; Handles holds the new home person,
	// or is empty when it was cleared.
	HomePersonChanged
)

func (a Action) String() string {
	switch a {
	case Add:
		return "add"
	case Update:
		return "update"
	case Delete:
		return "delete"
	case Rebuild:
		return "rebuild"
	case HomePersonChanged:
		return "home-person-changed"
	}
	return fmt.Sprintf("Action(%d)", uint8(a))
}

// Event is one notification.
type Event struct {
	Kind    model.Kind
	Action  Action
	Handles []model.Handle
}

// Name returns the conventional signal name, e.g. "person-add".
func (e Event) Name() string {
	if e.Action == HomePersonChanged {
		return e.Action.String()
	}
	return e.Kind.Table() + "-" + e.Action.String()
}

// Handler receives events.
type Handler func(Event)

// Bus delivers events to subscribers synchronously, in subscription order.
type Bus struct {
	mu      sync.RWMutex
	nextID  int
	subs    []subscription
	blocked int
	held    []Event
}

type subscription struct {
	id     int
	filter func(Event) bool
	fn     Handler
}

// NewBus returns a bus with no subscribers.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn for every event. The returned func unsubscribes.
func (b *Bus) Subscribe(fn Handler) (unsubscribe func()) {
	return b.subscribe(nil, fn)
}

// SubscribeKind registers fn for events about one kind.
func (b *Bus) SubscribeKind(k model.Kind, fn Handler) (unsubscribe func()) {
	return b.subscribe(func(e Event) bool {
		return e.Action != HomePersonChanged && e.Kind == k
	}, fn)
}

func (b *Bus) subscribe(filter func(Event) bool, fn Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, filter: filter, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Emit delivers e to every matching subscriber. Events with no handles are
// dropped, except HomePersonChanged and Rebuild. While the bus is blocked
// events are held and delivered by Unblock.
func (b *Bus) Emit(e Event) {
	if len(e.Handles) == 0 && e.Action != HomePersonChanged && e.Action != Rebuild {
		return
	}
	b.mu.Lock()
	if b.blocked > 0 {
		b.held = append(b.held, e)
		b.mu.Unlock()
		return
	}
	subs := append([]subscription(nil), b.subs...)
	b.mu.Unlock()

	for _, s := range subs {
		if s.filter == nil || s.filter(e) {
			s.fn(e)
		}
	}
}

// Block holds events until the matching Unblock. Calls nest.
func (b *Bus) Block() {
	b.mu.Lock()
	b.blocked++
	b.mu.Unlock()
}

// Unblock releases one Block. When the last block is released, held events
// are delivered in order unless discard is set.
func (b *Bus) Unblock(discard bool) {
	b.mu.Lock()
	if b.blocked == 0 {
		b.mu.Unlock()
		return
	}
	b.blocked--
	if b.blocked > 0 {
		b.mu.Unlock()
		return
	}
	held := b.held
	b.held = nil
	b.mu.Unlock()

	if discard {
		return
	}
	for _, e := range held {
		b.Emit(e)
	}
}
