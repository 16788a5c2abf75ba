// Package undo holds the transaction log: the low-level records a logical
// transaction is made of and the bounded history used for undo and redo.
package undo

import (
	"sync"
	"time"

	"github.com/jward/genstore/internal/model"
)

// DefaultCapacity is the number of transactions kept for undo.
const DefaultCapacity = 1000

// Op is the effect of a record on its row.
type Op uint8

const (
	OpAdd Op = iota
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return "unknown"
}

// Record is one row change. Old is nil when the row did not exist before the
// change; New is nil when the change deletes the row.
type Record struct {
	Table string
	// Kind is the object kind for primary-table records.
	Kind model.Kind
	// RefMap marks reference-map records, which carry no Kind.
	RefMap bool
	Key    []byte
	Old    []byte
	New    []byte
}

// Op classifies the record.
func (r Record) Op() Op {
	switch {
	case r.Old == nil:
		return OpAdd
	case r.New == nil:
		return OpDelete
	}
	return OpUpdate
}

// Handle returns the object handle of a primary record.
func (r Record) Handle() model.Handle {
	return model.Handle(r.Key)
}

// Transaction is a named, ordered list of records.
type Transaction struct {
	Msg     string
	Batch   bool
	Started time.Time
	records []Record
}

// NewTransaction starts an empty transaction.
func NewTransaction(msg string, batch bool) *Transaction {
	return &Transaction{Msg: msg, Batch: batch, Started: time.Now()}
}

// Add appends a record.
func (t *Transaction) Add(r Record) {
	t.records = append(t.records, r)
}

// Records returns the records in the order they were added.
func (t *Transaction) Records() []Record {
	return t.records
}

// Len returns the number of records.
func (t *Transaction) Len() int {
	return len(t.records)
}

// Reset drops every record.
func (t *Transaction) Reset() {
	t.records = nil
}

// ApplyFunc replays a transaction. Undo calls it with forward=false.
type ApplyFunc func(t *Transaction, forward bool) error

// History is a bounded list of committed transactions with an undo cursor.
// Once full, pushing a transaction evicts the oldest one.
type History struct {
	mu        sync.Mutex
	capacity  int
	entries   []*Transaction
	cursor    int
	disabled  bool
	nextID    int
	listeners map[int]func(canUndo, canRedo bool)
}

// NewHistory returns an empty history. A capacity below one uses
// DefaultCapacity.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &History{capacity: capacity, listeners: make(map[int]func(bool, bool))}
}

// Capacity returns the maximum number of transactions kept.
func (h *History) Capacity() int {
	return h.capacity
}

// Push records a committed transaction, discarding anything that could have
// been redone.
func (h *History) Push(t *Transaction) {
	h.mu.Lock()
	if h.disabled {
		h.mu.Unlock()
		return
	}
	h.entries = append(h.entries[:h.cursor:h.cursor], t)
	if len(h.entries) > h.capacity {
		h.entries = h.entries[len(h.entries)-h.capacity:]
	}
	h.cursor = len(h.entries)
	h.mu.Unlock()
	h.notify()
}

// CanUndo reports whether Undo would replay a transaction.
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.disabled && h.cursor > 0
}

// CanRedo reports whether Redo would replay a transaction.
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.disabled && h.cursor < len(h.entries)
}

// Undo reverts the most recent transaction with apply. It returns false
// when there is nothing to undo. The cursor only moves when apply succeeds.
func (h *History) Undo(apply ApplyFunc) (bool, error) {
	h.mu.Lock()
	if h.disabled || h.cursor == 0 {
		h.mu.Unlock()
		return false, nil
	}
	t := h.entries[h.cursor-1]
	h.mu.Unlock()

	if err := apply(t, false); err != nil {
		return false, err
	}

	h.mu.Lock()
	h.cursor--
	h.mu.Unlock()
	h.notify()
	return true, nil
}

// Redo reapplies the most recently undone transaction with apply.
func (h *History) Redo(apply ApplyFunc) (bool, error) {
	h.mu.Lock()
	if h.disabled || h.cursor >= len(h.entries) {
		h.mu.Unlock()
		return false, nil
	}
	t := h.entries[h.cursor]
	h.mu.Unlock()

	if err := apply(t, true); err != nil {
		return false, err
	}

	h.mu.Lock()
	h.cursor++
	h.mu.Unlock()
	h.notify()
	return true, nil
}

// Disable clears the history and refuses further pushes for the rest of the
// session. It is used once a batch transaction has bypassed the log.
func (h *History) Disable() {
	h.mu.Lock()
	h.disabled = true
	h.entries = nil
	h.cursor = 0
	h.mu.Unlock()
	h.notify()
}

// Disabled reports whether Disable was called.
func (h *History) Disabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disabled
}

// Clear forgets every transaction but keeps the history usable.
func (h *History) Clear() {
	h.mu.Lock()
	h.entries = nil
	h.cursor = 0
	h.mu.Unlock()
	h.notify()
}

// UndoMessage returns the message of the transaction Undo would revert.
func (h *History) UndoMessage() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disabled || h.cursor == 0 {
		return ""
	}
	return h.entries[h.cursor-1].Msg
}

// RedoMessage returns the message of the transaction Redo would reapply.
func (h *History) RedoMessage() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disabled || h.cursor >= len(h.entries) {
		return ""
	}
	return h.entries[h.cursor].Msg
}

// Messages lists the undoable transactions, oldest first.
func (h *History) Messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, h.cursor)
	for _, t := range h.entries[:h.cursor] {
		out = append(out, t.Msg)
	}
	return out
}

// OnChange registers fn to be called with the new availability after every
// push, undo, redo, clear or disable. The returned func unregisters it.
func (h *History) OnChange(fn func(canUndo, canRedo bool)) (unsubscribe func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

func (h *History) notify() {
	h.mu.Lock()
	canUndo := !h.disabled && h.cursor > 0
	canRedo := !h.disabled && h.cursor < len(h.entries)
	fns := make([]func(bool, bool), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(canUndo, canRedo)
	}
}
