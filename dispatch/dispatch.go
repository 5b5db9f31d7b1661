// Package dispatch implements the handler tables the engines use to report
// events to the application.
//
// A table holds at most one handler per event kind, either globally or for a
// single session scope. A scoped handler takes precedence over the global one
// for events raised in that scope. Handlers run synchronously on the goroutine
// that emits the event, which for both engines is the node's tick.
//
// Example:
//
//	t := dispatch.New[file.EventKind, file.Key, file.Event]()
//	t.On(file.EventDone, func(ev file.Event) { log.Println(ev.Err) })
//	t.OnScope(key, file.EventRecvChunk, func(ev file.Event) { buf.Write(ev.Data) })
package dispatch

import "sync"

// Handler receives one event.
type Handler[E any] func(E)

// Table maps event kinds to handlers, globally or per scope.
type Table[K comparable, S comparable, E any] struct {
	mu     sync.RWMutex
	global map[K]Handler[E]
	scoped map[S]map[K]Handler[E]
}

// New creates an empty handler table.
func New[K comparable, S comparable, E any]() *Table[K, S, E] {
	return &Table[K, S, E]{
		global: make(map[K]Handler[E]),
		scoped: make(map[S]map[K]Handler[E]),
	}
}

// On registers h as the global handler for kind, replacing any previous one.
// A nil handler removes the registration.
func (t *Table[K, S, E]) On(kind K, h Handler[E]) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if h == nil {
		delete(t.global, kind)
		return
	}
	t.global[kind] = h
}

// OnScope registers h for kind within scope only. A nil handler removes the
// scoped registration, letting the global handler apply again.
func (t *Table[K, S, E]) OnScope(scope S, kind K, h Handler[E]) {
	t.mu.Lock()
	defer t.mu.Unlock()

	handlers := t.scoped[scope]
	if h == nil {
		if handlers != nil {
			delete(handlers, kind)
			if len(handlers) == 0 {
				delete(t.scoped, scope)
			}
		}
		return
	}
	if handlers == nil {
		handlers = make(map[K]Handler[E])
		t.scoped[scope] = handlers
	}
	handlers[kind] = h
}

// DropScope removes every handler registered for scope. Engines call it when
// a session is released.
func (t *Table[K, S, E]) DropScope(scope S) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.scoped, scope)
}

// Lookup returns the handler that Emit would invoke.
func (t *Table[K, S, E]) Lookup(scope S, kind K) Handler[E] {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if h, ok := t.scoped[scope][kind]; ok {
		return h
	}
	return t.global[kind]
}

// Emit invokes the handler for kind in scope and reports whether one ran.
// The table lock is not held while the handler runs, so a handler may
// register or drop handlers itself.
func (t *Table[K, S, E]) Emit(scope S, kind K, ev E) bool {
	h := t.Lookup(scope, kind)
	if h == nil {
		return false
	}
	h(ev)
	return true
}
