// Package scope tracks whether feed polling is bound to an accepted route.
package scope

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
)

// ErrScopeConflict is returned when binding to a route while another route is
// still bound. The old route has to be cleared first.
var ErrScopeConflict = errors.New("scope already bound to another route")

// Scope is either unscoped (zero value) or scoped to a route key.
type Scope struct {
	key string
}

// Unscoped is the global feed scope.
var Unscoped = Scope{}

// ScopedTo returns the scope bound to key. An empty key is Unscoped.
func ScopedTo(key string) Scope {
	return Scope{key: key}
}

// KeyFor formats a route timestamp as a route key.
func KeyFor(timestamp int64) string {
	return strconv.FormatInt(timestamp, 10)
}

// IsScoped reports whether s is bound to a route.
func (s Scope) IsScoped() bool { return s.key != "" }

// Key returns the route key, or "" when unscoped.
func (s Scope) Key() string { return s.key }

// PathSuffix is appended to the locations path: "/<key>" or "".
func (s Scope) PathSuffix() string {
	if s.key == "" {
		return ""
	}
	return "/" + s.key
}

func (s Scope) String() string {
	if s.key == "" {
		return "unscoped"
	}
	return fmt.Sprintf("scoped(%s)", s.key)
}

// Machine holds the current scope. Safe for concurrent use.
type Machine struct {
	mu       sync.RWMutex
	current  Scope
	onChange func(from, to Scope)
}

// NewMachine returns a Machine in the Unscoped state. onChange, if non-nil,
// is called after every real transition (self-transitions excluded) with the
// lock released.
func NewMachine(onChange func(from, to Scope)) *Machine {
	return &Machine{onChange: onChange}
}

// Current returns the scope as of the last completed transition.
func (m *Machine) Current() Scope {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Bind moves Unscoped -> ScopedTo(key). Binding the key that is already bound
// is a no-op; binding a different key fails with ErrScopeConflict.
func (m *Machine) Bind(key string) error {
	if key == "" {
		return errors.New("scope: empty route key")
	}
	m.mu.Lock()
	from := m.current
	switch {
	case from.key == key:
		m.mu.Unlock()
		return nil
	case from.IsScoped():
		m.mu.Unlock()
		return fmt.Errorf("%w: bound to %s, got %s", ErrScopeConflict, from.key, key)
	}
	m.current = ScopedTo(key)
	m.mu.Unlock()
	m.notify(from, ScopedTo(key))
	return nil
}

// Clear moves to Unscoped and reports whether a route was bound.
func (m *Machine) Clear() bool {
	m.mu.Lock()
	from := m.current
	m.current = Unscoped
	m.mu.Unlock()
	if !from.IsScoped() {
		return false
	}
	m.notify(from, Unscoped)
	return true
}

// ClearIf clears the scope only if it is still bound to key. Used by
// asynchronous paths that observed key earlier and must not drop a newer
// binding.
func (m *Machine) ClearIf(key string) bool {
	m.mu.Lock()
	from := m.current
	if from.key != key || key == "" {
		m.mu.Unlock()
		return false
	}
	m.current = Unscoped
	m.mu.Unlock()
	m.notify(from, Unscoped)
	return true
}

func (m *Machine) notify(from, to Scope) {
	if m.onChange != nil {
		m.onChange(from, to)
	}
}
