package config

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

// HandlerFunc consumes one firing of an action with its stored arguments.
type HandlerFunc func(ctx context.Context, args ...any) error

// HandlerRegistry maps actions to the handlers that consume them. An action
// may have any number of handlers; all of them run for each firing.
type HandlerRegistry struct {
	handlers map[string][]HandlerFunc
	mutex    sync.RWMutex
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string][]HandlerFunc),
	}
}

// Register adds a handler for an action.
func (hr *HandlerRegistry) Register(action string, handler HandlerFunc) error {
	if action == "" {
		return errors.New("handler action must not be empty")
	}
	if handler == nil {
		return errors.Newf("handler for '%s' must not be nil", action)
	}

	hr.mutex.Lock()
	defer hr.mutex.Unlock()

	hr.handlers[action] = append(hr.handlers[action], handler)
	return nil
}

// Has reports whether anything consumes action.
func (hr *HandlerRegistry) Has(action string) bool {
	hr.mutex.RLock()
	defer hr.mutex.RUnlock()

	return len(hr.handlers[action]) > 0
}

// Handlers returns a copy of the handlers registered for action.
func (hr *HandlerRegistry) Handlers(action string) []HandlerFunc {
	hr.mutex.RLock()
	defer hr.mutex.RUnlock()

	return append([]HandlerFunc(nil), hr.handlers[action]...)
}

// Remove drops every handler of action.
func (hr *HandlerRegistry) Remove(action string) {
	hr.mutex.Lock()
	defer hr.mutex.Unlock()

	delete(hr.handlers, action)
}

func (hr *HandlerRegistry) List() []string {
	hr.mutex.RLock()
	defer hr.mutex.RUnlock()

	names := make([]string, 0, len(hr.handlers))
	for name := range hr.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
