package notifier

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a Notifier from its provider-specific config map
// (webhook URLs, SMTP settings and so on).
type Factory func(config map[string]string) (Notifier, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register adds a notifier factory under the given provider name. Adapters
// call it from init(); registering the same name twice is a programming
// error and panics.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, dup := factories[name]; dup {
		panic(fmt.Sprintf("notifier: provider %q registered twice", name))
	}
	factories[name] = factory
}

// New builds the notifier registered under name.
func New(name string, config map[string]string) (Notifier, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("notifier: no provider registered as %q", name)
	}
	return factory(config)
}

// Available returns the registered provider names, sorted.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
