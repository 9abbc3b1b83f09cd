package sensor

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Factory builds an unopened driver.
type Factory func(logger *zap.SugaredLogger) Driver

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// Register makes a driver available by name. Driver packages call it from init.
func Register(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if _, ok := factories[name]; ok {
		panic("sensor: driver registered twice: " + name)
	}
	factories[name] = f
}

// New builds the named driver.
func New(name string, logger *zap.SugaredLogger) (Driver, error) {
	factoriesMu.RLock()
	f, ok := factories[name]
	factoriesMu.RUnlock()

	if !ok {
		return nil, errors.Errorf("unknown driver %q (available: %v)", name, Drivers())
	}
	return f(logger), nil
}

// Drivers returns the sorted names of the registered drivers.
func Drivers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
