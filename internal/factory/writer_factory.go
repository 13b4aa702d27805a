package factory

import (
	"fmt"
	"sort"
	"sync"

	"TSNSpectra/internal/config"
	"TSNSpectra/internal/model"

	"github.com/sirupsen/logrus"
)

// WriterFactory creates a writer from its definition.
type WriterFactory func(def config.WriterDef, log *logrus.Entry) (model.Writer, error)

var (
	mu sync.RWMutex
	// registry holds the mapping of writer types to their factory functions.
	registry = make(map[string]WriterFactory)
)

// RegisterWriter registers a new writer type with its factory function.
func RegisterWriter(name string, factory WriterFactory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("writer type '%s' already registered", name))
	}
	registry[name] = factory
}

// Types lists the registered writer types.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateWriters builds every enabled writer of cfg.
func CreateWriters(cfg *config.Config, log *logrus.Entry) ([]model.Writer, error) {
	var writers []model.Writer
	for _, def := range cfg.Writers {
		if !def.Enabled {
			continue
		}
		mu.RLock()
		factory, ok := registry[def.Type]
		mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("unknown writer type: '%s'", def.Type)
		}

		w, err := factory(def, log.WithField("writer", def.Type))
		if err != nil {
			return nil, fmt.Errorf("error creating writer type '%s': %w", def.Type, err)
		}
		log.Infof("Created writer of type '%s'", def.Type)
		writers = append(writers, w)
	}
	return writers, nil
}
