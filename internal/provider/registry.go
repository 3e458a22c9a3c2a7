package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry holds every registered Driver and resolves "driver/model"
// strings against them. Unlike the teacher's InitializeProviders, this
// Registry is never populated from environment variables or API keys —
// callers Register a concrete Driver (real or fake) explicitly.
type Registry struct {
	mu           sync.RWMutex
	drivers      map[string]Driver
	defaultModel string
}

// NewRegistry creates an empty registry. defaultModel is a "driver/model"
// string consulted by DefaultModel when no other hint is available.
func NewRegistry(defaultModel string) *Registry {
	return &Registry{
		drivers:      make(map[string]Driver),
		defaultModel: defaultModel,
	}
}

// Register adds a driver to the registry, keyed by its ID.
func (r *Registry) Register(d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[d.ID()] = d
}

// Get retrieves a driver by ID.
func (r *Registry) Get(driverID string) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.drivers[driverID]
	if !ok {
		return nil, fmt.Errorf("driver not found: %s", driverID)
	}
	return d, nil
}

// List returns every registered driver.
func (r *Registry) List() []Driver {
	r.mu.RLock()
	defer r.mu.RUnlock()

	drivers := make([]Driver, 0, len(r.drivers))
	for _, d := range r.drivers {
		drivers = append(drivers, d)
	}
	return drivers
}

// GetModel retrieves a specific model from a specific driver.
func (r *Registry) GetModel(driverID, modelID string) (*ModelInfo, error) {
	d, err := r.Get(driverID)
	if err != nil {
		return nil, err
	}
	for _, m := range d.Models() {
		if m.ID == modelID {
			return &m, nil
		}
	}
	return nil, fmt.Errorf("model not found: %s/%s", driverID, modelID)
}

// AllModels returns every model from every registered driver, highest
// context window first.
func (r *Registry) AllModels() []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var models []ModelInfo
	for _, d := range r.drivers {
		models = append(models, d.Models()...)
	}
	sort.Slice(models, func(i, j int) bool {
		return models[i].ContextWindow > models[j].ContextWindow
	})
	return models
}

// DefaultModel resolves the registry's configured default model,
// falling back to the first available model if none was configured or
// the configured one can't be found.
func (r *Registry) DefaultModel() (driverID, modelID string, info *ModelInfo, err error) {
	if r.defaultModel != "" {
		driverID, modelID = ParseModelString(r.defaultModel)
		if info, err = r.GetModel(driverID, modelID); err == nil {
			return driverID, modelID, info, nil
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, d := range r.drivers {
		models := d.Models()
		if len(models) > 0 {
			return id, models[0].ID, &models[0], nil
		}
	}
	return "", "", nil, fmt.Errorf("no models available")
}

// ParseModelString parses the "driver/model" format used throughout
// session and config payloads.
func ParseModelString(s string) (driverID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}
