package providers

import (
	"errors"
	"strings"
	"sync"
)

var (
	// ErrProviderNotFound is returned when a provider is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrModelNotSupported is returned when a model is not supported by any provider
	ErrModelNotSupported = errors.New("model not supported")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// Registry manages provider instances and model mappings
type Registry struct {
	mu             sync.RWMutex
	providers      map[string]Provider
	modelProviders map[string]string // model -> provider name
	modelPrefixes  map[string]string // model prefix -> provider name
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers:      make(map[string]Provider),
		modelProviders: make(map[string]string),
		modelPrefixes:  make(map[string]string),
	}
}

// RegisterProvider registers a provider instance and all of its models
func (r *Registry) RegisterProvider(provider Provider) error {
	if provider == nil {
		return errors.New("provider cannot be nil")
	}

	name := provider.Name()
	if name == "" {
		return errors.New("provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return ErrProviderAlreadyRegistered
	}

	r.providers[name] = provider
	for _, model := range provider.ListModels() {
		r.modelProviders[model] = name
	}

	return nil
}

// RegisterModelPrefix registers a model prefix to provider mapping
// (e.g., "gpt-" -> "openai") for models absent from the static tables
func (r *Registry) RegisterModelPrefix(prefix, providerName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[providerName]; !exists {
		return ErrProviderNotFound
	}

	r.modelPrefixes[prefix] = providerName
	return nil
}

// GetProvider retrieves a provider by name
func (r *Registry) GetProvider(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[name]
	if !exists {
		return nil, ErrProviderNotFound
	}

	return provider, nil
}

// GetProviderForModel finds the provider that supports a given model
func (r *Registry) GetProviderForModel(model string) (Provider, error) {
	r.mu.RLock()
	if name, exists := r.modelProviders[model]; exists {
		if provider, ok := r.providers[name]; ok {
			r.mu.RUnlock()
			return provider, nil
		}
	}

	var matched Provider
	for prefix, name := range r.modelPrefixes {
		if !strings.HasPrefix(model, prefix) {
			continue
		}
		if provider, ok := r.providers[name]; ok {
			if err := provider.ValidateModel(model); err == nil {
				matched = provider
				break
			}
		}
	}
	r.mu.RUnlock()

	if matched == nil {
		return nil, ErrModelNotSupported
	}

	// Cache the resolved mapping for future lookups
	r.mu.Lock()
	r.modelProviders[model] = matched.Name()
	r.mu.Unlock()

	return matched, nil
}

// ValidateModel checks if a model is supported by any registered provider
func (r *Registry) ValidateModel(model string) error {
	_, err := r.GetProviderForModel(model)
	return err
}

// GetModelInfo retrieves model information from the owning provider
func (r *Registry) GetModelInfo(model string) (*ModelInfo, error) {
	provider, err := r.GetProviderForModel(model)
	if err != nil {
		return nil, err
	}

	return provider.GetModelInfo(model)
}

// ListProviders returns all registered provider names
func (r *Registry) ListProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}

	return names
}

// ListModels returns all supported models across all providers
func (r *Registry) ListModels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]string, 0, len(r.modelProviders))
	for model := range r.modelProviders {
		models = append(models, model)
	}

	return models
}

// ProviderCount returns the number of registered providers
func (r *Registry) ProviderCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.providers)
}
