package providers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/open-verix/timeproof/internal/providers/metadata"
	"github.com/open-verix/timeproof/internal/providers/renderer"
)

// Registry holds the collaborator providers available to one process.
//
// Registries are plain values passed to the commands that need them; main
// builds one and registers the concrete providers.
//
// Example:
//
//	reg := providers.NewRegistry()
//	reg.RegisterMetadataProvider("exif", exif.NewProvider())
type Registry struct {
	metadataMu        sync.RWMutex
	metadataProviders map[string]metadata.Provider

	rendererMu        sync.RWMutex
	rendererProviders map[string]renderer.Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		metadataProviders: make(map[string]metadata.Provider),
		rendererProviders: make(map[string]renderer.Provider),
	}
}

// RegisterMetadataProvider registers a metadata provider by name.
func (r *Registry) RegisterMetadataProvider(name string, provider metadata.Provider) {
	r.metadataMu.Lock()
	defer r.metadataMu.Unlock()

	r.metadataProviders[name] = provider
}

// GetMetadataProvider retrieves a registered metadata provider by name.
// Returns an error if the provider is not found.
func (r *Registry) GetMetadataProvider(name string) (metadata.Provider, error) {
	r.metadataMu.RLock()
	defer r.metadataMu.RUnlock()

	provider, ok := r.metadataProviders[name]
	if !ok {
		return nil, &ProviderNotFoundError{
			Type: "Metadata",
			Name: name,
		}
	}

	return provider, nil
}

// ListMetadataProviders returns all registered metadata provider names, sorted.
func (r *Registry) ListMetadataProviders() []string {
	r.metadataMu.RLock()
	defer r.metadataMu.RUnlock()

	return sortedKeys(r.metadataProviders)
}

// RegisterRendererProvider registers a report renderer by name.
func (r *Registry) RegisterRendererProvider(name string, provider renderer.Provider) {
	r.rendererMu.Lock()
	defer r.rendererMu.Unlock()

	r.rendererProviders[name] = provider
}

// GetRendererProvider retrieves a registered renderer by name.
// Returns an error if the provider is not found.
func (r *Registry) GetRendererProvider(name string) (renderer.Provider, error) {
	r.rendererMu.RLock()
	defer r.rendererMu.RUnlock()

	provider, ok := r.rendererProviders[name]
	if !ok {
		return nil, &ProviderNotFoundError{
			Type: "Renderer",
			Name: name,
		}
	}

	return provider, nil
}

// RendererProviders resolves names in order. The first unknown name fails
// the whole lookup.
func (r *Registry) RendererProviders(names []string) ([]renderer.Provider, error) {
	out := make([]renderer.Provider, 0, len(names))
	for _, name := range names {
		p, err := r.GetRendererProvider(name)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ListRendererProviders returns all registered renderer names, sorted.
func (r *Registry) ListRendererProviders() []string {
	r.rendererMu.RLock()
	defer r.rendererMu.RUnlock()

	return sortedKeys(r.rendererProviders)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProviderNotFoundError is returned when a provider is not registered.
type ProviderNotFoundError struct {
	Type string
	Name string
}

func (e *ProviderNotFoundError) Error() string {
	return fmt.Sprintf("%s provider not found: %s", e.Type, e.Name)
}
