package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"structured-router/internal/models"
)

// ErrUnknownModel indicates the requested model is not registered.
var ErrUnknownModel = errors.New("unknown model")

// ErrDuplicateModel indicates an attempt to register the same model twice.
var ErrDuplicateModel = errors.New("model already registered")

// ChatClient is the single capability every backend adapter offers: send
// the messages in order, constrain the reply to the request schema and
// return the decoded document.
type ChatClient interface {
	ChatWithStructuredOutput(ctx context.Context, messages []models.Message, req models.StructuredRequest) (*models.StructuredResponse, error)
}

// Provider is a ChatClient bound to one backend model.
type Provider interface {
	ChatClient
	Name() string
	Model() models.Model
}

// Registry maintains a mapping of model IDs to providers.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Provider
	ids    []string
}

// NewRegistry constructs an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]Provider),
	}
}

// Register adds the provider under its model ID and wires optional aliases
// whose targets are already registered.
func (r *Registry) Register(p Provider, aliases map[string]string) error {
	if p == nil {
		return errors.New("provider must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := p.Model().ID
	if _, exists := r.models[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateModel, id)
	}
	r.models[id] = p
	r.ids = append(r.ids, id)

	for alias, target := range aliases {
		if target != id {
			continue
		}
		if _, exists := r.models[alias]; exists {
			return fmt.Errorf("alias %q conflicts with existing model", alias)
		}
		r.models[alias] = p
	}

	return nil
}

// CheckAliases reports aliases whose target model was never registered.
func (r *Registry) CheckAliases(aliases map[string]string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(aliases))
	for alias := range aliases {
		names = append(names, alias)
	}
	sort.Strings(names)
	for _, alias := range names {
		if _, ok := r.models[aliases[alias]]; !ok {
			return fmt.Errorf("alias %q references unknown model %q", alias, aliases[alias])
		}
	}
	return nil
}

// Lookup returns the provider serving the given model ID or alias.
func (r *Registry) Lookup(modelID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.models[modelID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	return p, nil
}

// Models lists registered models in registration order, without aliases.
func (r *Registry) Models() []models.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Model, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.models[id].Model())
	}
	return out
}
