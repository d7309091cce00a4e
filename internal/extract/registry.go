package extract

import (
	"errors"
	"fmt"
	"net/url"
)

// ProviderRegistry holds the named provider configurations loaded at
// startup. It is read-only after construction.
type ProviderRegistry struct {
	order       []string
	byName      map[string]ProviderConfig
	defaultName string
}

// NewProviderRegistry validates the configs and builds a registry. All
// validation failures are reported together, not just the first.
func NewProviderRegistry(configs []ProviderConfig) (*ProviderRegistry, error) {
	r := &ProviderRegistry{byName: make(map[string]ProviderConfig, len(configs))}

	var errs []error
	for i, cfg := range configs {
		if cfg.Name == "" {
			errs = append(errs, fmt.Errorf("provider[%d]: name is required", i))
			continue
		}
		if _, dup := r.byName[cfg.Name]; dup {
			errs = append(errs, fmt.Errorf("provider %q: duplicate name", cfg.Name))
			continue
		}
		if cfg.Endpoint != "" {
			if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
				errs = append(errs, fmt.Errorf("provider %q: malformed endpoint: %w", cfg.Name, err))
			}
		}
		if cfg.Model == "" {
			errs = append(errs, fmt.Errorf("provider %q: model is required", cfg.Name))
		}
		if cfg.Default {
			if r.defaultName != "" {
				errs = append(errs, fmt.Errorf(
					"provider %q: default already claimed by %q", cfg.Name, r.defaultName))
			} else {
				r.defaultName = cfg.Name
			}
		}
		r.byName[cfg.Name] = cfg
		r.order = append(r.order, cfg.Name)
	}
	if len(r.order) == 0 {
		errs = append(errs, errors.New("at least one provider is required"))
	}
	if r.defaultName == "" && len(r.order) > 0 {
		// A single provider is implicitly the default.
		if len(r.order) == 1 {
			r.defaultName = r.order[0]
		} else {
			errs = append(errs, errors.New("multiple providers configured but none marked default"))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid provider configuration: %w", errors.Join(errs...))
	}
	return r, nil
}

// Resolve returns the provider for name, or the default when name is empty.
func (r *ProviderRegistry) Resolve(name string) (ProviderConfig, error) {
	if name == "" {
		name = r.defaultName
	}
	cfg, ok := r.byName[name]
	if !ok {
		return ProviderConfig{}, &UnknownProviderError{Name: name}
	}
	return cfg, nil
}

// Default returns the name of the default provider.
func (r *ProviderRegistry) Default() string {
	return r.defaultName
}

// List returns the configs in registration order.
func (r *ProviderRegistry) List() []ProviderConfig {
	out := make([]ProviderConfig, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}
