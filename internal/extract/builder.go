package extract

import "errors"

// Builder expands a set of requested mode names into fully resolved
// extraction requests. Resolution is all-or-nothing: an unknown mode or
// provider fails the whole build before any provider traffic happens.
type Builder struct {
	registry *ProviderRegistry
	catalog  *PromptCatalog
}

// NewBuilder constructs a Builder over the given registry and catalog.
func NewBuilder(registry *ProviderRegistry, catalog *PromptCatalog) *Builder {
	return &Builder{registry: registry, catalog: catalog}
}

// Build resolves every requested mode against the catalog and the selected
// provider against the registry. Repeated mode names are processed once,
// keeping first-seen order. An empty provider name selects the default.
func (b *Builder) Build(content string, modes []string, providerName string) ([]Request, error) {
	if content == "" {
		return nil, errors.New("content is required")
	}
	if len(modes) == 0 {
		return nil, errors.New("at least one mode is required")
	}

	provider, err := b.registry.Resolve(providerName)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(modes))
	requests := make([]Request, 0, len(modes))
	for _, name := range modes {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		mode, err := b.catalog.Resolve(name)
		if err != nil {
			return nil, err
		}
		requests = append(requests, Request{
			Content:  content,
			Mode:     mode,
			Provider: provider,
		})
	}
	return requests, nil
}
