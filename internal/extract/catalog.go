package extract

import (
	"errors"
	"fmt"
	"strings"
)

// PromptCatalog maps extraction-mode names to prompt templates. Loaded once
// at startup, read-only afterwards.
type PromptCatalog struct {
	order  []string
	byName map[string]Mode
}

// NewPromptCatalog validates the modes and builds a catalog. Every template
// must contain the content placeholder exactly once; all violations are
// reported together.
func NewPromptCatalog(modes []Mode) (*PromptCatalog, error) {
	c := &PromptCatalog{byName: make(map[string]Mode, len(modes))}

	var errs []error
	for i, mode := range modes {
		if mode.Name == "" {
			errs = append(errs, fmt.Errorf("mode[%d]: name is required", i))
			continue
		}
		if _, dup := c.byName[mode.Name]; dup {
			errs = append(errs, fmt.Errorf("mode %q: duplicate name", mode.Name))
			continue
		}
		switch n := strings.Count(mode.Template, ContentPlaceholder); {
		case n == 0:
			errs = append(errs, fmt.Errorf("mode %q: template is missing the %s placeholder", mode.Name, ContentPlaceholder))
		case n > 1:
			errs = append(errs, fmt.Errorf("mode %q: template has %d %s placeholders, want exactly one", mode.Name, n, ContentPlaceholder))
		}
		c.byName[mode.Name] = mode
		c.order = append(c.order, mode.Name)
	}
	if len(c.order) == 0 {
		errs = append(errs, errors.New("at least one extraction mode is required"))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid mode configuration: %w", errors.Join(errs...))
	}
	return c, nil
}

// Resolve returns the mode for name.
func (c *PromptCatalog) Resolve(name string) (Mode, error) {
	mode, ok := c.byName[name]
	if !ok {
		return Mode{}, &UnknownModeError{Name: name}
	}
	return mode, nil
}

// List returns the modes in registration order.
func (c *PromptCatalog) List() []Mode {
	out := make([]Mode, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.byName[name])
	}
	return out
}
