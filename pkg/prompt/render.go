package prompt

import (
	"context"
	"regexp"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/telemetry"
)

var (
	varPattern   = regexp.MustCompile(`\{\{([^{}]+)\}\}`)
	groupPattern = regexp.MustCompile(`@\{([^{}]+)\}`)
)

// Registry resolves and renders prompts, composing a Store and an optional
// Dictionary for "@{groupId}" expansion.
type Registry struct {
	store Store
	dict  Dictionary
	log   telemetry.Logger
}

// NewRegistry constructs a Registry. dict may be nil if no dictionary-group
// expansion is needed. log may be nil to discard render diagnostics.
func NewRegistry(store Store, dict Dictionary, log telemetry.Logger) *Registry {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Registry{store: store, dict: dict, log: log}
}

// Current returns the CURRENT prompt for (method, language).
func (r *Registry) Current(ctx context.Context, method, language string) (*Prompt, error) {
	return r.store.Current(ctx, method, language)
}

// Save persists a new prompt version; see Store.Save for the CURRENT/REPLACED
// transition contract.
func (r *Registry) Save(ctx context.Context, p *Prompt) (*Prompt, error) {
	return r.store.Save(ctx, p)
}

// Render substitutes "{{var}}" placeholders in p.Message with values from
// vars (case-sensitive names) and expands "@{groupId}" dictionary-group
// references via the configured Dictionary. Missing variables render as
// empty strings and are logged; render never fails for missing variables.
func (r *Registry) Render(ctx context.Context, p *Prompt, vars map[string]string) string {
	if p == nil {
		return ""
	}
	out := groupPattern.ReplaceAllStringFunc(p.Message, func(match string) string {
		groupID := groupPattern.FindStringSubmatch(match)[1]
		if r.dict == nil {
			r.log.Warn(ctx, "prompt: no dictionary configured for group reference", "groupId", groupID)
			return ""
		}
		text, err := r.dict.Group(ctx, groupID)
		if err != nil {
			r.log.Warn(ctx, "prompt: dictionary group lookup failed", "groupId", groupID, "error", err)
			return ""
		}
		return text
	})

	out = varPattern.ReplaceAllStringFunc(out, func(match string) string {
		name := varPattern.FindStringSubmatch(match)[1]
		val, ok := vars[name]
		if !ok {
			r.log.Warn(ctx, "prompt: missing template variable", "method", p.Method, "var", name)
			return ""
		}
		return val
	})
	return out
}

// RenderCurrent resolves and renders the CURRENT prompt for (method,
// language) in one call. Returns *MissingError if no CURRENT prompt exists.
func (r *Registry) RenderCurrent(ctx context.Context, method, language string, vars map[string]string) (string, error) {
	p, err := r.Current(ctx, method, language)
	if err != nil {
		if err == ErrNotFound {
			return "", &MissingError{Method: method, Language: language}
		}
		return "", err
	}
	return r.Render(ctx, p, vars), nil
}
