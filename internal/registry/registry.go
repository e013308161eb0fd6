package registry

import (
	"fmt"
	"net/url"
	"sort"

	"fleetd/internal/config"
	"fleetd/pkg/types"
)

// Tier tags recognized by "auto" resolution.
const (
	TagTierSmall = "tier:small"
	TagTierLarge = "tier:large"
)

// AliasAuto routes by estimated request size instead of a fixed model.
const AliasAuto = "auto"

// Registry is the immutable, validated view of configured providers and
// models. Construct once at boot; safe for concurrent readers.
type Registry struct {
	providers map[string]types.Provider
	models    map[string]types.Model
	aliases   map[string]string

	providerIDs []string
	modelIDs    []string

	smallTierMaxTokens int
}

// New validates cfg and builds the registry. All returned errors are
// ConfigErrors and should abort startup.
func New(cfg config.Config) (*Registry, error) {
	r := &Registry{
		providers:          make(map[string]types.Provider, len(cfg.Providers)),
		models:             make(map[string]types.Model, len(cfg.Models)),
		aliases:            make(map[string]string, len(cfg.Aliases)),
		smallTierMaxTokens: cfg.Router.SmallTierMaxTokens,
	}
	if r.smallTierMaxTokens <= 0 {
		r.smallTierMaxTokens = 4096
	}

	for _, p := range cfg.Providers {
		if p.ID == "" {
			return nil, ErrConfig("provider with empty id")
		}
		if _, dup := r.providers[p.ID]; dup {
			return nil, ErrConfig(fmt.Sprintf("duplicate provider id %q", p.ID))
		}
		if p.Endpoint == "" {
			return nil, ErrConfig(fmt.Sprintf("provider %q: empty endpoint", p.ID))
		}
		if u, err := url.Parse(p.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			return nil, ErrConfig(fmt.Sprintf("provider %q: endpoint %q is not an absolute URL", p.ID, p.Endpoint))
		}
		if p.MaxConcurrent <= 0 {
			return nil, ErrConfig(fmt.Sprintf("provider %q: max_concurrent must be >= 1", p.ID))
		}
		if p.HealthPath == "" {
			p.HealthPath = "/v1/models"
		}
		switch p.AuthType {
		case "":
			p.AuthType = types.AuthNone
		case types.AuthNone:
		case types.AuthBearer:
			if p.AuthToken == "" {
				return nil, ErrConfig(fmt.Sprintf("provider %q: bearer auth without token", p.ID))
			}
		default:
			return nil, ErrConfig(fmt.Sprintf("provider %q: unknown auth_type %q", p.ID, p.AuthType))
		}
		r.providers[p.ID] = p
		r.providerIDs = append(r.providerIDs, p.ID)
	}

	for _, m := range cfg.Models {
		if m.ID == "" {
			return nil, ErrConfig("model with empty id")
		}
		if _, dup := r.models[m.ID]; dup {
			return nil, ErrConfig(fmt.Sprintf("duplicate model id %q", m.ID))
		}
		if m.ProviderID == "" {
			return nil, ErrConfig(fmt.Sprintf("model %q: empty provider_id", m.ID))
		}
		if _, ok := r.providers[m.ProviderID]; !ok {
			return nil, ErrConfig(fmt.Sprintf("model %q: unknown provider %q", m.ID, m.ProviderID))
		}
		if c := m.Container; c != nil {
			if c.Ref == "" {
				return nil, ErrConfig(fmt.Sprintf("model %q: container without ref", m.ID))
			}
			if c.Port <= 0 {
				return nil, ErrConfig(fmt.Sprintf("model %q: container port must be >= 1", m.ID))
			}
			switch c.Kind {
			case "":
				c.Kind = types.KindText
			case types.KindText, types.KindImage, types.KindTTS:
			default:
				return nil, ErrConfig(fmt.Sprintf("model %q: unknown container kind %q", m.ID, c.Kind))
			}
			if c.ReadyPath == "" {
				c.ReadyPath = "/health"
			}
		}
		r.models[m.ID] = m
		r.modelIDs = append(r.modelIDs, m.ID)
	}

	for name, target := range cfg.Aliases {
		if name == "" {
			return nil, ErrConfig("alias with empty name")
		}
		if name == AliasAuto {
			return nil, ErrConfig(`alias "auto" is reserved`)
		}
		if _, shadow := r.models[name]; shadow {
			return nil, ErrConfig(fmt.Sprintf("alias %q shadows a model id", name))
		}
		if _, ok := r.models[target]; !ok {
			return nil, ErrConfig(fmt.Sprintf("alias %q: unknown model %q", name, target))
		}
		r.aliases[name] = target
	}

	sort.Strings(r.providerIDs)
	sort.Strings(r.modelIDs)
	return r, nil
}

// ProviderByID returns the provider with the given id.
func (r *Registry) ProviderByID(id string) (types.Provider, bool) {
	p, ok := r.providers[id]
	return p, ok
}

// ModelByID returns the model with the given id.
func (r *Registry) ModelByID(id string) (types.Model, bool) {
	m, ok := r.models[id]
	return m, ok
}

// Providers returns all providers sorted by id.
func (r *Registry) Providers() []types.Provider {
	out := make([]types.Provider, 0, len(r.providerIDs))
	for _, id := range r.providerIDs {
		out = append(out, r.providers[id])
	}
	return out
}

// Models returns all models sorted by id.
func (r *Registry) Models() []types.Model {
	out := make([]types.Model, 0, len(r.modelIDs))
	for _, id := range r.modelIDs {
		out = append(out, r.models[id])
	}
	return out
}

// ManagedModels returns the models that carry a container spec, sorted by id.
func (r *Registry) ManagedModels() []types.Model {
	var out []types.Model
	for _, id := range r.modelIDs {
		if m := r.models[id]; m.Managed() {
			out = append(out, m)
		}
	}
	return out
}

// Resolve maps a requested name to candidate models. Exact ids and configured
// aliases yield a single candidate. "auto" yields the preferred tier for
// estTokens plus the other tier as fallback, so callers can downgrade when the
// preferred tier is filtered out entirely.
func (r *Registry) Resolve(name string, estTokens int) (preferred, fallback []types.Model, err error) {
	if m, ok := r.models[name]; ok {
		return []types.Model{m}, nil, nil
	}
	if target, ok := r.aliases[name]; ok {
		return []types.Model{r.models[target]}, nil, nil
	}
	if name != AliasAuto {
		return nil, nil, ErrUnknownModel(name)
	}
	small, large := r.tierSets()
	if len(small) == 0 && len(large) == 0 {
		return nil, nil, ErrUnknownModel(name)
	}
	if estTokens <= r.smallTierMaxTokens {
		return small, large, nil
	}
	return large, small, nil
}

func (r *Registry) tierSets() (small, large []types.Model) {
	for _, id := range r.modelIDs {
		m := r.models[id]
		if m.HasTag(TagTierSmall) {
			small = append(small, m)
		}
		if m.HasTag(TagTierLarge) {
			large = append(large, m)
		}
	}
	return small, large
}
