package registry

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nimazasinich/crypto-dt-source-sub019/internal/domain/models"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/domain/repository"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/providers"
	"github.com/nimazasinich/crypto-dt-source-sub019/pkg/config"
	applogger "github.com/nimazasinich/crypto-dt-source-sub019/pkg/logger"
)

// Registry is the static, ordered set of provider descriptors and their
// clients. Immutable after construction; safe for concurrent reads without
// locking.
type Registry struct {
	descriptors []*models.ProviderDescriptor // priority asc, declaration order preserved
	byName      map[string]*models.ProviderDescriptor
	clients     map[string]repository.Provider
}

// ClientFactory builds a provider client from its descriptor. Keyed by
// provider name so configuration decides which upstreams are live.
type ClientFactory func(desc *models.ProviderDescriptor, tracker *providers.RateTracker) repository.Provider

// DefaultFactories maps the known provider names to their clients.
func DefaultFactories() map[string]ClientFactory {
	return map[string]ClientFactory{
		"coingecko": func(d *models.ProviderDescriptor, t *providers.RateTracker) repository.Provider {
			return providers.NewCoinGecko(d, t)
		},
		"binance": func(d *models.ProviderDescriptor, t *providers.RateTracker) repository.Provider {
			return providers.NewBinance(d, t)
		},
		"alternative": func(d *models.ProviderDescriptor, t *providers.RateTracker) repository.Provider {
			return providers.NewAlternative(d, t)
		},
	}
}

// New validates provider configuration eagerly and builds the registry.
// A malformed entry fails startup. A provider that requires a key but has
// none in the environment is skipped with a warning rather than failing.
func New(cfgs []config.ProviderConfig, factories map[string]ClientFactory, tracker *providers.RateTracker, l *applogger.Logger) (*Registry, error) {
	v := validator.New()

	r := &Registry{
		byName:  make(map[string]*models.ProviderDescriptor, len(cfgs)),
		clients: make(map[string]repository.Provider, len(cfgs)),
	}

	for i := range cfgs {
		pc := cfgs[i]
		if err := v.Struct(pc); err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		if _, dup := r.byName[pc.Name]; dup {
			return nil, fmt.Errorf("provider %q: duplicate name", pc.Name)
		}
		factory, ok := factories[pc.Name]
		if !ok {
			return nil, fmt.Errorf("provider %q: no client implementation", pc.Name)
		}

		desc := buildDescriptor(pc)
		if desc.RequiresKey && desc.APIKey == "" {
			l.Warn("provider requires an API key and none is set, skipping",
				applogger.String("provider", pc.Name),
				applogger.String("env", pc.APIKeyEnv),
			)
			continue
		}

		r.descriptors = append(r.descriptors, desc)
		r.byName[desc.Name] = desc
		r.clients[desc.Name] = factory(desc, tracker)
	}

	if len(r.descriptors) == 0 {
		return nil, fmt.Errorf("no usable providers configured")
	}

	// Equal priorities keep declaration order: the tie-break is deterministic.
	sort.SliceStable(r.descriptors, func(i, j int) bool {
		return r.descriptors[i].Priority < r.descriptors[j].Priority
	})

	return r, nil
}

func buildDescriptor(pc config.ProviderConfig) *models.ProviderDescriptor {
	caps := make(map[models.MetricKind]bool, len(pc.Capabilities))
	for _, c := range pc.Capabilities {
		caps[models.MetricKind(c)] = true
	}

	timeout := pc.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	capacity := pc.RateCapacity
	if capacity <= 0 {
		capacity = 30
	}
	refill := pc.RateRefill
	if refill <= 0 {
		refill = 0.5
	}

	var apiKey string
	if pc.APIKeyEnv != "" {
		apiKey = os.Getenv(pc.APIKeyEnv)
	}

	return &models.ProviderDescriptor{
		Name:         pc.Name,
		Priority:     pc.Priority,
		BaseURL:      pc.BaseURL,
		Timeout:      timeout,
		Capabilities: caps,
		RequiresKey:  pc.RequiresKey,
		APIKey:       apiKey,
		RateCapacity: capacity,
		RateRefill:   refill,
	}
}

// ChainFor returns the fallback chain for a metric kind: capability-filtered
// descriptors in priority order.
func (r *Registry) ChainFor(kind models.MetricKind) []*models.ProviderDescriptor {
	chain := make([]*models.ProviderDescriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		if d.Supports(kind) {
			chain = append(chain, d)
		}
	}
	return chain
}

// Client returns the client for a provider name.
func (r *Registry) Client(name string) (repository.Provider, bool) {
	c, ok := r.clients[name]
	return c, ok
}

// Descriptor returns the descriptor for a provider name.
func (r *Registry) Descriptor(name string) (*models.ProviderDescriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Has reports whether a provider name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Names returns all provider names in priority order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.descriptors))
	for i, d := range r.descriptors {
		names[i] = d.Name
	}
	return names
}

// TopNames returns up to n highest-priority provider names, the default
// provider set for history queries.
func (r *Registry) TopNames(n int) []string {
	names := r.Names()
	if len(names) > n {
		names = names[:n]
	}
	return names
}
