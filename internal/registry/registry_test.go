package registry

import (
	"testing"

	"github.com/nimazasinich/crypto-dt-source-sub019/internal/domain/models"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/providers"
	"github.com/nimazasinich/crypto-dt-source-sub019/pkg/config"
	applogger "github.com/nimazasinich/crypto-dt-source-sub019/pkg/logger"
)

func testConfigs() []config.ProviderConfig {
	return []config.ProviderConfig{
		{
			Name:         "binance",
			Priority:     2,
			BaseURL:      "https://api.binance.com",
			Capabilities: []string{"price", "ohlc"},
		},
		{
			Name:         "coingecko",
			Priority:     1,
			BaseURL:      "https://api.coingecko.com/api/v3",
			Capabilities: []string{"price", "ohlc"},
		},
		{
			Name:         "alternative",
			Priority:     1,
			BaseURL:      "https://api.alternative.me",
			Capabilities: []string{"sentiment"},
		},
	}
}

func build(t *testing.T, cfgs []config.ProviderConfig) *Registry {
	t.Helper()
	r, err := New(cfgs, DefaultFactories(), providers.NewRateTracker(), applogger.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return r
}

func TestPriorityOrdering(t *testing.T) {
	r := build(t, testConfigs())

	names := r.Names()
	if len(names) != 3 {
		t.Fatalf("expected 3 providers, got %d", len(names))
	}
	// Equal priorities keep declaration order.
	if names[0] != "coingecko" || names[1] != "alternative" || names[2] != "binance" {
		t.Fatalf("unexpected order: %v", names)
	}
}

func TestChainForFiltersByCapability(t *testing.T) {
	r := build(t, testConfigs())

	chain := r.ChainFor(models.MetricSentiment)
	if len(chain) != 1 || chain[0].Name != "alternative" {
		t.Fatalf("unexpected sentiment chain: %v", chain)
	}

	chain = r.ChainFor(models.MetricPrice)
	if len(chain) != 2 {
		t.Fatalf("expected 2 price providers, got %d", len(chain))
	}
	if chain[0].Name != "coingecko" || chain[1].Name != "binance" {
		t.Fatalf("unexpected price chain order: %s, %s", chain[0].Name, chain[1].Name)
	}
}

func TestMalformedConfigRejected(t *testing.T) {
	cfgs := []config.ProviderConfig{
		{Name: "coingecko", BaseURL: "not-a-url", Capabilities: []string{"price"}},
	}
	if _, err := New(cfgs, DefaultFactories(), providers.NewRateTracker(), applogger.Nop()); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestUnknownCapabilityRejected(t *testing.T) {
	cfgs := []config.ProviderConfig{
		{Name: "coingecko", BaseURL: "https://api.coingecko.com", Capabilities: []string{"futures"}},
	}
	if _, err := New(cfgs, DefaultFactories(), providers.NewRateTracker(), applogger.Nop()); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestDuplicateNameRejected(t *testing.T) {
	cfgs := testConfigs()
	cfgs = append(cfgs, cfgs[0])
	if _, err := New(cfgs, DefaultFactories(), providers.NewRateTracker(), applogger.Nop()); err == nil {
		t.Fatalf("expected duplicate error")
	}
}

func TestUnknownProviderNameRejected(t *testing.T) {
	cfgs := []config.ProviderConfig{
		{Name: "mystery", BaseURL: "https://example.com", Capabilities: []string{"price"}},
	}
	if _, err := New(cfgs, DefaultFactories(), providers.NewRateTracker(), applogger.Nop()); err == nil {
		t.Fatalf("expected unknown implementation error")
	}
}

func TestMissingKeySkipsProvider(t *testing.T) {
	cfgs := testConfigs()
	cfgs[0].RequiresKey = true
	cfgs[0].APIKeyEnv = "REGISTRY_TEST_NO_SUCH_KEY"

	r := build(t, cfgs)
	if r.Has("binance") {
		t.Fatalf("expected keyless provider skipped")
	}
	if !r.Has("coingecko") {
		t.Fatalf("expected remaining providers kept")
	}
}

func TestAllProvidersSkippedFails(t *testing.T) {
	cfgs := testConfigs()[:1]
	cfgs[0].RequiresKey = true
	cfgs[0].APIKeyEnv = "REGISTRY_TEST_NO_SUCH_KEY"

	if _, err := New(cfgs, DefaultFactories(), providers.NewRateTracker(), applogger.Nop()); err == nil {
		t.Fatalf("expected error when no providers usable")
	}
}

func TestTopNames(t *testing.T) {
	r := build(t, testConfigs())
	if got := r.TopNames(2); len(got) != 2 || got[0] != "coingecko" {
		t.Fatalf("unexpected top names: %v", got)
	}
	if got := r.TopNames(10); len(got) != 3 {
		t.Fatalf("expected all names, got %v", got)
	}
}
