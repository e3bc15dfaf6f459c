package config

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PlanTier describes one subscription tier in the static catalog.
type PlanTier struct {
	Label    string   `mapstructure:"label"`
	Limit    *int     `mapstructure:"limit"` // nil = unlimited
	Features []string `mapstructure:"features"`
	Price    int      `mapstructure:"price"`
}

// PlanCatalog is the read-only plan table loaded at process start.
type PlanCatalog struct {
	Default string              `mapstructure:"default"`
	Tiers   map[string]PlanTier `mapstructure:"tiers"`
	Aliases map[string]string   `mapstructure:"aliases"`
}

func DefaultPlanCatalog() PlanCatalog {
	return PlanCatalog{
		Default: "professional",
		Tiers: map[string]PlanTier{
			"professional": {
				Label:    "Professional",
				Limit:    intPtr(20),
				Features: []string{"appraisal", "glowup", "spyhunt", "report"},
				Price:    99,
			},
			"business": {
				Label:    "Business",
				Limit:    intPtr(50),
				Features: []string{"appraisal", "glowup", "spyhunt", "report", "priority_support"},
				Price:    199,
			},
			"enterprise": {
				Label:    "Enterprise",
				Limit:    intPtr(200),
				Features: []string{"appraisal", "glowup", "spyhunt", "report", "priority_support", "white_label", "api_access", "teams"},
				Price:    499,
			},
		},
		Aliases: map[string]string{
			"pro":          "professional",
			"professional": "professional",
			"business":     "business",
			"enterprise":   "enterprise",
		},
	}
}

func intPtr(v int) *int { return &v }

// PlanCatalogHolder exposes the current catalog and hot reloads it when
// the backing plans.yml changes. Invalid reloads are ignored; invalid
// startup config fails the process.
type PlanCatalogHolder struct {
	current atomic.Value // holds PlanCatalog
}

func NewPlanCatalogHolder() (*PlanCatalogHolder, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/pixrworth/config")
	v.AddConfigPath("/etc/pixrworth")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PIXRWORTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg PlanCatalog
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		cfg = DefaultPlanCatalog()
	} else {
		if err := v.UnmarshalKey("plans", &cfg); err != nil {
			return nil, err
		}
	}
	if err := validatePlanCatalog(cfg); err != nil {
		return nil, err
	}

	holder := &PlanCatalogHolder{}
	holder.current.Store(normalizePlanCatalog(cfg))

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlanCatalog
		if err := v.UnmarshalKey("plans", &updated); err != nil {
			log.Printf("[plan-config] reload failed: %v", err)
			return
		}
		if err := validatePlanCatalog(updated); err != nil {
			log.Printf("[plan-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(normalizePlanCatalog(updated))
		log.Printf("[plan-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPlanCatalogHolder wraps a fixed catalog with no file watch.
// Intended for tests and one-shot tooling.
func NewStaticPlanCatalogHolder(cfg PlanCatalog) *PlanCatalogHolder {
	holder := &PlanCatalogHolder{}
	holder.current.Store(normalizePlanCatalog(cfg))
	return holder
}

func (h *PlanCatalogHolder) Get() PlanCatalog {
	return h.current.Load().(PlanCatalog)
}

func validatePlanCatalog(cfg PlanCatalog) error {
	if len(cfg.Tiers) == 0 {
		return fmt.Errorf("plans.tiers cannot be empty")
	}
	def := strings.ToLower(strings.TrimSpace(cfg.Default))
	if def == "" {
		return fmt.Errorf("plans.default cannot be empty")
	}
	if _, ok := cfg.Tiers[def]; !ok {
		return fmt.Errorf("plans.default %q has no matching tier", cfg.Default)
	}
	for name, tier := range cfg.Tiers {
		if tier.Limit != nil && *tier.Limit <= 0 {
			return fmt.Errorf("plans.tiers.%s.limit must be positive or omitted", name)
		}
	}
	for alias, target := range cfg.Aliases {
		if _, ok := cfg.Tiers[strings.ToLower(target)]; !ok {
			return fmt.Errorf("plans.aliases.%s points at unknown tier %q", alias, target)
		}
	}
	return nil
}

// normalizePlanCatalog lowercases tier names and aliases so resolution
// can rely on case-insensitive lookups.
func normalizePlanCatalog(cfg PlanCatalog) PlanCatalog {
	out := PlanCatalog{
		Default: strings.ToLower(strings.TrimSpace(cfg.Default)),
		Tiers:   make(map[string]PlanTier, len(cfg.Tiers)),
		Aliases: make(map[string]string, len(cfg.Aliases)),
	}
	for name, tier := range cfg.Tiers {
		out.Tiers[strings.ToLower(strings.TrimSpace(name))] = tier
	}
	for alias, target := range cfg.Aliases {
		out.Aliases[strings.ToLower(strings.TrimSpace(alias))] = strings.ToLower(strings.TrimSpace(target))
	}
	return out
}
