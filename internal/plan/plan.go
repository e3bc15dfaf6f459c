// Package plan maps raw account tier strings to catalog entries.
package plan

import (
	"strings"

	"go.uber.org/zap"

	"github.com/pixrworth/platform/internal/config"
)

// Info is the resolved view of a plan used in quota decisions and in
// client-facing payloads. A nil Limit means unlimited.
type Info struct {
	Tier  string `json:"tier"`
	Label string `json:"label"`
	Limit *int   `json:"limit"`
}

// Unlimited reports whether the plan carries no monthly property cap.
func (i Info) Unlimited() bool { return i.Limit == nil }

type Resolver struct {
	catalog *config.PlanCatalogHolder
	log     *zap.Logger
}

func NewResolver(catalog *config.PlanCatalogHolder, log *zap.Logger) *Resolver {
	return &Resolver{catalog: catalog, log: log}
}

// Resolve normalizes raw, follows aliases, and falls back to the
// catalog default when the tier is empty or unknown. It never fails:
// a bad tier string on an account degrades to the default plan rather
// than taking requests down.
func (r *Resolver) Resolve(raw string) Info {
	catalog := r.catalog.Get()

	tier := strings.ToLower(strings.TrimSpace(raw))
	if alias, ok := catalog.Aliases[tier]; ok {
		tier = alias
	}

	entry, ok := catalog.Tiers[tier]
	if !ok {
		if tier != "" {
			r.log.Warn("unknown plan tier, falling back to default",
				zap.String("tier", raw),
				zap.String("default", catalog.Default))
		}
		tier = catalog.Default
		entry = catalog.Tiers[tier]
	}

	return Info{Tier: tier, Label: entry.Label, Limit: entry.Limit}
}
