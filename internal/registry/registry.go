// Package registry defines the enrichment registry: the immutable snapshot of
// configured enrichments and their current local asset paths (spec.md §3),
// and the Enrichment capability interface each configured enrichment
// implements (spec.md §9 "Dynamic dispatch over enrichments").
package registry

import (
	"context"

	"github.com/flowlattice/enrich/internal/model"
)

// Enrichment is the capability every configured enrichment exposes. The
// concrete algorithms (GeoIP, user-agent parsing, JS scriptlets, ...) are
// external collaborators per spec.md §1; this interface is the narrow seam
// the dispatcher drives them through.
type Enrichment interface {
	// Name identifies the enrichment for error attribution and asset lookup.
	Name() string

	// AssetURIs lists the remote files this enrichment needs locally before
	// it can run (empty for enrichments with no external assets).
	AssetURIs() []string

	// Apply enriches one event in place against the given registry snapshot,
	// returning any self-describing contexts to attach and any failure
	// messages. A non-empty failures slice means this call did not
	// successfully enrich the event; the dispatcher aggregates failures
	// across all enrichments for one event into a single bad row.
	Apply(ctx context.Context, reg *Registry, event *model.EnrichedEvent) (contexts []model.SelfDescribingJSON, failures []string)
}

// Registry is an immutable snapshot of every configured enrichment and the
// local file path it currently reads its assets from. A new Registry is
// built and atomically swapped in by the asset manager on every successful
// refresh (spec.md §4.3); enrich calls read one snapshot for their whole
// invocation so no call ever observes a torn (half-old, half-new) registry.
type Registry struct {
	enrichments []Enrichment
	// AssetPaths maps "<enrichment-name>|<asset-uri>" to the local file path
	// currently installed for that asset, as of this snapshot.
	AssetPaths map[string]string
}

// New builds a Registry from a fixed list of enrichments and the asset paths
// resolved for this snapshot.
func New(enrichments []Enrichment, assetPaths map[string]string) *Registry {
	if assetPaths == nil {
		assetPaths = map[string]string{}
	}
	return &Registry{enrichments: enrichments, AssetPaths: assetPaths}
}

// Enrichments returns the configured enrichment chain, in configured order.
func (r *Registry) Enrichments() []Enrichment {
	return r.enrichments
}

// AssetPath returns the local file path installed for (enrichmentName, uri)
// in this snapshot, or "" if none is installed.
func (r *Registry) AssetPath(enrichmentName, uri string) string {
	return r.AssetPaths[assetKey(enrichmentName, uri)]
}

func assetKey(enrichmentName, uri string) string {
	return enrichmentName + "|" + uri
}

// AssetKey exported for callers (the asset manager) building AssetPaths maps.
func AssetKey(enrichmentName, uri string) string {
	return assetKey(enrichmentName, uri)
}
