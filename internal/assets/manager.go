// Package assets implements the Asset Manager (spec.md §4.3, component C3):
// periodic background refresh of enrichment-referenced files, coordinated
// with the enrich stage through a pause/drain/swap/unpause protocol so no
// enrich call ever observes a torn registry.
package assets

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flowlattice/enrich/internal/pausegate"
	"github.com/flowlattice/enrich/internal/registry"
)

// Drainer lets the asset manager wait for every in-flight enrich call to
// finish before it swaps the registry. The pipeline runtime (C5) implements
// this; assets does not import pipeline to avoid a cycle (spec.md §9: the
// registry reference is the only shared global, isolated behind narrow
// interfaces like this one).
type Drainer interface {
	DrainInFlight(ctx context.Context)
}

// Builder constructs a fresh Registry from a fixed enrichment chain and a
// resolved asset-path map, the way spec.md §4.3 step 3 describes.
type Builder func(assetPaths map[string]string) *registry.Registry

// Manager owns the current registry reference and periodically refreshes
// the enrichment-referenced asset files behind it.
type Manager struct {
	enrichments []registryEnrichmentRef
	store       Store
	httpFetcher Fetcher
	s3Fetcher   Fetcher
	build       Builder
	gate        *pausegate.Gate
	period      time.Duration
	workDir     string
	logger      *log.Logger

	current *registry.Registry
	drainer Drainer
}

type registryEnrichmentRef struct {
	name string
	uris []string
}

// Config configures a Manager.
type Config struct {
	Store       Store
	HTTPFetcher Fetcher
	S3Fetcher   Fetcher
	Build       Builder
	Gate        *pausegate.Gate
	Period      time.Duration
	WorkDir     string
	Logger      *log.Logger
}

// EnrichmentAssets declares one enrichment's name and the asset URIs it
// needs, supplied by the caller from the parsed enrichment configuration.
type EnrichmentAssets struct {
	Name string
	URIs []string
}

// NewManager constructs a Manager. Defaults match spec.md §4.3/§5: a 7-day
// refresh period and a 30s-per-file fetch timeout (carried by the fetchers).
func NewManager(enrichments []EnrichmentAssets, cfg Config) (*Manager, error) {
	if cfg.Build == nil {
		return nil, fmt.Errorf("asset manager: Build is required")
	}
	if cfg.Gate == nil {
		return nil, fmt.Errorf("asset manager: Gate is required")
	}
	if cfg.Store == nil {
		cfg.Store = NewMemStore()
	}
	if cfg.Period <= 0 {
		cfg.Period = 7 * 24 * time.Hour
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stdout, "[assets] ", log.LstdFlags)
	}

	refs := make([]registryEnrichmentRef, 0, len(enrichments))
	for _, e := range enrichments {
		refs = append(refs, registryEnrichmentRef{name: e.Name, uris: e.URIs})
	}

	return &Manager{
		enrichments: refs,
		store:       cfg.Store,
		httpFetcher: cfg.HTTPFetcher,
		s3Fetcher:   cfg.S3Fetcher,
		build:       cfg.Build,
		gate:        cfg.Gate,
		period:      cfg.Period,
		workDir:     cfg.WorkDir,
		logger:      cfg.Logger,
	}, nil
}

// SetDrainer wires the pipeline runtime's in-flight drain hook. Must be
// called before Run.
func (m *Manager) SetDrainer(d Drainer) {
	m.drainer = d
}

// Registry returns the current registry snapshot. Safe for concurrent use;
// callers must treat the returned pointer as immutable.
func (m *Manager) Registry() *registry.Registry {
	return m.current
}

// InitialLoad fetches every configured asset once and builds the first
// registry. Failure here is fatal and aborts startup (spec.md §4.3).
func (m *Manager) InitialLoad(ctx context.Context) error {
	paths, err := m.fetchAll(ctx)
	if err != nil {
		return fmt.Errorf("asset manager initial load: %w", err)
	}
	m.current = m.build(paths)
	return nil
}

// Run starts the periodic refresh loop and blocks until ctx is cancelled.
// Run in a goroutine alongside the pipeline's enrich and reporting streams
// (spec.md §4.5). The loop shape — ticker, select-based cancellation — is
// grounded on kernel/internal/audit/streamer.go's Run.
func (m *Manager) Run(ctx context.Context) {
	if m.current == nil {
		m.logger.Printf("refresh loop started before initial load; skipping until one succeeds")
	}
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Printf("stopping")
			return
		case <-ticker.C:
			if err := m.refreshCycle(ctx); err != nil {
				m.logger.Printf("refresh cycle failed, previous registry retained: %v", err)
			}
		}
	}
}

// RefreshNow runs one refresh cycle immediately, out-of-band from the
// periodic ticker in Run. Used by the admin surface's force-refresh endpoint
// (SPEC_FULL.md §7).
func (m *Manager) RefreshNow(ctx context.Context) error {
	return m.refreshCycle(ctx)
}

// refreshCycle implements spec.md §4.3's six-step coherent swap. The pause
// signal is cleared on every exit path via defer, matching the spec's
// explicit requirement.
func (m *Manager) refreshCycle(ctx context.Context) (err error) {
	paths, fetchErr := m.fetchAll(ctx)
	if fetchErr != nil {
		// Entire cycle is abandoned before ever touching the pause gate:
		// the registry continues to use the previous files untouched.
		return fetchErr
	}

	if !m.changed(paths) {
		return nil
	}

	m.gate.Assert()
	defer m.gate.Release()

	if m.drainer != nil {
		m.drainer.DrainInFlight(ctx)
	}

	next := m.build(paths)
	previous := m.current
	m.current = next

	m.deleteObsolete(previous, next)
	return nil
}

// changed reports whether any resolved path differs from what's currently
// installed, to avoid an unnecessary pause/drain/swap when nothing moved.
func (m *Manager) changed(paths map[string]string) bool {
	if m.current == nil {
		return true
	}
	for k, v := range paths {
		if m.current.AssetPaths[k] != v {
			return true
		}
	}
	return false
}

func (m *Manager) fetchAll(ctx context.Context) (map[string]string, error) {
	paths := map[string]string{}
	for _, e := range m.enrichments {
		for _, uri := range e.uris {
			path, err := m.fetchOne(ctx, e.name, uri)
			if err != nil {
				return nil, fmt.Errorf("fetch asset %s for %s: %w", uri, e.name, err)
			}
			paths[registry.AssetKey(e.name, uri)] = path
		}
	}
	return paths, nil
}

func (m *Manager) fetchOne(ctx context.Context, enrichmentName, uri string) (string, error) {
	prior, err := m.store.Get(ctx, enrichmentName, uri)
	fetcher, ferr := FetcherFor(uri, m.httpFetcher, m.s3Fetcher)
	if ferr != nil {
		return "", ferr
	}

	localPath, hash, ferr := fetcher.Fetch(ctx, uri, m.workDir)
	if ferr != nil {
		return "", ferr
	}

	if err == nil && prior.ContentHash == hash {
		// Unchanged content: drop the freshly downloaded duplicate and keep
		// using the already-installed file.
		if prior.LocalPath != localPath {
			_ = os.Remove(localPath)
		}
		return prior.LocalPath, nil
	}

	// New content is installed under a content-specific name, so the file
	// the current registry reads is never overwritten and changed() sees a
	// different path for it.
	ext := filepath.Ext(localPath)
	installed := strings.TrimSuffix(localPath, ext) + "-" + hash + ext
	if rerr := os.Rename(localPath, installed); rerr != nil {
		return "", fmt.Errorf("install asset %s: %w", uri, rerr)
	}
	localPath = installed

	if uerr := m.store.Upsert(ctx, State{
		EnrichmentName: enrichmentName,
		URI:            uri,
		LocalPath:      localPath,
		ContentHash:    hash,
	}); uerr != nil {
		m.logger.Printf("failed to persist asset state for %s: %v", uri, uerr)
	}
	return localPath, nil
}

// deleteObsolete removes local files that were installed by the previous
// registry and are no longer referenced by the new one (spec.md §4.3 step 5).
func (m *Manager) deleteObsolete(previous, next *registry.Registry) {
	if previous == nil {
		return
	}
	for key, path := range previous.AssetPaths {
		if next.AssetPaths[key] == path {
			continue
		}
		stillUsed := false
		for _, p := range next.AssetPaths {
			if p == path {
				stillUsed = true
				break
			}
		}
		if stillUsed {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.logger.Printf("failed to delete obsolete asset file %s: %v", path, err)
		}
	}
}
