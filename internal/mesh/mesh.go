// Package mesh maintains the Interest Mesh: the set of 4-character CPV
// prefixes drawn from every active service profile. The mesh gates
// expensive enrichment during ingestion. It is a process-wide read-mostly
// cache: built lazily on first use, republished as an immutable snapshot,
// swapped atomically, and invalidated on profile change.
package mesh

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// PrefixLen is the CPV prefix length denoting a sector division.
const PrefixLen = 4

// ProfileSource supplies the inferred CPV code lists of active profiles.
type ProfileSource interface {
	ProfileCPVCodes(ctx context.Context) ([][]string, error)
}

type snapshot struct {
	prefixes map[string]struct{}
}

// Mesh is the interest-mesh cache.
type Mesh struct {
	source ProfileSource
	logger *zap.Logger

	mu   sync.Mutex // serialises rebuilds
	snap atomic.Pointer[snapshot]
}

// New creates an empty, unbuilt mesh.
func New(source ProfileSource, logger *zap.Logger) *Mesh {
	return &Mesh{source: source, logger: logger.Named("mesh")}
}

// CPVPrefixes returns the current prefix set, building it on first call.
func (m *Mesh) CPVPrefixes(ctx context.Context) (map[string]struct{}, error) {
	if snap := m.snap.Load(); snap != nil {
		return snap.prefixes, nil
	}
	return m.rebuild(ctx)
}

// Matches reports whether a notice belongs in the mesh. A notice with no
// CPV codes passes (neutral fallback); otherwise any shared 4-character
// prefix with an active profile suffices.
func (m *Mesh) Matches(ctx context.Context, cpvCodes []string) (bool, error) {
	if len(cpvCodes) == 0 {
		return true, nil
	}
	prefixes, err := m.CPVPrefixes(ctx)
	if err != nil {
		return false, err
	}
	for _, code := range cpvCodes {
		if len(code) < PrefixLen {
			continue
		}
		if _, ok := prefixes[code[:PrefixLen]]; ok {
			return true, nil
		}
	}
	return false, nil
}

// Invalidate drops the snapshot; the next call rebuilds from the store.
// Called whenever a profile is created or updated.
func (m *Mesh) Invalidate() {
	m.snap.Store(nil)
}

func (m *Mesh) rebuild(ctx context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Another caller may have rebuilt while we waited.
	if snap := m.snap.Load(); snap != nil {
		return snap.prefixes, nil
	}

	lists, err := m.source.ProfileCPVCodes(ctx)
	if err != nil {
		return nil, err
	}
	prefixes := make(map[string]struct{})
	for _, codes := range lists {
		for _, code := range codes {
			if len(code) >= PrefixLen {
				prefixes[code[:PrefixLen]] = struct{}{}
			}
		}
	}

	m.snap.Store(&snapshot{prefixes: prefixes})
	m.logger.Info("interest mesh rebuilt", zap.Int("prefixes", len(prefixes)))
	return prefixes, nil
}
