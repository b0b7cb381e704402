// Package pathmap translates file paths reported by the metadata service
// into paths valid on this host. The two processes often see the same
// library through different mounts, so prefix rewriting bridges them.
package pathmap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Translation errors
var (
	// ErrNotMapped indicates no mapping prefix matched the external path
	// and the path does not exist locally as-is
	ErrNotMapped = errors.New("path not reachable through any mapping")
)

// Mapping rewrites one external prefix to a local one
type Mapping struct {
	ExternalPrefix string
	LocalPrefix    string
}

// Mapper rewrites external paths via longest-prefix match. Safe for
// concurrent use; the mapping table can be replaced at runtime.
type Mapper struct {
	mu       sync.RWMutex
	mappings []Mapping // sorted longest external prefix first
}

// NewMapper creates a mapper with the given initial table
func NewMapper(mappings []Mapping) *Mapper {
	m := &Mapper{}
	m.SetMappings(mappings)
	return m
}

// SetMappings replaces the mapping table
func (m *Mapper) SetMappings(mappings []Mapping) {
	sorted := make([]Mapping, len(mappings))
	copy(sorted, mappings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].ExternalPrefix) > len(sorted[j].ExternalPrefix)
	})

	m.mu.Lock()
	m.mappings = sorted
	m.mu.Unlock()
}

// Mappings returns a copy of the current table
func (m *Mapper) Mappings() []Mapping {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Mapping, len(m.mappings))
	copy(out, m.mappings)
	return out
}

// Translate rewrites externalPath to a local path. The longest matching
// external prefix wins. When no prefix matches, the path is accepted
// as-is if it exists locally, otherwise ErrNotMapped.
func (m *Mapper) Translate(externalPath string) (string, error) {
	if externalPath == "" {
		return "", fmt.Errorf("%w: empty path", ErrNotMapped)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, mapping := range m.mappings {
		if !hasPathPrefix(externalPath, mapping.ExternalPrefix) {
			continue
		}
		rest := strings.TrimPrefix(externalPath, mapping.ExternalPrefix)
		rest = strings.TrimPrefix(rest, "/")
		return filepath.Join(mapping.LocalPrefix, rest), nil
	}

	if _, err := os.Stat(externalPath); err == nil {
		return externalPath, nil
	}

	return "", fmt.Errorf("%w: %s", ErrNotMapped, externalPath)
}

// hasPathPrefix matches on path boundaries so "/media/tv" never matches
// "/media/tvarchive".
func hasPathPrefix(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	prefix = strings.TrimSuffix(prefix, "/")
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	rest := path[len(prefix):]
	return rest == "" || strings.HasPrefix(rest, "/")
}
