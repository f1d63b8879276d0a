// Package source ingests ESG records from external providers. Every
// provider is wrapped in an Adapter; the pipeline fans ingestion out across
// enabled adapters and treats each one's failure independently.
package source

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/lensiq/esg-pipeline/internal/model"
)

// Adapter fetches records for a set of companies over a date range.
type Adapter interface {
	// Name returns the canonical source name (e.g. "refinitiv").
	Name() string

	// Ingest fetches, maps, and quality-screens records. Per-company
	// failures are logged and skipped; the error return is reserved for
	// whole-source failures such as ErrSourceDisabled.
	Ingest(ctx context.Context, companyIDs []string, start, end time.Time) ([]model.Record, error)
}

// ErrSourceDisabled marks a source whose credentials were rejected. The
// pipeline skips the source for the rest of the cycle instead of retrying.
var ErrSourceDisabled = eris.New("source: disabled by auth failure")

// Registry holds the configured adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry from the given adapters. Duplicate names
// are an error: silently replacing an adapter hides misconfiguration.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		if _, dup := r.adapters[a.Name()]; dup {
			return nil, eris.Errorf("source: duplicate adapter %q", a.Name())
		}
		r.adapters[a.Name()] = a
	}
	return r, nil
}

// Get returns the named adapter, or nil.
func (r *Registry) Get(name string) Adapter {
	return r.adapters[name]
}

// Names returns the registered source names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the adapters in name order.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.adapters))
	for _, name := range r.Names() {
		out = append(out, r.adapters[name])
	}
	return out
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	return len(r.adapters)
}
