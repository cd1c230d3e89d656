// Package query answers product lookups, text search and sales questions
// from the current table generation.
//
// The Service holds an immutable Snapshot behind an atomic pointer. Reload
// builds a new snapshot from the table store and swaps it in; requests that
// already hold the previous snapshot finish against it.
package query

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/eunmann/shopsight/internal/logctx"
	"github.com/eunmann/shopsight/internal/metrics"
	"github.com/eunmann/shopsight/pkg/model"
	"github.com/eunmann/shopsight/pkg/tablestore"
)

// Loader reads the current table generation.
type Loader interface {
	Load() (*tablestore.Generation, error)
}

// Service serves queries from the latest loaded snapshot.
type Service struct {
	store Loader
	snap  atomic.Pointer[Snapshot]
}

// New returns a Service with no snapshot loaded; call Reload.
func New(store Loader) *Service {
	return &Service{store: store}
}

// Reload loads the current generation and swaps it in. On failure the
// previous snapshot, if any, stays active.
func (s *Service) Reload(ctx context.Context) (*Snapshot, error) {
	log := logctx.FromContext(ctx)
	g, err := s.store.Load()
	if err != nil {
		metrics.RecordReload(err)
		return nil, fmt.Errorf("reload tables: %w", err)
	}
	snap, err := NewSnapshot(g)
	if err != nil {
		metrics.RecordReload(err)
		return nil, fmt.Errorf("reload tables: %w", err)
	}
	prev := s.snap.Swap(snap)
	metrics.RecordReload(nil)

	e := log.Info().
		Str("generation", g.Manifest.Generation).
		Str("provenance", string(g.Manifest.Provenance)).
		Int("products", len(g.Products)).
		Int("sales_rows", len(g.Sales))
	if prev != nil {
		e = e.Str("previous", prev.manifest.Generation)
	}
	e.Msg("snapshot loaded")
	return snap, nil
}

// Current returns the active snapshot, or model.ErrNotFound before the first
// successful Reload.
func (s *Service) Current() (*Snapshot, error) {
	snap := s.snap.Load()
	if snap == nil {
		return nil, fmt.Errorf("%w: no table generation loaded", model.ErrNotFound)
	}
	return snap, nil
}

// Product looks up one product.
func (s *Service) Product(id string) (model.Product, error) {
	snap, err := s.Current()
	if err != nil {
		return model.Product{}, err
	}
	return snap.Product(id)
}

// Search runs a substring search.
func (s *Service) Search(term string, limit int) ([]model.Product, error) {
	snap, err := s.Current()
	if err != nil {
		return nil, err
	}
	return snap.Search(term, limit), nil
}

// SalesHistory returns a window of daily sales.
func (s *Service) SalesHistory(id string, days int) (History, error) {
	snap, err := s.Current()
	if err != nil {
		return History{}, err
	}
	return snap.SalesHistory(id, days)
}

// SalesSummary summarizes recent sales.
func (s *Service) SalesSummary(id string) (Summary, error) {
	snap, err := s.Current()
	if err != nil {
		return Summary{}, err
	}
	return snap.SalesSummary(id)
}
