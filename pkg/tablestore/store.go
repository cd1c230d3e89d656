// Package tablestore persists the products and sales tables as parquet files
// grouped into immutable generations.
//
// Layout under the data directory:
//
//	CURRENT                       name of the live generation
//	generations/<id>/products.parquet
//	generations/<id>/sales.parquet
//	generations/<id>/manifest.json
//
// Save writes a complete generation into a staging directory, renames it
// into generations/ and only then swaps CURRENT, so a reader resolving
// CURRENT always finds a fully written pair of tables.
package tablestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/eunmann/shopsight/internal/logctx"
	"github.com/eunmann/shopsight/pkg/model"
	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
)

const (
	currentFile    = "CURRENT"
	generationsDir = "generations"
	stagingPrefix  = ".staging-"
	productsFile   = "products.parquet"
	salesFile      = "sales.parquet"
)

// Options configures a Store.
type Options struct {
	// KeepGenerations is how many generations survive pruning, including the
	// current one. Values below 1 are treated as 1.
	KeepGenerations int
}

// Store reads and writes table generations under one directory. Save is
// intended for a single writer; Load is safe to call concurrently with it.
type Store struct {
	dir  string
	keep int
	now  func() time.Time
}

// Open returns a Store rooted at dir, creating it if needed.
func Open(dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, generationsDir), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data dir: %w", model.ErrPersistence, err)
	}
	keep := max(opts.KeepGenerations, 1)
	return &Store{dir: dir, keep: keep, now: time.Now}, nil
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

// SaveInput is one run's output.
type SaveInput struct {
	Products   []model.Product
	Sales      []model.SalesRow
	Provenance model.Provenance
	RunID      string
	Note       string
}

// Save persists a new generation and makes it current. Products are first
// restricted to article ids present in Sales. Any failure wraps
// model.ErrPersistence and leaves the previous generation current.
func (s *Store) Save(ctx context.Context, in SaveInput) (*Manifest, error) {
	if !in.Provenance.Valid() {
		return nil, fmt.Errorf("%w: unknown provenance %q", model.ErrPersistence, in.Provenance)
	}
	products := FilterProducts(in.Products, in.Sales)
	sales := sortedSales(in.Sales)

	salesRecs := make([]salesRecord, len(sales))
	for i, r := range sales {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrPersistence, err)
		}
		rec, err := toSalesRecord(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrPersistence, err)
		}
		salesRecs[i] = rec
	}
	productRecs := make([]productRecord, len(products))
	for i, p := range products {
		productRecs[i] = toProductRecord(p)
	}

	created := s.now().UTC()
	id := created.Format("20060102T150405.000000Z") + "-" + uuid.NewString()[:8]
	m := &Manifest{
		Version:    ManifestVersion,
		Generation: id,
		RunID:      in.RunID,
		CreatedAt:  created,
		Provenance: in.Provenance,
		Note:       in.Note,
		Products:   len(products),
		Sales:      len(sales),
	}
	if len(sales) > 0 {
		first, last := dateRange(sales)
		m.FirstDate, m.LastDate = &first, &last
	}

	if err := s.writeGeneration(id, productRecs, salesRecs, m); err != nil {
		return nil, fmt.Errorf("%w: generation %s: %w", model.ErrPersistence, id, err)
	}

	log := logctx.FromContext(ctx)
	log.Info().
		Str("generation", id).
		Str("provenance", string(in.Provenance)).
		Int("products", len(products)).
		Int("dropped_products", len(in.Products)-len(products)).
		Int("sales", len(sales)).
		Msg("table generation saved")

	if err := s.prune(id); err != nil {
		log.Warn().Err(err).Msg("prune old generations")
	}
	return m, nil
}

func (s *Store) writeGeneration(id string, products []productRecord, sales []salesRecord, m *Manifest) error {
	gens := filepath.Join(s.dir, generationsDir)
	staging := filepath.Join(gens, stagingPrefix+id)
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	renamed := false
	defer func() {
		if !renamed {
			os.RemoveAll(staging)
		}
	}()

	if err := writeTable(filepath.Join(staging, productsFile), products); err != nil {
		return fmt.Errorf("write products: %w", err)
	}
	if err := writeTable(filepath.Join(staging, salesFile), sales); err != nil {
		return fmt.Errorf("write sales: %w", err)
	}
	if err := writeManifest(staging, m); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := syncDir(staging); err != nil {
		return fmt.Errorf("sync staging dir: %w", err)
	}

	final := filepath.Join(gens, id)
	if err := os.Rename(staging, final); err != nil {
		return fmt.Errorf("rename generation: %w", err)
	}
	renamed = true
	if err := syncDir(gens); err != nil {
		return fmt.Errorf("sync generations dir: %w", err)
	}
	if err := writeAtomic(filepath.Join(s.dir, currentFile), []byte(id+"\n")); err != nil {
		return fmt.Errorf("swap %s: %w", currentFile, err)
	}
	return nil
}

func writeTable[T any](path string, rows []T) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := parquet.NewGenericWriter[T](f, parquet.Compression(&parquet.Snappy))
	if _, err := w.Write(rows); err != nil {
		f.Close()
		return err
	}
	if err := w.Close(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Current returns the live generation id, or model.ErrNotFound when no run
// has completed.
func (s *Store) Current() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, currentFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: no table generation in %s", model.ErrNotFound, s.dir)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", currentFile, err)
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", fmt.Errorf("%w: empty %s", model.ErrNotFound, currentFile)
	}
	return id, nil
}

// Generation is a loaded pair of tables.
type Generation struct {
	Manifest *Manifest
	Products []model.Product
	Sales    []model.SalesRow
}

// Load reads and verifies the current generation. It fails with
// model.ErrNotFound if no run has completed.
func (s *Store) Load() (*Generation, error) {
	// A concurrent Save may prune the generation CURRENT named a moment ago;
	// resolve CURRENT again once in that case.
	var lastErr error
	for range 2 {
		id, err := s.Current()
		if err != nil {
			return nil, err
		}
		g, err := s.LoadGeneration(id)
		if err == nil {
			return g, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// LoadGeneration reads and verifies one generation by id.
func (s *Store) LoadGeneration(id string) (*Generation, error) {
	dir := filepath.Join(s.dir, generationsDir, id)
	m, err := readManifest(dir)
	if err != nil {
		return nil, fmt.Errorf("generation %s: %w", id, err)
	}
	if err := verifyManifest(dir, m); err != nil {
		return nil, fmt.Errorf("generation %s: %w", id, err)
	}

	productRecs, err := parquet.ReadFile[productRecord](filepath.Join(dir, productsFile))
	if err != nil {
		return nil, fmt.Errorf("generation %s: read products: %w", id, err)
	}
	salesRecs, err := parquet.ReadFile[salesRecord](filepath.Join(dir, salesFile))
	if err != nil {
		return nil, fmt.Errorf("generation %s: read sales: %w", id, err)
	}

	g := &Generation{
		Manifest: m,
		Products: make([]model.Product, len(productRecs)),
		Sales:    make([]model.SalesRow, len(salesRecs)),
	}
	for i, r := range productRecs {
		g.Products[i] = r.product()
	}
	for i, r := range salesRecs {
		g.Sales[i] = r.row()
	}
	return g, nil
}

// LoadProducts returns the current products table.
func (s *Store) LoadProducts() ([]model.Product, error) {
	g, err := s.Load()
	if err != nil {
		return nil, err
	}
	return g.Products, nil
}

// LoadSales returns the current sales table.
func (s *Store) LoadSales() ([]model.SalesRow, error) {
	g, err := s.Load()
	if err != nil {
		return nil, err
	}
	return g.Sales, nil
}

// Manifest returns the manifest of the current generation without reading
// the tables.
func (s *Store) Manifest() (*Manifest, error) {
	id, err := s.Current()
	if err != nil {
		return nil, err
	}
	return readManifest(filepath.Join(s.dir, generationsDir, id))
}

// Generations lists committed generation ids, oldest first.
func (s *Store) Generations() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, generationsDir))
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), stagingPrefix) {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// prune removes the oldest generations beyond the keep limit, plus any
// staging directories left by interrupted saves. current is never removed.
func (s *Store) prune(current string) error {
	gens := filepath.Join(s.dir, generationsDir)
	entries, err := os.ReadDir(gens)
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), stagingPrefix) {
			errs = append(errs, os.RemoveAll(filepath.Join(gens, e.Name())))
		}
	}
	ids, err := s.Generations()
	if err != nil {
		return err
	}
	for len(ids) > s.keep {
		if ids[0] != current {
			errs = append(errs, os.RemoveAll(filepath.Join(gens, ids[0])))
		}
		ids = ids[1:]
	}
	return errors.Join(errs...)
}

// FilterProducts restricts products to article ids that have at least one
// sales row, de-duplicated and sorted by article_id.
func FilterProducts(products []model.Product, sales []model.SalesRow) []model.Product {
	withSales := make(map[string]struct{}, len(products))
	for _, r := range sales {
		withSales[r.ArticleID] = struct{}{}
	}
	out := make([]model.Product, 0, len(withSales))
	for _, p := range products {
		if _, ok := withSales[p.ArticleID]; !ok {
			continue
		}
		delete(withSales, p.ArticleID)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ArticleID < out[j].ArticleID })
	return out
}

func sortedSales(rows []model.SalesRow) []model.SalesRow {
	out := make([]model.SalesRow, len(rows))
	copy(out, rows)
	model.SortSalesRows(out)
	return out
}

func dateRange(rows []model.SalesRow) (first, last model.Date) {
	first, last = rows[0].Date, rows[0].Date
	for _, r := range rows[1:] {
		first, last = min(first, r.Date), max(last, r.Date)
	}
	return first, last
}
