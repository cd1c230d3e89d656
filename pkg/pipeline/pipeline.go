// Package pipeline runs one ingest: locate the raw files, rank products by
// revenue, aggregate daily sales for the selected products and persist a new
// table generation.
//
// When transactions cannot be read the run falls back to synthetic sales over
// the real catalog; when the catalog is unavailable too it uses the built-in
// demo catalog. The fallback taken is recorded as the generation's
// provenance so synthetic data is never indistinguishable from real data.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eunmann/shopsight/internal/logctx"
	"github.com/eunmann/shopsight/internal/metrics"
	"github.com/eunmann/shopsight/pkg/dataset"
	"github.com/eunmann/shopsight/pkg/humanfmt"
	"github.com/eunmann/shopsight/pkg/model"
	"github.com/eunmann/shopsight/pkg/ranker"
	"github.com/eunmann/shopsight/pkg/salesagg"
	"github.com/eunmann/shopsight/pkg/synth"
	"github.com/eunmann/shopsight/pkg/sysmem"
	"github.com/eunmann/shopsight/pkg/tablestore"
	"github.com/google/uuid"
)

// Rough in-memory cost of one projected transaction row: the article_id
// string, a Date and a decimal.Decimal with its big.Int.
const (
	bytesPerRow  = 160
	minBatchRows = 1_000
)

// Config tunes a run.
type Config struct {
	BatchSize         int
	MemoryFraction    float64
	TargetCount       int
	PerCategoryQuota  int
	SyntheticProducts int
	SyntheticDays     int
	// SyntheticEnd is the last day of synthetic series; zero means today.
	SyntheticEnd     model.Date
	Seed             int64
	TolerateMissing  bool
	ProgressInterval time.Duration
}

// Report describes a finished run.
type Report struct {
	RunID      string
	Method     model.Provenance
	Note       string
	Generation string

	BatchSize        int
	CatalogProducts  int
	TransactionFiles int
	FilesSkipped     int
	Rows             int64
	SkippedRows      int64
	KeptRows         int64
	Selected         int
	Categories       int

	Products int
	Sales    int
	Duration time.Duration
	// PeakHeap is the largest heap allocation sampled between passes.
	PeakHeap uint64
}

// Pipeline wires sources to the table store.
type Pipeline struct {
	cfg     Config
	sources Sources
	store   *tablestore.Store
	memory  func() sysmem.Result
	heap    sysmem.PeakTracker
}

// New returns a Pipeline. Zero-valued tuning fields take package defaults.
func New(cfg Config, sources Sources, store *tablestore.Store) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = dataset.DefaultBatchSize
	}
	if cfg.SyntheticEnd == 0 {
		cfg.SyntheticEnd = model.DateOf(time.Now().UTC())
	}
	if cfg.ProgressInterval == 0 {
		cfg.ProgressInterval = 5 * time.Second
	}
	return &Pipeline{cfg: cfg, sources: sources, store: store, memory: sysmem.Total}
}

// tables is the output of one run before persistence.
type tables struct {
	products []model.Product
	sales    []model.SalesRow
}

// Run executes the pipeline once. Source problems degrade to a fallback;
// schema mismatches, persistence failures and cancellation abort the run
// and leave the previous generation current.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	rep := &Report{RunID: uuid.NewString()}
	ctx = logctx.WithRun(ctx, rep.RunID)
	log := logctx.FromContext(ctx)
	log.Info().Msg("ingest started")

	out, err := p.build(ctx, rep)
	if err != nil {
		return rep, err
	}
	if err := ctx.Err(); err != nil {
		return rep, fmt.Errorf("ingest aborted before save: %w", err)
	}

	m, err := p.store.Save(ctx, tablestore.SaveInput{
		Products:   out.products,
		Sales:      out.sales,
		Provenance: rep.Method,
		RunID:      rep.RunID,
		Note:       rep.Note,
	})
	if err != nil {
		return rep, err
	}
	rep.Generation = m.Generation
	rep.Products, rep.Sales = m.Products, m.Sales
	rep.Duration = time.Since(start)
	rep.PeakHeap = p.heap.Peak()

	metrics.RecordRun(string(rep.Method), rep.Duration)
	metrics.RecordPersisted(m.Products, m.Sales)
	log.Info().
		Str("method", string(rep.Method)).
		Str("generation", rep.Generation).
		Int("products", rep.Products).
		Int("sales_rows", rep.Sales).
		Str("elapsed", humanfmt.Duration(rep.Duration)).
		Msg("ingest complete")
	return rep, nil
}

func (p *Pipeline) build(ctx context.Context, rep *Report) (tables, error) {
	catalogPath, err := p.sources.Catalog(ctx)
	if err != nil {
		if aborted(ctx, err) || !errors.Is(err, model.ErrSourceUnavailable) {
			return tables{}, err
		}
		return p.demo(ctx, rep, "catalog unavailable: "+err.Error()), nil
	}

	catalog, err := dataset.ReadProducts(catalogPath)
	switch {
	case err != nil && aborted(ctx, err):
		return tables{}, err
	case errors.Is(err, model.ErrSourceUnavailable):
		return p.demo(ctx, rep, "catalog unreadable: "+err.Error()), nil
	case err != nil:
		return tables{}, err
	case len(catalog) == 0:
		return p.demo(ctx, rep, "catalog is empty"), nil
	}
	rep.CatalogProducts = len(catalog)
	logger := logctx.FromContext(ctx)
	logger.Info().
		Str("file", catalogPath).
		Int("products", len(catalog)).
		Msg("catalog loaded")

	files, err := p.sources.Transactions(ctx)
	if err != nil {
		if aborted(ctx, err) || !errors.Is(err, model.ErrSourceUnavailable) {
			return tables{}, err
		}
		return p.synthetic(ctx, rep, catalog, model.ProvenanceSynthetic, "transactions unavailable: "+err.Error()), nil
	}

	sales, err := p.aggregate(ctx, rep, catalog, files)
	if errors.Is(err, model.ErrSourceUnavailable) && !aborted(ctx, err) {
		return p.synthetic(ctx, rep, catalog, model.ProvenanceSynthetic, "transactions unreadable: "+err.Error()), nil
	}
	if err != nil {
		return tables{}, err
	}
	rep.Method = model.ProvenanceAggregated
	return tables{products: catalog, sales: sales}, nil
}

// aggregate runs the revenue pass, selects products, then runs the
// aggregation pass restricted to the selection.
func (p *Pipeline) aggregate(ctx context.Context, rep *Report, catalog []model.Product, files []string) ([]model.SalesRow, error) {
	src := dataset.Source{
		Files:           files,
		BatchSize:       p.batchSize(ctx),
		TolerateMissing: p.cfg.TolerateMissing,
	}
	rep.BatchSize = src.BatchSize
	rep.TransactionFiles = len(files)

	rank := p.meter(ctx, "rank", src.Scan(dataset.ColPrice), nil)
	sel, err := ranker.Rank(ctx, rank, catalog, ranker.Options{
		TargetCount:      p.cfg.TargetCount,
		PerCategoryQuota: p.cfg.PerCategoryQuota,
	})
	if err != nil {
		_ = rank.sc.Close()
		return nil, err
	}
	stats := p.finish(ctx, rank)
	rep.Rows, rep.SkippedRows, rep.FilesSkipped = stats.Rows, stats.Skipped, stats.FilesSkipped
	if stats.Files == 0 {
		return nil, fmt.Errorf("%w: none of %d transaction files could be read", model.ErrSourceUnavailable, len(files))
	}

	rep.Selected, rep.Categories = len(sel.IDs), sel.Categories
	log := logctx.FromContext(ctx)
	log.Info().
		Int("candidates", sel.Candidates).
		Int("categories", sel.Categories).
		Int("from_quota", sel.FromQuota).
		Int("from_top_up", sel.FromTopUp).
		Int("selected", len(sel.IDs)).
		Msg("products selected")
	if len(sel.IDs) == 0 {
		log.Warn().Msg("no catalog product has positive revenue; persisting empty tables")
		return nil, nil
	}

	selected := sel.Set()
	inSelection := func(id string) bool {
		_, ok := selected[id]
		return ok
	}
	agg := p.meter(ctx, "aggregate", src.Scan(dataset.ColDate|dataset.ColPrice), inSelection)
	rows, err := salesagg.Aggregate(ctx, agg, selected)
	if err != nil {
		_ = agg.sc.Close()
		return nil, err
	}
	p.finish(ctx, agg)
	rep.KeptRows = agg.kept
	return rows, nil
}

// batchSize caps the configured batch size by available memory.
func (p *Pipeline) batchSize(ctx context.Context) int {
	mem := p.memory()
	n := sysmem.BatchBudget(mem.TotalBytes, p.cfg.BatchSize, bytesPerRow, p.cfg.MemoryFraction, min(p.cfg.BatchSize, minBatchRows))
	if n < p.cfg.BatchSize {
		logger := logctx.FromContext(ctx)
		logger.Info().
			Int("configured", p.cfg.BatchSize).
			Int("effective", n).
			Str("memory", humanfmt.Bytes(int64(mem.TotalBytes))).
			Bool("memory_detected", mem.Detected).
			Msg("batch size capped by memory")
	}
	return n
}

func (p *Pipeline) synthetic(ctx context.Context, rep *Report, catalog []model.Product, method model.Provenance, note string) tables {
	ids := synth.IDs(catalog, p.cfg.SyntheticProducts)
	gen := synth.Generator{Days: p.cfg.SyntheticDays, End: p.cfg.SyntheticEnd, Seed: p.cfg.Seed}
	rep.Method, rep.Note = method, note
	rep.Selected = len(ids)

	logger := logctx.FromContext(ctx)
	logger.Warn().
		Str("method", string(method)).
		Str("reason", note).
		Int("products", len(ids)).
		Int("days", p.cfg.SyntheticDays).
		Msg("falling back to synthetic sales")
	return tables{products: catalog, sales: gen.Generate(ids)}
}

func (p *Pipeline) demo(ctx context.Context, rep *Report, note string) tables {
	catalog := synth.DemoCatalog()
	rep.CatalogProducts = len(catalog)
	return p.synthetic(ctx, rep, catalog, model.ProvenanceSyntheticDemo, note)
}

// String renders the report for operators.
func (r *Report) String() string {
	s := fmt.Sprintf("method=%s generation=%s products=%d sales_rows=%d", r.Method, r.Generation, r.Products, r.Sales)
	if r.Note != "" {
		s += fmt.Sprintf(" note=%q", r.Note)
	}
	return s
}
