package pipeline

import (
	"context"
	"errors"

	"github.com/eunmann/shopsight/internal/logctx"
	"github.com/eunmann/shopsight/internal/metrics"
	"github.com/eunmann/shopsight/pkg/dataset"
	"github.com/eunmann/shopsight/pkg/humanfmt"
	"github.com/eunmann/shopsight/pkg/logging"
	"github.com/rs/zerolog"
)

// meteredScan wraps one scanner pass, reporting progress and batch metrics
// as ranker and salesagg drain it. keep, when set, reports whether a row
// survives the pass's filter; otherwise every valid row is kept.
type meteredScan struct {
	name     string
	sc       *dataset.Scanner
	keep     func(id string) bool
	progress *logging.PassProgress
	kept     int64
}

func (p *Pipeline) meter(ctx context.Context, name string, sc *dataset.Scanner, keep func(string) bool) *meteredScan {
	logger := logctx.FromContext(ctx).With().Str("pass", name).Logger()
	return &meteredScan{
		name:     name,
		sc:       sc,
		keep:     keep,
		progress: logging.NewPassProgress(logger, name, p.cfg.ProgressInterval),
	}
}

// Next implements ranker.BatchSource and salesagg.BatchSource.
func (m *meteredScan) Next(ctx context.Context) (*dataset.Batch, error) {
	b, err := m.sc.Next(ctx)
	if err != nil {
		return nil, err
	}
	kept := b.Len()
	if m.keep != nil {
		kept = 0
		for _, id := range b.ArticleIDs[:b.Len()] {
			if m.keep(id) {
				kept++
			}
		}
	}
	m.kept += int64(kept)
	m.progress.RecordBatch(b.Len(), kept, b.Skipped)
	metrics.RecordBatch(m.name, kept, b.Len()-kept, b.Skipped)
	return b, nil
}

// finish closes the scanner and logs the pass summary with a heap sample.
func (p *Pipeline) finish(ctx context.Context, m *meteredScan) dataset.ScanStats {
	_ = m.sc.Close()
	stats := m.sc.Stats()
	heap := p.heap.Observe()
	m.progress.Done(func(e *zerolog.Event) {
		e.Int("files", stats.Files).
			Int("files_skipped", stats.FilesSkipped).
			Str("heap_alloc", humanfmt.Bytes(int64(heap.Alloc))).
			Uint32("num_gc", heap.NumGC)
	})
	// Aggregation state lives beside the batch, so only warn well past the budget.
	if budget := uint64(float64(p.memory().TotalBytes) * p.cfg.MemoryFraction); budget > 0 && heap.Alloc > 2*budget {
		logger := logctx.FromContext(ctx)
		logger.Warn().
			Str("pass", m.name).
			Str("heap_alloc", humanfmt.Bytes(int64(heap.Alloc))).
			Str("budget", humanfmt.Bytes(int64(budget))).
			Msg("heap well above batch memory budget")
	}
	return stats
}

// aborted reports whether err or ctx means the run was cancelled rather than
// a source being unavailable. Cancelled runs never fall back.
func aborted(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
