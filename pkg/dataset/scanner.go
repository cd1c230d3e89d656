// Package dataset reads raw transaction files in bounded, column-projected
// batches and loads the product catalog.
//
// A Source is re-openable: every Scan starts a fresh pass over the same
// files, which lets the ranking and aggregation passes stream the corpus
// independently without holding it in memory.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/eunmann/shopsight/internal/logctx"
	"github.com/eunmann/shopsight/pkg/model"
	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"
)

// DefaultBatchSize bounds rows per batch when a Source leaves it unset.
const DefaultBatchSize = 100_000

// Column selects transaction columns to materialize.
type Column uint8

const (
	ColArticleID Column = 1 << iota
	ColDate
	ColPrice
)

// Source column names per logical column.
var (
	articleIDNames = []string{"article_id"}
	dateNames      = []string{"t_dat", "date"}
	priceNames     = []string{"price"}
)

// Source is a set of transaction files sharing one column layout.
type Source struct {
	Files     []string
	BatchSize int
	// TolerateMissing skips files that cannot be opened instead of failing
	// the pass. Schema mismatches always fail.
	TolerateMissing bool
}

// Batch holds up to BatchSize valid rows from a single file. Only the
// projected column slices are populated; all populated slices have length
// Len(). A Batch is reused by the next call to Scanner.Next.
type Batch struct {
	File       string
	ArticleIDs []string
	Dates      []model.Date
	Prices     []decimal.Decimal
	// Skipped counts rows in this batch dropped for a null or malformed
	// projected value.
	Skipped int
	n       int
}

// NewBatch builds a batch from parallel column slices. Pass nil for columns
// that are not projected.
func NewBatch(ids []string, dates []model.Date, prices []decimal.Decimal) *Batch {
	return &Batch{ArticleIDs: ids, Dates: dates, Prices: prices, n: len(ids)}
}

// Len returns the number of valid rows.
func (b *Batch) Len() int { return b.n }

func (b *Batch) reset(file string) {
	b.File = file
	b.ArticleIDs = b.ArticleIDs[:0]
	b.Dates = b.Dates[:0]
	b.Prices = b.Prices[:0]
	b.Skipped = 0
	b.n = 0
}

// ScanStats summarizes a pass.
type ScanStats struct {
	Files        int
	FilesSkipped int
	Rows         int64
	Skipped      int64
}

// Scanner is one pass over a Source. It is not safe for concurrent use.
type Scanner struct {
	src     Source
	cols    Column
	fileIdx int
	cur     *txReader
	batch   Batch
	stats   ScanStats
}

// Scan starts a new pass materializing cols. ColArticleID is always included.
func (s Source) Scan(cols Column) *Scanner {
	if s.BatchSize <= 0 {
		s.BatchSize = DefaultBatchSize
	}
	return &Scanner{src: s, cols: cols | ColArticleID}
}

// Stats returns counters accumulated so far.
func (s *Scanner) Stats() ScanStats { return s.stats }

// Next returns the next batch, or io.EOF when every file is exhausted.
// Batches never span files.
func (s *Scanner) Next(ctx context.Context) (*Batch, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.cur == nil {
			if s.fileIdx >= len(s.src.Files) {
				return nil, io.EOF
			}
			path := s.src.Files[s.fileIdx]
			s.fileIdx++
			r, err := openTxReader(path, s.cols)
			if err != nil {
				if s.src.TolerateMissing && errors.Is(err, model.ErrSourceUnavailable) {
					logger := logctx.FromContext(ctx)
					logger.Warn().Err(err).Str("file", path).Msg("skipping unreadable transaction file")
					s.stats.FilesSkipped++
					continue
				}
				return nil, err
			}
			s.cur = r
			s.stats.Files++
		}

		s.batch.reset(s.cur.path)
		done, err := s.cur.fill(&s.batch, s.src.BatchSize)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("read %s: %w", s.batch.File, err)
		}
		if done {
			s.closeCurrent()
		}
		s.stats.Rows += int64(s.batch.n)
		s.stats.Skipped += int64(s.batch.Skipped)
		if s.batch.n > 0 || s.batch.Skipped > 0 {
			return &s.batch, nil
		}
	}
}

func (s *Scanner) closeCurrent() {
	if s.cur != nil {
		s.cur.src.close()
		s.cur = nil
	}
}

// Close releases the open file, if any. Safe to call more than once.
func (s *Scanner) Close() error {
	if s.cur == nil {
		return nil
	}
	err := s.cur.src.close()
	s.cur = nil
	return err
}

// txReader decodes projected transaction columns from one file.
type txReader struct {
	path  string
	src   columnSource
	row   []parquet.Value
	id    idDecoder
	date  dateDecoder
	price priceDecoder
	// value positions in row; -1 when not projected
	datePos, pricePos int
}

func openTxReader(path string, cols Column) (*txReader, error) {
	specs := []columnSpec{{names: articleIDNames, required: true}}
	r := &txReader{path: path, datePos: -1, pricePos: -1}
	if cols&ColDate != 0 {
		r.datePos = len(specs)
		specs = append(specs, columnSpec{names: dateNames, required: true})
	}
	if cols&ColPrice != 0 {
		r.pricePos = len(specs)
		specs = append(specs, columnSpec{names: priceNames, required: true})
	}

	src, err := openColumns(path, specs)
	if err != nil {
		return nil, err
	}
	types := src.types()
	if r.id, err = newIDDecoder(types[0]); err == nil && r.datePos >= 0 {
		r.date, err = newDateDecoder(types[r.datePos])
	}
	if err == nil && r.pricePos >= 0 {
		r.price, err = newPriceDecoder(types[r.pricePos])
	}
	if err != nil {
		src.close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	r.src = src
	r.row = make([]parquet.Value, len(specs))
	return r, nil
}

// fill reads until b holds limit rows (valid plus skipped). done reports
// end of file.
func (r *txReader) fill(b *Batch, limit int) (done bool, err error) {
	for b.n+b.Skipped < limit {
		if err := r.src.next(r.row); err != nil {
			if errors.Is(err, io.EOF) {
				return true, nil
			}
			return false, err
		}
		id, ok := r.id(r.row[0])
		if !ok {
			b.Skipped++
			continue
		}
		var (
			date  model.Date
			price decimal.Decimal
		)
		if r.datePos >= 0 {
			if date, ok = r.date(r.row[r.datePos]); !ok {
				b.Skipped++
				continue
			}
		}
		if r.pricePos >= 0 {
			if price, ok = r.price(r.row[r.pricePos]); !ok {
				b.Skipped++
				continue
			}
		}
		b.ArticleIDs = append(b.ArticleIDs, id)
		if r.datePos >= 0 {
			b.Dates = append(b.Dates, date)
		}
		if r.pricePos >= 0 {
			b.Prices = append(b.Prices, price)
		}
		b.n++
	}
	return false, nil
}
