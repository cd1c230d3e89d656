package dataset

import (
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/eunmann/shopsight/pkg/model"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"
)

// columnSpec names one logical column and the source column names that
// satisfy it, in preference order.
type columnSpec struct {
	names    []string
	required bool
}

// columnType describes how a source stores a column. Missing optional
// columns have present=false and always read as null.
type columnType struct {
	present bool
	kind    parquet.Kind
	logical *format.LogicalType
}

// columnSource yields rows restricted to a fixed list of columns.
type columnSource interface {
	types() []columnType
	// next fills row (len == number of specs) with the next row's values.
	// Null or missing cells are zero parquet.Values. Returns io.EOF at end.
	next(row []parquet.Value) error
	close() error
}

// openColumns opens path as parquet or (gzip'd) CSV, resolving specs against
// its schema. Open failures wrap model.ErrSourceUnavailable; missing required
// columns wrap model.ErrSchemaMismatch.
func openColumns(path string, specs []columnSpec) (columnSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrSourceUnavailable, err)
	}
	lower := strings.ToLower(path)
	var src columnSource
	switch {
	case strings.HasSuffix(lower, ".parquet"):
		src, err = newParquetColumns(f, specs)
	case strings.HasSuffix(lower, ".csv"), strings.HasSuffix(lower, ".csv.gz"):
		src, err = newCSVColumns(f, strings.HasSuffix(lower, ".gz"), specs)
	default:
		err = fmt.Errorf("%w: unsupported file type", model.ErrSchemaMismatch)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return src, nil
}

// parquetColumns reads only the requested leaf columns, one page cursor per
// column advanced in lockstep. Flat schemas give each row exactly one value
// per leaf column, nulls included.
type parquetColumns struct {
	file      *os.File
	pf        *parquet.File
	leaves    []int // leaf column index per spec, -1 when absent
	colTypes  []columnType
	rowGroups []parquet.RowGroup
	rgIdx     int
	rowsLeft  int64
	cursors   []*columnCursor
}

func newParquetColumns(f *os.File, specs []columnSpec) (*parquetColumns, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat: %w", model.ErrSourceUnavailable, err)
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: open parquet: %w", model.ErrSourceUnavailable, err)
	}

	schema := pf.Schema()
	p := &parquetColumns{
		file:      f,
		pf:        pf,
		leaves:    make([]int, len(specs)),
		colTypes:  make([]columnType, len(specs)),
		rowGroups: pf.RowGroups(),
		rgIdx:     -1,
		cursors:   make([]*columnCursor, len(specs)),
	}
	for i, spec := range specs {
		p.leaves[i] = -1
		for _, name := range spec.names {
			leaf, ok := schema.Lookup(name)
			if !ok {
				continue
			}
			if leaf.MaxRepetitionLevel > 0 {
				return nil, fmt.Errorf("%w: column %q is repeated", model.ErrSchemaMismatch, name)
			}
			t := leaf.Node.Type()
			p.leaves[i] = leaf.ColumnIndex
			p.colTypes[i] = columnType{present: true, kind: t.Kind(), logical: t.LogicalType()}
			break
		}
		if p.leaves[i] < 0 && spec.required {
			return nil, fmt.Errorf("%w: missing column %q", model.ErrSchemaMismatch, spec.names[0])
		}
	}
	return p, nil
}

func (p *parquetColumns) types() []columnType { return p.colTypes }

func (p *parquetColumns) next(row []parquet.Value) error {
	for p.rowsLeft == 0 {
		if err := p.nextRowGroup(); err != nil {
			return err
		}
	}
	for i, c := range p.cursors {
		if c == nil {
			row[i] = parquet.Value{}
			continue
		}
		v, err := c.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("column %d ended before row group: %w", p.leaves[i], io.ErrUnexpectedEOF)
			}
			return err
		}
		row[i] = v
	}
	p.rowsLeft--
	return nil
}

func (p *parquetColumns) nextRowGroup() error {
	p.closeCursors()
	p.rgIdx++
	if p.rgIdx >= len(p.rowGroups) {
		return io.EOF
	}
	rg := p.rowGroups[p.rgIdx]
	chunks := rg.ColumnChunks()
	for i, leaf := range p.leaves {
		if leaf >= 0 {
			p.cursors[i] = newColumnCursor(chunks[leaf].Pages())
		}
	}
	p.rowsLeft = rg.NumRows()
	return nil
}

func (p *parquetColumns) closeCursors() {
	for i, c := range p.cursors {
		if c != nil {
			c.close()
			p.cursors[i] = nil
		}
	}
}

func (p *parquetColumns) close() error {
	p.closeCursors()
	return p.file.Close()
}

// columnCursor walks the values of one column chunk page by page.
type columnCursor struct {
	pages  parquet.Pages
	values parquet.ValueReader
	buf    []parquet.Value
	pos, n int
}

func newColumnCursor(pages parquet.Pages) *columnCursor {
	return &columnCursor{pages: pages, buf: make([]parquet.Value, 1024)}
}

func (c *columnCursor) next() (parquet.Value, error) {
	for c.pos >= c.n {
		if c.values == nil {
			page, err := c.pages.ReadPage()
			if err != nil {
				return parquet.Value{}, err
			}
			c.values = page.Values()
		}
		n, err := c.values.ReadValues(c.buf)
		c.pos, c.n = 0, n
		if errors.Is(err, io.EOF) {
			c.values = nil
		} else if err != nil {
			return parquet.Value{}, fmt.Errorf("read column values: %w", err)
		}
	}
	v := c.buf[c.pos]
	c.pos++
	return v, nil
}

func (c *columnCursor) close() {
	c.pages.Close()
}

// csvColumns presents CSV cells as parquet byte-array values so both formats
// share one set of decoders.
type csvColumns struct {
	r        *csv.Reader
	idx      []int
	colTypes []columnType
	closers  []io.Closer
}

func newCSVColumns(f *os.File, gz bool, specs []columnSpec) (*csvColumns, error) {
	var r io.Reader = f
	closers := []io.Closer{f}
	if gz {
		gzr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %w", model.ErrSourceUnavailable, err)
		}
		closers = append(closers, gzr)
		r = gzr
	}
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %w", model.ErrSchemaMismatch, err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}

	c := &csvColumns{
		r:        cr,
		idx:      make([]int, len(specs)),
		colTypes: make([]columnType, len(specs)),
		closers:  closers,
	}
	for i, spec := range specs {
		c.idx[i] = -1
		for _, name := range spec.names {
			if j, ok := pos[name]; ok {
				c.idx[i] = j
				c.colTypes[i] = columnType{present: true, kind: parquet.ByteArray}
				break
			}
		}
		if c.idx[i] < 0 && spec.required {
			return nil, fmt.Errorf("%w: missing column %q", model.ErrSchemaMismatch, spec.names[0])
		}
	}
	return c, nil
}

func (c *csvColumns) types() []columnType { return c.colTypes }

func (c *csvColumns) next(row []parquet.Value) error {
	fields, err := c.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("read CSV row: %w", err)
	}
	for i, j := range c.idx {
		if j < 0 || j >= len(fields) || fields[j] == "" {
			row[i] = parquet.Value{}
			continue
		}
		row[i] = parquet.ByteArrayValue([]byte(fields[j]))
	}
	return nil
}

func (c *csvColumns) close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
