package logging

import (
	"time"

	"github.com/eunmann/shopsight/pkg/humanfmt"
	"github.com/rs/zerolog"
)

// PassProgress tracks one streaming pass over the transaction corpus and
// emits a progress line at most once per interval. It is not safe for
// concurrent use; passes are batch-sequential.
type PassProgress struct {
	log       zerolog.Logger
	pass      string
	interval  time.Duration
	now       func() time.Time
	startTime time.Time
	lastLog   time.Time

	batches int64
	rows    int64
	kept    int64
	skipped int64
}

// NewPassProgress starts tracking a pass. An interval <= 0 logs every batch.
func NewPassProgress(log zerolog.Logger, pass string, interval time.Duration) *PassProgress {
	return newPassProgress(log, pass, interval, time.Now)
}

func newPassProgress(log zerolog.Logger, pass string, interval time.Duration, now func() time.Time) *PassProgress {
	start := now()
	return &PassProgress{
		log:       log,
		pass:      pass,
		interval:  interval,
		now:       now,
		startTime: start,
		lastLog:   start,
	}
}

// RecordBatch adds one batch: rows read, rows that survived filtering, and
// rows rejected as malformed.
func (p *PassProgress) RecordBatch(rows, kept, skipped int) {
	p.batches++
	p.rows += int64(rows)
	p.kept += int64(kept)
	p.skipped += int64(skipped)

	t := p.now()
	if p.interval > 0 && t.Sub(p.lastLog) < p.interval {
		return
	}
	p.lastLog = t
	p.log.Info().
		Str("pass", p.pass).
		Int64("batches", p.batches).
		Str("rows", humanfmt.Count(p.rows)).
		Str("rate", humanfmt.Rate(p.rows, t.Sub(p.startTime))).
		Msg("pass progress")
}

// Batches returns the number of batches recorded.
func (p *PassProgress) Batches() int64 { return p.batches }

// Rows returns the number of rows read.
func (p *PassProgress) Rows() int64 { return p.rows }

// Kept returns the number of rows that survived filtering.
func (p *PassProgress) Kept() int64 { return p.kept }

// Skipped returns the number of malformed rows.
func (p *PassProgress) Skipped() int64 { return p.skipped }

// Elapsed returns time since the pass started.
func (p *PassProgress) Elapsed() time.Duration {
	return p.now().Sub(p.startTime)
}

// Done logs the completion event with any extra fields from fn.
func (p *PassProgress) Done(fn func(e *zerolog.Event)) {
	e := p.log.Info().
		Str("pass", p.pass).
		Int64("batches", p.batches).
		Int64("rows", p.rows).
		Int64("kept_rows", p.kept).
		Int64("skipped_rows", p.skipped).
		Str("elapsed", humanfmt.Duration(p.Elapsed()))
	if fn != nil {
		fn(e)
	}
	e.Msg("pass complete")
}
