package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/eunmann/shopsight/pkg/model"
)

// Validate rejects configurations the pipeline or server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Data.Dir == "" {
		errs = append(errs, errors.New("data.dir is required"))
	}
	if c.Data.KeepGenerations < 1 {
		errs = append(errs, fmt.Errorf("data.keep_generations must be >= 1, got %d", c.Data.KeepGenerations))
	}
	if c.Source.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("source.concurrency must be >= 1, got %d", c.Source.Concurrency))
	}
	p := c.Pipeline
	if p.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.batch_size must be > 0, got %d", p.BatchSize))
	}
	if p.MemoryFraction <= 0 || p.MemoryFraction > 1 {
		errs = append(errs, fmt.Errorf("pipeline.memory_fraction must be in (0, 1], got %g", p.MemoryFraction))
	}
	if p.TargetCount <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.target_count must be > 0, got %d", p.TargetCount))
	}
	if p.PerCategoryQuota < 0 {
		errs = append(errs, fmt.Errorf("pipeline.per_category_quota must be >= 0, got %d", p.PerCategoryQuota))
	}
	if p.SyntheticProducts <= 0 || p.SyntheticDays <= 0 {
		errs = append(errs, errors.New("pipeline.synthetic_products and pipeline.synthetic_days must be > 0"))
	}
	if p.SyntheticEndDate != "" {
		if _, err := model.ParseDate(p.SyntheticEndDate); err != nil {
			errs = append(errs, fmt.Errorf("pipeline.synthetic_end_date: %w", err))
		}
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit must be >= 0, got %d", c.Server.RateLimit))
	}
	if c.LLM.Timeout < time.Second {
		errs = append(errs, fmt.Errorf("llm.timeout must be >= 1s, got %s", c.LLM.Timeout))
	}
	return errors.Join(errs...)
}

// EndDate resolves SyntheticEndDate, defaulting to today's date in UTC.
func (p PipelineConfig) EndDate(now time.Time) model.Date {
	if d, err := model.ParseDate(p.SyntheticEndDate); err == nil && p.SyntheticEndDate != "" {
		return d
	}
	return model.DateOf(now.UTC())
}
