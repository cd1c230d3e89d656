package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/eunmann/shopsight/internal/config"
	"github.com/eunmann/shopsight/pkg/humanfmt"
	"github.com/eunmann/shopsight/pkg/logging"
	"github.com/eunmann/shopsight/pkg/objstore"
	"github.com/eunmann/shopsight/pkg/pipeline"
	"github.com/eunmann/shopsight/pkg/tablestore"
)

func runIngest(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	articles := fs.String("articles", "", "local articles file (parquet or CSV); bypasses the bucket")
	transactions := fs.String("transactions", "", "comma-separated local transaction files")
	targetCount := fs.Int("target-count", 0, "number of products to select (0 keeps config)")
	batchSize := fs.Int("batch-size", 0, "rows per batch before the memory cap (0 keeps config)")
	seed := fs.Int64("seed", 0, "synthetic fallback seed (0 keeps config)")
	clean := fs.Bool("clean", false, "remove downloaded raw files after the run")

	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}
	if *articles != "" {
		cfg.Source.ArticlesPath = *articles
	}
	if *transactions != "" {
		cfg.Source.TransactionsPaths = splitList(*transactions)
	}
	if *targetCount > 0 {
		cfg.Pipeline.TargetCount = *targetCount
	}
	if *batchSize > 0 {
		cfg.Pipeline.BatchSize = *batchSize
	}
	if *seed != 0 {
		cfg.Pipeline.Seed = *seed
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	rep, err := ingest(ctx, cfg, store, *clean)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(stdout, "ingest complete: %s\n", rep)
	_, _ = fmt.Fprintf(stdout, "  transaction files: %d (%d skipped)\n", rep.TransactionFiles, rep.FilesSkipped)
	_, _ = fmt.Fprintf(stdout, "  rows scanned:      %s (%s skipped, %s kept)\n",
		humanfmt.Count(rep.Rows), humanfmt.Count(rep.SkippedRows), humanfmt.Count(rep.KeptRows))
	_, _ = fmt.Fprintf(stdout, "  selected products: %d across %d categories\n", rep.Selected, rep.Categories)
	_, _ = fmt.Fprintf(stdout, "  peak heap:         %s\n", humanfmt.Bytes(int64(rep.PeakHeap)))
	_, _ = fmt.Fprintf(stdout, "  elapsed:           %s\n", humanfmt.Duration(rep.Duration))
	return nil
}

// ingest runs the pipeline once against the configured sources.
func ingest(ctx context.Context, cfg *config.Config, store *tablestore.Store, clean bool) (*pipeline.Report, error) {
	log := logging.WithPhase("ingest")

	var sources pipeline.Sources
	if cfg.Source.Remote() {
		client, err := objstore.NewS3(ctx, objstore.S3Options{
			Bucket:    cfg.Source.Bucket,
			Region:    cfg.Source.Region,
			Endpoint:  cfg.Source.Endpoint,
			Anonymous: cfg.Source.Anonymous,
		})
		if err != nil {
			return nil, err
		}
		fetcher := objstore.NewFetcher(client, objstore.FetchConfig{
			ArticlesPrefix:     cfg.Source.ArticlesPrefix,
			TransactionsPrefix: cfg.Source.TransactionsPrefix,
			DownloadDir:        cfg.Source.DownloadDir,
			Concurrency:        cfg.Source.Concurrency,
			MaxFiles:           cfg.Source.MaxFiles,
		})
		log.Info().Str("bucket", cfg.Source.Bucket).Msg("reading raw dataset from object store")
		sources = pipeline.RemoteSources{Fetcher: fetcher}
		if clean {
			defer func() {
				if err := fetcher.Cleanup(); err != nil {
					log.Warn().Err(err).Msg("remove downloads")
				}
			}()
		}
	} else {
		log.Info().Str("articles", cfg.Source.ArticlesPath).
			Strs("transactions", cfg.Source.TransactionsPaths).
			Msg("reading raw dataset from local files")
		sources = pipeline.LocalSources{
			ArticlesPath:      cfg.Source.ArticlesPath,
			TransactionsPaths: cfg.Source.TransactionsPaths,
			TolerateMissing:   cfg.Pipeline.TolerateMissing,
		}
	}

	p := cfg.Pipeline
	return pipeline.New(pipeline.Config{
		BatchSize:         p.BatchSize,
		MemoryFraction:    p.MemoryFraction,
		TargetCount:       p.TargetCount,
		PerCategoryQuota:  p.PerCategoryQuota,
		SyntheticProducts: p.SyntheticProducts,
		SyntheticDays:     p.SyntheticDays,
		SyntheticEnd:      p.EndDate(time.Now()),
		Seed:              p.Seed,
		TolerateMissing:   p.TolerateMissing,
	}, sources, store).Run(ctx)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
