package objstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/eunmann/shopsight/internal/logctx"
	"github.com/eunmann/shopsight/internal/metrics"
	"github.com/eunmann/shopsight/pkg/humanfmt"
	"github.com/eunmann/shopsight/pkg/model"
	"golang.org/x/sync/errgroup"
)

// FetchConfig configures dataset discovery.
type FetchConfig struct {
	ArticlesPrefix     string
	TransactionsPrefix string
	DownloadDir        string
	// Concurrency bounds parallel object downloads.
	Concurrency int
	// MaxFiles caps how many transaction objects are fetched; 0 means all.
	MaxFiles int
}

// Fetcher discovers and downloads the catalog and transaction files.
type Fetcher struct {
	store Store
	cfg   FetchConfig
}

// NewFetcher creates a Fetcher.
func NewFetcher(store Store, cfg FetchConfig) *Fetcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Fetcher{store: store, cfg: cfg}
}

// TransactionFiles is the outcome of FetchTransactions.
type TransactionFiles struct {
	// Paths are local files in listing order.
	Paths []string
	// Failed holds keys that could not be downloaded.
	Failed []string
	Bytes  int64
}

// FetchCatalog downloads the first parquet object under the articles prefix.
// Every failure wraps model.ErrSourceUnavailable.
func (f *Fetcher) FetchCatalog(ctx context.Context) (string, error) {
	objects, err := f.store.List(ctx, f.cfg.ArticlesPrefix)
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrSourceUnavailable, err)
	}
	for _, obj := range objects {
		if !hasExt(obj.Key, ".parquet") {
			continue
		}
		dest := filepath.Join(f.cfg.DownloadDir, "articles", localName(obj.Key))
		if _, err := f.download(ctx, obj, dest); err != nil {
			return "", fmt.Errorf("%w: %w", model.ErrSourceUnavailable, err)
		}
		return dest, nil
	}
	return "", fmt.Errorf("%w: no parquet objects under %q", model.ErrSourceUnavailable, f.cfg.ArticlesPrefix)
}

// FetchTransactions downloads every parquet, CSV or gzip'd CSV object under
// the transactions prefix. Individual failures are recorded in Failed; the
// call fails with model.ErrSourceUnavailable only when nothing was fetched.
func (f *Fetcher) FetchTransactions(ctx context.Context) (*TransactionFiles, error) {
	log := logctx.FromContext(ctx)

	objects, err := f.store.List(ctx, f.cfg.TransactionsPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrSourceUnavailable, err)
	}
	var wanted []Object
	for _, obj := range objects {
		if hasExt(obj.Key, ".parquet", ".csv", ".csv.gz") {
			wanted = append(wanted, obj)
		}
		if f.cfg.MaxFiles > 0 && len(wanted) == f.cfg.MaxFiles {
			break
		}
	}
	if len(wanted) == 0 {
		return nil, fmt.Errorf("%w: no transaction objects under %q", model.ErrSourceUnavailable, f.cfg.TransactionsPrefix)
	}

	start := time.Now()
	paths := make([]string, len(wanted))
	errs := make([]error, len(wanted))
	var (
		mu    sync.Mutex
		total int64
	)

	var g errgroup.Group
	g.SetLimit(f.cfg.Concurrency)
	for i, obj := range wanted {
		g.Go(func() error {
			dest := filepath.Join(f.cfg.DownloadDir, "transactions", localName(obj.Key))
			n, err := f.download(ctx, obj, dest)
			if err != nil {
				errs[i] = err
				return nil
			}
			paths[i] = dest
			mu.Lock()
			total += n
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	res := &TransactionFiles{Bytes: total}
	for i, obj := range wanted {
		if errs[i] != nil {
			log.Warn().Err(errs[i]).Str("key", obj.Key).Msg("transaction download failed")
			res.Failed = append(res.Failed, obj.Key)
			continue
		}
		res.Paths = append(res.Paths, paths[i])
	}
	if len(res.Paths) == 0 {
		return res, fmt.Errorf("%w: all %d transaction downloads failed", model.ErrSourceUnavailable, len(wanted))
	}

	log.Info().
		Int("files", len(res.Paths)).
		Int("failed", len(res.Failed)).
		Str("bytes", humanfmt.Bytes(total)).
		Str("elapsed", humanfmt.Duration(time.Since(start))).
		Msg("transactions fetched")
	return res, nil
}

// download skips objects already present locally with the listed size.
func (f *Fetcher) download(ctx context.Context, obj Object, dest string) (int64, error) {
	if info, err := os.Stat(dest); err == nil && obj.Size > 0 && info.Size() == obj.Size {
		logger := logctx.FromContext(ctx)
		logger.Debug().Str("key", obj.Key).Msg("using cached download")
		return 0, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("create download dir: %w", err)
	}
	n, err := f.store.Download(ctx, obj.Key, dest)
	metrics.RecordDownload(n, err)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Cleanup removes the download directory.
func (f *Fetcher) Cleanup() error {
	return os.RemoveAll(f.cfg.DownloadDir)
}
