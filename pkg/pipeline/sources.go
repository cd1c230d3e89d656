package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/eunmann/shopsight/internal/logctx"
	"github.com/eunmann/shopsight/pkg/model"
	"github.com/eunmann/shopsight/pkg/objstore"
)

// Sources locates the raw catalog and transaction files for one run.
// Both methods fail with model.ErrSourceUnavailable when nothing usable
// exists, which the pipeline treats as a signal to fall back.
type Sources interface {
	Catalog(ctx context.Context) (string, error)
	Transactions(ctx context.Context) ([]string, error)
}

// LocalSources reads files already on disk.
type LocalSources struct {
	ArticlesPath      string
	TransactionsPaths []string
	// TolerateMissing drops missing transaction paths with a warning
	// instead of failing the run.
	TolerateMissing bool
}

// Catalog returns ArticlesPath if it exists.
func (l LocalSources) Catalog(context.Context) (string, error) {
	if l.ArticlesPath == "" {
		return "", fmt.Errorf("%w: no articles path configured", model.ErrSourceUnavailable)
	}
	if _, err := os.Stat(l.ArticlesPath); err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrSourceUnavailable, err)
	}
	return l.ArticlesPath, nil
}

// Transactions returns the configured paths that exist. When none exist the
// error wraps model.ErrSourceUnavailable. When only some are missing the run
// fails, unless TolerateMissing is set.
func (l LocalSources) Transactions(ctx context.Context) ([]string, error) {
	var (
		found   []string
		missing []string
	)
	for _, p := range l.TransactionsPaths {
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, p)
			continue
		}
		found = append(found, p)
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: none of %d transaction paths exist", model.ErrSourceUnavailable, len(l.TransactionsPaths))
	}
	if len(missing) > 0 && !l.TolerateMissing {
		return nil, fmt.Errorf("%d of %d transaction paths missing: %s", len(missing), len(l.TransactionsPaths), strings.Join(missing, ", "))
	}
	logger := logctx.FromContext(ctx)
	for _, p := range missing {
		logger.Warn().Str("file", p).Msg("transaction file missing; skipped")
	}
	return found, nil
}

// RemoteSources downloads files from the object store.
type RemoteSources struct {
	Fetcher *objstore.Fetcher
}

// Catalog downloads the articles file.
func (r RemoteSources) Catalog(ctx context.Context) (string, error) {
	return r.Fetcher.FetchCatalog(ctx)
}

// Transactions downloads every transaction file it can.
func (r RemoteSources) Transactions(ctx context.Context) ([]string, error) {
	files, err := r.Fetcher.FetchTransactions(ctx)
	if err != nil {
		return nil, err
	}
	return files.Paths, nil
}
