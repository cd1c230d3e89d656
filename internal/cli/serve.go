package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/eunmann/shopsight/internal/api"
	"github.com/eunmann/shopsight/internal/config"
	"github.com/eunmann/shopsight/pkg/llm"
	"github.com/eunmann/shopsight/pkg/logging"
	"github.com/eunmann/shopsight/pkg/model"
	"github.com/eunmann/shopsight/pkg/query"
)

// Version is reported by the API banner. Set with -ldflags "-X".
var Version = "dev"

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	host := fs.String("host", "", "listen host (default from config)")
	port := fs.Int("port", 0, "listen port (default from config)")
	ingestFirst := fs.Bool("ingest", false, "run an ingest before serving when no generation exists")

	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	log := logging.WithPhase("serve")

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	if _, err := store.Current(); errors.Is(err, model.ErrNotFound) && *ingestFirst {
		log.Info().Msg("no table generation found, running ingest")
		if _, err := ingest(ctx, cfg, store, false); err != nil {
			return fmt.Errorf("initial ingest: %w", err)
		}
	}

	svc := query.New(store)
	if _, err := svc.Reload(ctx); err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			return err
		}
		log.Warn().Err(err).Msg("serving without data; run ingest then POST /api/admin/reload")
	}

	assistant := newAssistant(cfg.LLM)
	handler := api.NewRouter(api.Options{
		Query:       svc,
		Searcher:    query.NewSearcher(svc, assistant),
		Assistant:   assistant,
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit:   cfg.Server.RateLimit,
		Version:     Version,
	})

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return serveUntilDone(ctx, srv, cfg.Server)
}

// serveUntilDone runs srv until ctx is cancelled, then drains in-flight
// requests for up to ShutdownTimeout.
func serveUntilDone(ctx context.Context, srv *http.Server, cfg config.ServerConfig) error {
	log := logging.WithPhase("serve")
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newAssistant returns the LLM service, or its local fallback when no API
// key is configured.
func newAssistant(cfg config.LLMConfig) *llm.Service {
	if cfg.APIKey == "" {
		logging.L().Warn().Msg("OPENAI_API_KEY not set; using keyword search and template insights")
		return llm.New(nil)
	}
	return llm.New(llm.NewOpenAI(llm.OpenAIOptions{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
	}))
}
