package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"amari/internal/adapters/exports"
	"amari/internal/adapters/httpapi"
	"amari/internal/blob"
	"amari/internal/catalog"
	"amari/internal/core"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(a *app) *cobra.Command {
	var (
		addr string
		seed bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, Prometheus metrics and health checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg.HTTP.Addr
			}
			return a.serve(cmd.Context(), addr, seed)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to http.addr)")
	cmd.Flags().BoolVar(&seed, "seed", false, "import the bundled seed catalog before serving")
	return cmd
}

func (a *app) serve(ctx context.Context, addr string, seed bool) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		return err
	}
	// Spans go to the global provider; embedders install an exporter there.
	svc, cleanup, err := a.openService(ctx,
		core.WithMetricsRecorder(recorder),
		core.WithTracer(core.NewOTelTracer(otel.Tracer("amari"))),
	)
	if err != nil {
		return err
	}
	defer cleanup()

	if seed {
		c, err := catalog.Seed()
		if err != nil {
			return err
		}
		summary, _, err := svc.Import(ctx, c)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		a.logger.Info("seed imported", "ingredients", summary.IngredientsCreated+summary.IngredientsUpdated)
	}
	// A store that cannot build a tree still serves; tree queries fail until repaired.
	if _, err := svc.Tree(ctx); err != nil {
		a.logger.Warn("taxonomy unavailable", "err", err)
	}

	store, err := blob.Open(ctx, a.cfg.BlobStoreConfig())
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	worker := exports.NewWorker(svc, store, a.logger)
	worker.Start()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		_ = worker.Stop(context.Background())
		return err
	}
	srv := &http.Server{
		Handler:           newServeMux(svc, worker, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	a.logger.Info("listening", "addr", ln.Addr().String(), "policy", svc.Policy(), "storage", a.cfg.Storage.Driver)

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case err = <-errCh:
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		a.logger.Warn("http shutdown", "err", serr)
	}
	if werr := worker.Stop(shutdownCtx); werr != nil {
		a.logger.Warn("export worker shutdown", "err", werr)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newServeMux mounts the API, metrics and health endpoints.
func newServeMux(svc *core.Service, scheduler exports.Scheduler, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/api/v1/", httpapi.NewHandler(svc, scheduler))
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := svc.Tree(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}
