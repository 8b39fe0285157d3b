// Command grovecore-server serves the stock ledger API over HTTP. Storage,
// blob, and listen configuration come from flags and GROVECORE_* environment
// variables.
package main

import (
	"context"
	"errors"
	"expvar"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"grovecore/internal/adapters/stockapi"
	"grovecore/internal/blob"
	"grovecore/internal/core"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stderr)
	exitFunc(code)
}

func cli(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("grovecore-server", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		addr            string
		shutdownTimeout time.Duration
		traceLog        string
	)
	fs.StringVar(&addr, "addr", ":8080", "listen address")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "graceful shutdown grace period")
	fs.StringVar(&traceLog, "trace-log", "", "append operation spans as JSON lines to this file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := run(addr, shutdownTimeout, traceLog); err != nil {
		if _, writeErr := fmt.Fprintf(stderr, "grovecore-server failed: %v\n", err); writeErr != nil {
			return 1
		}
		return 1
	}
	return 0
}

// zapLogger adapts a zap sugared logger to the service logging contract.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

func (l zapLogger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l zapLogger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l zapLogger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l zapLogger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }

func run(addr string, shutdownTimeout time.Duration, traceLog string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zlog, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = zlog.Sync() }()
	logger := zapLogger{sugar: zlog.Sugar()}

	store, err := core.OpenPersistentStore(core.DefaultRulesEngine())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	blobs, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	registry := prometheus.NewRegistry()
	promMetrics, err := core.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	vars := core.NewVarsRecorder("grovecore_ops")

	options := []core.Option{
		core.WithLogger(logger),
		core.WithMetrics(core.MultiMetrics(promMetrics, vars)),
	}
	if traceLog != "" {
		f, err := os.OpenFile(traceLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open trace log: %w", err)
		}
		defer func() { _ = f.Close() }()
		options = append(options, core.WithTracer(core.NewSpanLog(f)))
	}

	service := core.NewService(store, options...)
	handler := stockapi.NewHandler(service)
	handler.Archiver = core.NewArchiver(service, blobs)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", handler)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr, "blob_driver", blobs.Driver())
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
