// Command repro serves the span-delivery reproduction as a worker host.
// Hit any path and watch the console: the background flush dumps the
// locally collected records, while detached spans surface only through the
// tracer's own collector.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/zoobzio/localtrace"
	"github.com/zoobzio/localtrace/repro"
	"github.com/zoobzio/localtrace/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "repro: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := worker.LoadConfig()
	if err != nil {
		return err
	}

	logger, err := worker.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	console := worker.NewZapConsole(logger)
	worker.InstallPanicHook(console)

	tracer := localtrace.New()
	defer tracer.Close()

	// Detached spans land here, not in the handler's LocalCollector. The
	// count logged at shutdown is the data missing from the flush dumps.
	detached := localtrace.NewCollector("detached", 256)
	defer detached.Close()
	tracer.OnSpanComplete(detached.Collect)

	env := worker.NewEnv(console)
	host := worker.NewHost(cfg, env, repro.Handler(tracer))

	errCh := make(chan error, 1)
	go func() {
		errCh <- host.ListenAndServe()
	}()
	logger.Info("listening", zap.String("addr", cfg.Addr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := host.Shutdown(ctx); err != nil {
		return err
	}

	records := detached.Export()
	logger.Info("detached spans finished outside local collection",
		zap.Int("count", len(records)))
	for _, record := range records {
		logger.Info("detached span",
			zap.String("name", record.Name),
			zap.String("span_id", record.SpanID.String()),
			zap.String("parent_id", record.ParentID.String()))
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
