package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds host runtime settings, loaded from the environment.
type Config struct {
	Addr          string        `envconfig:"ADDR" default:":8787"`
	LogLevel      string        `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding   string        `envconfig:"LOG_ENCODING" default:"console"`
	ShutdownGrace time.Duration `envconfig:"SHUTDOWN_GRACE" default:"5s"`
}

// LoadConfig reads configuration from WORKER_-prefixed environment
// variables (WORKER_ADDR, WORKER_LOG_LEVEL, ...).
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("worker", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// NewLogger builds a zap logger per the config's level and encoding.
func NewLogger(cfg Config) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.Encoding = cfg.LogEncoding
	if cfg.LogEncoding == "console" {
		zcfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	return zcfg.Build()
}

// hostMetrics are the host's own counters, kept on a private registry so
// embedding applications keep control of the default one.
type hostMetrics struct {
	registry *prometheus.Registry
	requests prometheus.Counter
	tasks    prometheus.Counter
	panics   prometheus.Counter
}

func newHostMetrics() *hostMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &hostMetrics{
		registry: registry,
		requests: factory.NewCounter(prometheus.CounterOpts{
			Name: "worker_requests_total",
			Help: "Inbound requests dispatched to the handler.",
		}),
		tasks: factory.NewCounter(prometheus.CounterOpts{
			Name: "worker_background_tasks_total",
			Help: "Background tasks run after a response was produced.",
		}),
		panics: factory.NewCounter(prometheus.CounterOpts{
			Name: "worker_panics_recovered_total",
			Help: "Panics recovered on the request or background paths.",
		}),
	}
}

// Host serves inbound requests and dispatches each one to a single handler.
// Work scheduled through Context.WaitUntil is run after the response is
// written and is tracked so shutdown can drain it.
type Host struct {
	cfg     Config
	env     *Env
	handler HandlerFunc
	router  *mux.Router
	server  *http.Server
	metrics *hostMetrics
	tasks   sync.WaitGroup
}

// NewHost builds a host around env and handler. Every path dispatches to
// the handler except /metrics, which exposes the host's counters.
func NewHost(cfg Config, env *Env, handler HandlerFunc) *Host {
	h := &Host{
		cfg:     cfg,
		env:     env,
		handler: handler,
		metrics: newHostMetrics(),
	}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(h.metrics.registry, promhttp.HandlerOpts{}))
	router.PathPrefix("/").HandlerFunc(h.dispatch)
	h.router = router

	h.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return h
}

// ServeHTTP makes the host usable as a plain http.Handler.
func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// dispatch runs one inbound request through the handler and schedules its
// deferred tasks once the response is on the wire.
func (h *Host) dispatch(w http.ResponseWriter, r *http.Request) {
	h.metrics.requests.Inc()

	body, _ := io.ReadAll(r.Body)
	req := &Request{
		Method: r.Method,
		URL:    r.URL,
		Header: r.Header,
		Body:   body,
		RayID:  xid.New().String(),
	}
	wctx := &Context{}

	resp := h.invoke(r.Context(), req, wctx)

	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set("X-Ray-Id", req.RayID)
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)

	// Response is on the wire; deferred work is decoupled from it.
	h.runTasks(wctx.drain())
}

// invoke calls the handler with panic containment. A panic produces one
// diagnostic line and a 500; it never takes the process down.
func (h *Host) invoke(ctx context.Context, req *Request, wctx *Context) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			h.metrics.panics.Inc()
			reportPanic(r, h.env.Console())
			resp = Text(http.StatusInternalServerError, "internal error")
		}
	}()

	resp, err := h.handler(ctx, req, h.env, wctx)
	if err != nil {
		h.env.Console().Log(fmt.Sprintf("handler error: %v", err))
		return Text(http.StatusInternalServerError, "internal error")
	}
	if resp == nil {
		return Text(http.StatusInternalServerError, "internal error")
	}
	return resp
}

// runTasks executes deferred tasks sequentially on one background
// goroutine, preserving scheduling order. Task panics are contained the
// same way handler panics are.
func (h *Host) runTasks(tasks []func()) {
	if len(tasks) == 0 {
		return
	}
	h.tasks.Add(1)
	go func() {
		defer h.tasks.Done()
		for _, task := range tasks {
			h.runTask(task)
		}
	}()
}

func (h *Host) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			h.metrics.panics.Inc()
			reportPanic(r, h.env.Console())
		}
	}()
	h.metrics.tasks.Inc()
	task()
}

// ListenAndServe starts serving on the configured address. Blocks until
// the server stops; returns http.ErrServerClosed after a clean Shutdown.
func (h *Host) ListenAndServe() error {
	return h.server.ListenAndServe()
}

// Shutdown stops accepting requests, then waits for in-flight background
// tasks, bounded by ctx.
func (h *Host) Shutdown(ctx context.Context) error {
	err := h.server.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		h.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// Wait blocks until all currently scheduled background tasks complete.
// Useful in tests that need the deferred flush to have run.
func (h *Host) Wait() {
	h.tasks.Wait()
}
