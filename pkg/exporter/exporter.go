package exporter

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

var landingPage = template.Must(template.New("landing").Parse(`<html>
<head><title>RabbitMQ Exporter</title></head>
<body>
<h1>RabbitMQ Exporter</h1>
<p><a href="{{ . }}">Metrics</a></p>
</body>
</html>
`))

// Exporter is responsible for bringing up a web server that serves the
// metrics gathered from a given prometheus registry (e.g., the one that
// `pkg/collector` writes into).
//
type Exporter struct {
	// listenAddress is the full address used by prometheus
	// to listen for scraping requests.
	//
	// Examples:
	// - :8000
	// - 127.0.0.2:1313
	//
	listenAddress string

	// telemetryPath configures the path under which
	// the prometheus metrics are reported.
	//
	// For instance:
	// - /metrics
	// - /telemetry
	//
	telemetryPath string

	gatherer prometheus.Gatherer

	// listener is the TCP listener used by the webserver. `nil` until
	// Listen succeeds.
	//
	listener net.Listener

	server *http.Server

	log logr.Logger
}

// Option is a functional argument overriding Exporter defaults.
//
type Option func(e *Exporter)

func WithBindAddress(v string) func(e *Exporter) {
	return func(e *Exporter) {
		e.listenAddress = v
	}
}

func WithTelemetryPath(v string) func(e *Exporter) {
	return func(e *Exporter) {
		e.telemetryPath = v
	}
}

func WithLogger(v logr.Logger) func(e *Exporter) {
	return func(e *Exporter) {
		e.log = v
	}
}

// New instantiates an exporter serving whatever `gatherer` holds at scrape
// time.
//
func New(gatherer prometheus.Gatherer, opts ...Option) (*Exporter, error) {
	defaultLogger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("zap new development: %w", err)
	}

	e := &Exporter{
		listenAddress: ":8000",
		telemetryPath: "/metrics",
		gatherer:      gatherer,
		log:           zapr.NewLogger(defaultLogger.Named("exporter")),
	}

	for _, opt := range opts {
		opt(e)
	}

	if err := validateTelemetryPath(e.telemetryPath); err != nil {
		return nil, fmt.Errorf("telemetry path: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(e.telemetryPath, promhttp.HandlerFor(e.gatherer, promhttp.HandlerOpts{
		ErrorLog: &errorLogger{log: e.log},
	}))

	// metrics served at the root take the place of the landing page.
	if e.telemetryPath != "/" {
		mux.HandleFunc("/", e.serveLandingPage)
	}

	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return e, nil
}

// Listen binds the TCP listener. Once it returns successfully, connections
// are accepted (and queued by the kernel) even if Serve hasn't been called
// yet.
//
func (e *Exporter) Listen() error {
	listener, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return fmt.Errorf("listen on '%s': %w", e.listenAddress, err)
	}

	e.listener = listener

	return nil
}

// Addr is the address the exporter is bound to, or nil before Listen.
//
func (e *Exporter) Addr() net.Addr {
	if e.listener == nil {
		return nil
	}

	return e.listener.Addr()
}

// Serve serves scrape requests on the listener set up by Listen until `ctx`
// is cancelled or the server fails.
//
// ps.: this is a BLOCKING method - make sure you either make use of goroutines
// to not block if needed.
//
func (e *Exporter) Serve(ctx context.Context) error {
	if e.listener == nil {
		return fmt.Errorf("serve: not listening")
	}

	doneChan := make(chan error, 1)

	go func() {
		defer close(doneChan)

		e.log.WithValues(
			"addr", e.listener.Addr().String(),
			"path", e.telemetryPath,
		).Info("listening")

		err := e.server.Serve(e.listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			doneChan <- fmt.Errorf(
				"failed serving on address %s: %w",
				e.listenAddress, err,
			)
		}
	}()

	select {
	case err := <-doneChan:
		if err != nil {
			return fmt.Errorf("donechan err: %w", err)
		}
	case <-ctx.Done():
		e.shutdown()
		return fmt.Errorf("ctx err: %w", ctx.Err())
	}

	return nil
}

// Run binds and serves: Listen followed by Serve.
//
func (e *Exporter) Run(ctx context.Context) error {
	if err := e.Listen(); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	return e.Serve(ctx)
}

// Close gracefully closes the tcp listener associated with it.
//
func (e *Exporter) Close() (err error) {
	if e.listener == nil {
		return nil
	}

	e.log.Info("closing")
	if err := e.server.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close: %w", err)
	}

	if err := e.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close listener: %w", err)
	}

	return nil
}

func (e *Exporter) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.server.Shutdown(ctx); err != nil {
		e.log.Error(err, "shutdown")
	}
}

func (e *Exporter) serveLandingPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := landingPage.Execute(w, e.telemetryPath); err != nil {
		e.log.Error(err, "render landing page")
	}
}

// validateTelemetryPath rejects paths that http.ServeMux would refuse to
// register (it panics on those) or would read as a method/host pattern.
//
func validateTelemetryPath(path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("'%s' must start with '/'", path)
	}

	if strings.ContainsAny(path, " \t{}") {
		return fmt.Errorf("'%s' must not contain blanks or braces", path)
	}

	return nil
}

// errorLogger adapts logr to promhttp's Println-style error log.
//
type errorLogger struct {
	log logr.Logger
}

func (l *errorLogger) Println(v ...interface{}) {
	l.log.Error(fmt.Errorf("%s", fmt.Sprint(v...)), "promhttp")
}
