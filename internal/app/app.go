package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"spool/server/internal/config"
	"spool/server/internal/engine"
	"spool/server/internal/hub"
	servernet "spool/server/internal/net"
	"spool/server/internal/observability"
	"spool/server/internal/telemetry"
	"spool/server/logging"
	loggingSinks "spool/server/logging/sinks"
)

const shutdownTimeout = 5 * time.Second

type Config struct {
	Logger   telemetry.Logger
	Settings config.Config
	// Observer and Plugins customise the world; both are optional.
	Observer hub.Observer
	Plugins  []engine.Plugin
}

func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}
	settings := cfg.Settings

	fallbackLogger := log.Default()
	if provider, ok := telemetryLogger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			fallbackLogger = candidate
		}
	}

	logConfig := settings.Logging()
	sinks, closeSinks, err := buildSinks(logConfig)
	if err != nil {
		return err
	}
	defer closeSinks()

	router := logging.NewRouter(logConfig, logging.SystemClock{}, fallbackLogger, sinks)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	observabilityCfg := settings.Observability()
	shutdownTracing, err := observability.SetupTracing(ctx, observabilityCfg)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			telemetryLogger.Printf("failed to flush traces: %v", err)
		}
	}()

	hubCfg, err := settings.Hub()
	if err != nil {
		return fmt.Errorf("invalid hub config: %w", err)
	}
	if cfg.Observer != nil {
		hubCfg.Observer = cfg.Observer
	}
	hubCfg.Plugins = append(hubCfg.Plugins, cfg.Plugins...)

	h := hub.New(hubCfg, hub.Deps{
		Logger:    telemetryLogger,
		Metrics:   telemetry.NewMetrics(),
		Publisher: router,
		Tracer:    telemetry.Tracer(nil),
	})
	hubCtx, stopHub := context.WithCancel(ctx)
	hubDone := make(chan error, 1)
	go func() { hubDone <- h.Run(hubCtx) }()
	defer func() {
		stopHub()
		<-hubDone
	}()

	socketCfg := settings.Socket()
	socketCfg.Publisher = router
	handler := servernet.NewHTTPHandler(h, servernet.HTTPHandlerConfig{
		ClientDir:     settings.ClientDir,
		Logger:        telemetryLogger,
		Socket:        socketCfg,
		Observability: observabilityCfg,
	})

	srv := &http.Server{Addr: settings.Addr, Handler: handler}
	serveErr := make(chan error, 1)
	go func() {
		telemetryLogger.Printf("server listening on %s", srv.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// buildSinks constructs the enabled sinks. The returned func closes any file
// the sinks write to and must run after the router is closed.
func buildSinks(cfg logging.Config) ([]logging.NamedSink, func(), error) {
	var (
		sinks []logging.NamedSink
		files []*os.File
	)
	closeFiles := func() {
		for _, f := range files {
			f.Close()
		}
	}
	if cfg.HasSink(logging.SinkConsole) {
		sinks = append(sinks, logging.NamedSink{Name: logging.SinkConsole, Sink: loggingSinks.NewConsole(os.Stdout)})
	}
	if cfg.HasSink(logging.SinkJSON) {
		out := os.Stdout
		if cfg.JSON.FilePath != "" {
			f, err := os.OpenFile(cfg.JSON.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				closeFiles()
				return nil, func() {}, fmt.Errorf("open json log: %w", err)
			}
			files = append(files, f)
			out = f
		}
		sinks = append(sinks, logging.NamedSink{Name: logging.SinkJSON, Sink: loggingSinks.NewJSON(out, cfg.JSON.FlushInterval)})
	}
	return sinks, closeFiles, nil
}
