package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mchmarny/claimq/pkg/logging"
	"github.com/mchmarny/claimq/pkg/metrics"
	urfave "github.com/urfave/cli/v2"
)

const (
	serverShutdownWaitSeconds = 5
	serverTimeoutSeconds      = 300
	serverMaxHeaderBytes      = 20
	serverPortDefault         = 8080
)

var (
	portFlag = &urfave.IntFlag{
		Name:  "port",
		Usage: "Port on which the server will listen",
		Value: serverPortDefault,
	}

	serverCmd = &urfave.Command{
		Name:    "serve",
		Aliases: []string{"server"},
		Usage:   "Start local HTTP server with the run and queue API",
		Action:  cmdStartServer,
		Flags: []urfave.Flag{
			portFlag,
		},
	}
)

func cmdStartServer(c *urfave.Context) error {
	cfg := getConfig(c)

	level := cfg.Config.LogLevel
	if cfg.Debug {
		level = "debug"
	}
	slog.SetDefault(logging.NewServerLogger(os.Stderr, level))

	if err := cfg.Metrics.RegisterRuntime(); err != nil {
		return err
	}

	address := fmt.Sprintf("127.0.0.1:%d", c.Int(portFlag.Name))
	s := &http.Server{
		Addr:           address,
		Handler:        makeRouter(cfg.DB, cfg.Metrics),
		ReadTimeout:    serverTimeoutSeconds * time.Second,
		WriteTimeout:   serverTimeoutSeconds * time.Second,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(done)

	errCh := make(chan error, 1)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("server started", "address", "http://"+address)

	select {
	case <-done:
	case <-c.Context.Done():
	case err := <-errCh:
		return fmt.Errorf("error starting server: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownWaitSeconds*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("error shutting down server", "error", err)
	}
	slog.Info("server stopped")
	return nil
}

func makeRouter(db *sql.DB, m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()

	handle := func(pattern, name string, h http.HandlerFunc) {
		mux.Handle(pattern, m.Instrument(name, h))
	}

	// Data API
	handle("GET /data/runs", "runs", runsAPIHandler(db))
	handle("GET /data/runs/{id}", "run", runAPIHandler(db))
	handle("DELETE /data/runs/{id}", "run_delete", deleteRunAPIHandler(db))
	handle("GET /data/queue", "queue", queueAPIHandler(db))

	mux.Handle("GET /metrics", m.Handler())

	return mux
}
