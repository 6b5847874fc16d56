// Command webtab-server registers the webtab virtual table module
// against a SQLite database file and runs a small admin HTTP endpoint
// exposing process health and Prometheus metrics.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/sausheong/webtab/internal/config"
	httpmw "github.com/sausheong/webtab/internal/httpmw"
	"github.com/sausheong/webtab/internal/logging"
	"github.com/sausheong/webtab/vtab"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.LoadFromEnv()
	var jsonLogs, enableH2C bool

	root := &cobra.Command{
		Use:   "webtab-server",
		Short: "Serve the webtab SQLite virtual table module with an admin HTTP endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg, jsonLogs, enableH2C)
		},
	}

	root.Flags().StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "path to the SQLite database file")
	root.Flags().StringVar(&cfg.AdminAddr, "admin-addr", cfg.AdminAddr, "address for the admin HTTP endpoint")
	root.Flags().DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "per-query TCP/TLS connect timeout")
	root.Flags().DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "per-query socket read timeout")
	root.Flags().StringVar(&cfg.DefaultUserAgent, "user-agent", cfg.DefaultUserAgent, "User-Agent sent on every fetch")
	root.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "zerolog level (debug, info, warn, error)")
	root.Flags().BoolVar(&jsonLogs, "json-logs", false, "emit structured JSON logs instead of console output")
	root.Flags().BoolVar(&enableH2C, "h2c", false, "also accept HTTP/2 cleartext (h2c) on the admin endpoint, alongside HTTP/1.1")

	return root
}

func run(cfg *config.Config, jsonLogs, enableH2C bool) error {
	log := logging.New(cfg.LogLevel, jsonLogs)
	log.Info().
		Str("sqlite_path", cfg.SQLitePath).
		Str("admin_addr", cfg.AdminAddr).
		Msg("starting webtab-server")

	module := vtab.Register("webtab", log, vtab.WorkerConfig{
		UserAgent:      cfg.DefaultUserAgent,
		ConnectTimeout: cfg.ConnectTimeout,
		ReadTimeout:    cfg.ReadTimeout,
	})

	db, err := sql.Open("webtab", cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}

	handler := adminRouter(log, module, db)
	if enableH2C {
		handler = h2c.NewHandler(handler, &http2.Server{})
		log.Info().Msg("HTTP/2 cleartext (h2c) enabled for the admin endpoint")
	}

	srv := &http.Server{
		Addr:         cfg.AdminAddr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.ListenAndServe()
	}()
	log.Info().Str("addr", cfg.AdminAddr).Msg("admin endpoint listening")

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("admin server error: %w", err)
		}
		return nil
	case sig := <-shutdown:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
			srv.Close()
			return fmt.Errorf("shutdown: %w", err)
		}
		log.Info().Msg("webtab-server stopped gracefully")
		return nil
	}
}

func adminRouter(log zerolog.Logger, module *vtab.Module, db *sql.DB) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(httpmw.RecoveryMiddleware(log))
	r.Use(httpmw.LoggingMiddleware(log))
	r.Use(httpmw.SecurityHeadersMiddleware())

	r.Get("/healthz", healthHandler(db))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/recent-errors", recentErrorsHandler(module))

	return r
}

func healthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func recentErrorsHandler(module *vtab.Module) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(module.Ring.Recent())
	}
}
