package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoCodeAlone/sqlschema/config"
	"github.com/GoCodeAlone/sqlschema/schema"
)

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	conn := addConnFlags(fs)
	metricsAddr := fs.String("metrics-addr", "", "Serve Prometheus metrics on this address (overrides config)")
	debounce := fs.Duration("debounce", 0, "Delay before reacting to file changes (overrides config)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), `Usage: schemactl watch [options]

Apply the declaration, then apply it again each time the declaration file
changes. Runs until interrupted.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := conn.load()
	if err != nil {
		return err
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if *debounce > 0 {
		cfg.Watch.Debounce = *debounce
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopTracing, err := startTracing(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopTracing()

	s, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if cfg.Metrics.Addr != "" {
		srv := metricsServer(cfg.Metrics.Addr, s)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("metrics server failed", "addr", cfg.Metrics.Addr, "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		s.logger.Info("serving metrics", "addr", cfg.Metrics.Addr)
	}

	decl, err := s.declaration()
	if err != nil {
		return err
	}
	s.apply(ctx, decl)

	w := config.NewDeclarationWatcher(config.NewFileSource(cfg.Schema), func(evt config.ChangeEvent) {
		s.apply(ctx, evt.Declaration)
	}, config.WithWatchDebounce(cfg.Watch.Debounce), config.WithWatchLogger(s.logger))
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	s.logger.Info("watching declaration", "path", cfg.Schema)
	<-ctx.Done()
	return nil
}

func metricsServer(addr string, s *session) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// apply runs one update and logs the outcome; watch mode keeps running after
// a failed update so a corrected declaration can be applied.
func (s *session) apply(ctx context.Context, decl *schema.Declaration) {
	ok, err := s.runner.UpdateSchema(ctx, decl)
	switch {
	case err != nil:
		s.logger.Error("schema update failed", "version", decl.Version, "err", err)
	case !ok:
		s.logger.Warn("schema update did not complete", "version", decl.Version)
	}
}
