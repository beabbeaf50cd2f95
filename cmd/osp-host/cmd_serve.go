package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"osp-go-host/internal/store"
	"osp-go-host/internal/web"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket stream, MQTT bridge and scripts",
		Example: `  osp-host serve -c /etc/osp-host/config.yaml
  osp-host serve --sim`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
}

func runServe(parent context.Context, flags *globalFlags) error {
	s, err := openSession(flags)
	if err != nil {
		return err
	}
	defer s.close()
	logger := s.logger
	cfg := s.cfg
	logger.Info("osp-host starting", "version", version, "transport", cfg.Transport.Type)

	db, err := store.NewBoltStore(cfg.Store.Path, cfg.Store.MaxTraces)
	if err != nil {
		return err
	}
	defer db.Close()
	if prev, err := db.LastTopology(); err == nil {
		logger.Info("previous topology", "last", prev.Last, "direction", prev.Direction, "at", prev.Time)
	}
	detach := store.NewRecorder(db, logger).Attach(s.ctrl.Events())
	defer detach()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing chain is not fatal; clients can retry /api/resetinit.
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if topo, err := s.ctrl.ResetInit(initCtx); err != nil {
		logger.Warn("initial reset/init failed", "err", err)
	} else {
		logger.Info("chain discovered", "last", topo.Last, "direction", topo.Dir)
	}
	cancel()

	webOpts := []web.ServerOption{
		web.WithStore(db),
		web.WithVersion(version),
	}
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}

	auto, err := newAutomation(s.ctrl, cfg, logger)
	if err != nil {
		logger.Warn("automation disabled", "err", err)
	} else {
		auto.Start()
		defer auto.Stop()
		webOpts = append(webOpts, auto.webOptions()...)
	}

	webServer := web.NewServer(s.ctrl, logger, webOpts...)
	defer webServer.Stop()

	mqtt := initMQTT(s.ctrl, cfg, logger)
	defer mqtt.Stop()

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("goodbye")
	return err
}
