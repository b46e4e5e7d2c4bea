package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/chilledornaments/htaccess-tester-core/internal/cache"
	"github.com/chilledornaments/htaccess-tester-core/internal/config"
	"github.com/chilledornaments/htaccess-tester-core/internal/httpapi"
	"github.com/chilledornaments/htaccess-tester-core/internal/logging"
	"github.com/chilledornaments/htaccess-tester-core/pkg/rewrite"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /evaluate, /status, and /metrics over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()
			return serve(ctx, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the host's YAML config file")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func serve(ctx context.Context, configPath string) error {
	logger := logging.FromEnv()

	cfg, err := config.Load(logger, configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	store := config.NewStore(cfg)

	matcherCache := cache.NewMatcherCache(ctx, logger, cfg.Cache.CleanupInterval, cfg.Cache.TTL)
	rewrite.CompileFunc = matcherCache.Compile
	warmMatcherCache(logger, matcherCache, cfg)

	go config.Watch(ctx, logger, configPath, store)

	mux := http.NewServeMux()
	mux.Handle("/evaluate", httpapi.HandleEvaluate(logger, store))
	mux.Handle("/status", httpapi.HandleStatus(store))

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           mux,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       30 * time.Second,
	}
	metricsSrv := &http.Server{
		Addr:         cfg.MetricsServerListenAddress,
		Handler:      metricsMux,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		IdleTimeout:  1 * time.Minute,
	}

	go func() {
		logger.WithGroup("server").Info("starting server", "listen_address", cfg.ListenAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithGroup("server").Error("error serving", "err", err.Error())
			os.Exit(1)
		}
	}()

	go func() {
		logger.WithGroup("metrics_server").Info("starting metrics", "listen_address", cfg.MetricsServerListenAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithGroup("metrics_server").Error("error serving", "err", err.Error())
			os.Exit(1)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithGroup("server").Error("error shutting down", "err", err.Error())
		} else {
			logger.Info("shut down server")
		}
	}()

	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.WithGroup("metrics_server").Error("error shutting down", "err", err.Error())
		} else {
			logger.Info("shut down metrics server")
		}
	}()

	wg.Wait()
	return nil
}

// warmMatcherCache compiles every pattern in the loaded document up front
// so startup surfaces regex-safety rejections in the log instead of on the
// first request that happens to reach them.
func warmMatcherCache(logger *slog.Logger, mc *cache.MatcherCache, cfg *config.AppConfig) {
	limits := cfg.Limits.AsLimits()
	for _, node := range cfg.Document.Nodes {
		var pattern string
		var nocase bool
		switch node.Kind {
		case rewrite.NodeRule:
			pattern, nocase = node.Pattern, node.Flags.NoCase
		case rewrite.NodeCond:
			pattern, nocase = node.CondPattern, node.CondNoCase
		default:
			continue
		}

		if _, err := mc.Compile(pattern, nocase, limits.MaxRegexSubjectLength); err != nil {
			logger.Warn("pattern rejected by regex safety layer", "line", node.LineNo, "pattern", pattern, "err", err)
		}
	}
}
