// run.go: long-running host with hot reload and metrics
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agilira/plughost"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

type runFlags struct {
	metricsAddr     string
	watchModules    bool
	shutdownTimeout time.Duration
}

func newRunCommand(flags *globalFlags) *cobra.Command {
	rf := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [dir]",
		Short: "Load every plugin in a directory and keep them running",
		Long: `Run discovers and loads every plugin under the directory, reloads
plugins whose module changes on disk, applies edits to the --config file
while running and serves Prometheus metrics when --metrics-addr is set.
It stops on SIGINT or SIGTERM and unloads every plugin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(cmd.Context(), flags, rf, args)
		},
	}

	cmd.Flags().StringVar(&rf.metricsAddr, "metrics-addr", "", "address for the /metrics endpoint, e.g. :9090")
	cmd.Flags().BoolVar(&rf.watchModules, "watch", true, "reload plugins when their files change")
	cmd.Flags().DurationVar(&rf.shutdownTimeout, "shutdown-timeout", 30*time.Second, "time allowed to unload plugins on exit")
	return cmd
}

func runHost(parent context.Context, flags *globalFlags, rf *runFlags, args []string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := flags.newHost()
	if err != nil {
		return err
	}
	log := h.logger

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observer, err := plughost.NewMetricsObserver(registry)
	if err != nil {
		return err
	}
	defer observer.Attach(h.manager)()

	if rf.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
		server := &http.Server{Addr: rf.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info().Str("addr", rf.metricsAddr).Msg("Serving metrics")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	if rf.watchModules {
		watcher, err := plughost.NewModuleWatcher(h.manager, plughost.ModuleWatcherOptions{
			Logger: plughost.NewZerologAdapter(log),
		})
		if err != nil {
			return err
		}
		defer watcher.Close()
	}

	if flags.configPath != "" {
		cw, err := plughost.NewConfigWatcher(flags.configPath, configApplier{manager: h.manager, flags: flags},
			plughost.DefaultConfigWatcherOptions(), plughost.NewZerologAdapter(log))
		if err != nil {
			return err
		}
		if err := cw.Start(); err != nil {
			return err
		}
		defer cw.Stop()
	}

	dir := h.config.PluginDir
	if len(args) == 1 {
		dir = args[0]
	}

	loaded := 0
	for _, found := range h.manager.DiscoverPlugins(ctx, dir) {
		if !found.OK() {
			log.Warn().Str("manifest", found.Source).Str("error", found.Error).Msg("Skipping invalid manifest")
			continue
		}
		if h.manager.LoadPlugin(ctx, found.Source) {
			loaded++
		}
	}
	log.Info().Int("loaded", loaded).Str("dir", dir).Msg("Plugin host running")

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), rf.shutdownTimeout)
	defer cancel()
	return h.manager.Shutdown(shutdownCtx)
}
