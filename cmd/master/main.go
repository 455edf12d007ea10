// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gridwork/cluster/internal/envelope"
	"github.com/gridwork/cluster/internal/master"
	"github.com/gridwork/cluster/internal/messenger"
	"github.com/gridwork/cluster/pkg/config"
	"github.com/gridwork/cluster/pkg/logging"
	"github.com/gridwork/cluster/pkg/metrics"
)

var (
	bindPort  int
	adminAddr string
	debug     bool

	rootCmd = &cobra.Command{
		Use:   "gridwork-master",
		Short: "Run this node as the cluster's coordinator",
		Long:  `Accepts jobs, splits and schedules their task units across associated workers, and exposes an admin HTTP+WebSocket surface over job progress.`,
		RunE:  runMaster,
	}
)

func init() {
	rootCmd.Flags().IntVarP(&bindPort, "port", "p", config.DefaultWorkerPort, "UDP port this master binds")
	rootCmd.Flags().StringVar(&adminAddr, "admin-addr", ":8080", "bind address for the admin HTTP+WebSocket surface")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func runMaster(cmd *cobra.Command, args []string) error {
	cfg := logging.DefaultConfig()
	if debug {
		cfg.Level = slog.LevelDebug
	}
	log := logging.NewLogger(cfg)

	coll := metrics.NewInMemoryCollector()

	msgr, err := messenger.New(bindPort, messenger.WithLogger(log), messenger.WithMetrics(coll))
	if err != nil {
		return fmt.Errorf("binding messenger: %w", err)
	}
	defer msgr.Close()

	registry := envelope.NewRegistry()
	m := master.New(msgr, registry, master.WithLogger(log), master.WithMetrics(coll))

	srv := master.NewServer(m, log, master.WithServerMetrics(coll))
	httpServer := &http.Server{Addr: adminAddr, Handler: srv}

	go func() {
		log.Info("admin surface listening", "addr", adminAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("admin surface failed", "error", err.Error())
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("master listening", "port", bindPort)
	serveErr := m.Serve(ctx)
	_ = httpServer.Close()

	if ctx.Err() != nil {
		return nil
	}
	return serveErr
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
