// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gridwork/cluster/internal/envelope"
	"github.com/gridwork/cluster/internal/messenger"
	"github.com/gridwork/cluster/internal/worker"
	"github.com/gridwork/cluster/pkg/config"
	"github.com/gridwork/cluster/pkg/logging"
	"github.com/gridwork/cluster/pkg/metrics"
)

var (
	bindPort  int
	configDir string
	hostname  string
	debug     bool

	rootCmd = &cobra.Command{
		Use:   "gridwork-worker",
		Short: "Run this node as a task-unit executor",
		Long:  `Associates with every master listed in this node's configuration file, then executes task units handed to it by resolving their processor name against the built-in registry.`,
		RunE:  runWorker,
	}
)

func init() {
	rootCmd.Flags().IntVarP(&bindPort, "port", "p", config.DefaultWorkerPort, "UDP port this worker binds")
	rootCmd.Flags().StringVarP(&configDir, "config-dir", "c", "config", "directory containing <hostname>-slave-config.json")
	rootCmd.Flags().StringVar(&hostname, "hostname", "", "override this node's hostname (default: os.Hostname())")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// registerBuiltinProcessors seeds the names a worker can execute
// without a per-job deployment step, standing in for the job-specific
// source files original_source/commands/create_job.py used to import.
func registerBuiltinProcessors(registry *envelope.Registry) {
	registry.RegisterProcessor("identity", func(data string) (interface{}, error) {
		return data, nil
	})
	registry.RegisterProcessor("length", func(data string) (interface{}, error) {
		return float64(len(data)), nil
	})
	registry.RegisterProcessor("double", func(data string) (interface{}, error) {
		v, err := strconv.ParseFloat(strings.TrimSpace(data), 64)
		if err != nil {
			return nil, fmt.Errorf("double: %w", err)
		}
		return v * 2, nil
	})
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg := logging.DefaultConfig()
	if debug {
		cfg.Level = slog.LevelDebug
	}
	log := logging.NewLogger(cfg)

	if hostname == "" {
		h, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("resolving hostname: %w", err)
		}
		hostname = h
	}

	workerConfig, err := config.LoadWorkerConfig(configDir, hostname)
	if err != nil {
		return fmt.Errorf("loading worker config: %w", err)
	}

	coll := metrics.NewInMemoryCollector()

	msgr, err := messenger.New(bindPort, messenger.WithLogger(log), messenger.WithMetrics(coll))
	if err != nil {
		return fmt.Errorf("binding messenger: %w", err)
	}
	defer msgr.Close()

	registry := envelope.NewRegistry()
	registerBuiltinProcessors(registry)

	w := worker.New(msgr, registry, hostname, worker.WithLogger(log), worker.WithMetrics(coll))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := w.Associate(ctx, workerConfig.Masters); err != nil {
		return fmt.Errorf("associating with masters: %w", err)
	}
	log.Info("worker associated with all masters", "count", len(workerConfig.Masters))

	err = w.Run(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
