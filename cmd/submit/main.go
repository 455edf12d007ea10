// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gridwork/cluster/internal/job"
	"github.com/gridwork/cluster/internal/messenger"
	"github.com/gridwork/cluster/pkg/config"
)

var (
	jobPath       string
	processorName string
	splitterName  string
	combinerName  string
	masterHost    string
	masterPort    int

	rootCmd = &cobra.Command{
		Use:   "gridwork-submit",
		Short: "Submit a job to a running master",
		Long:  `Reads a job's input data from a file and sends it to a master, polling until the submission is acknowledged.`,
		RunE:  runSubmit,
	}
)

func init() {
	rootCmd.Flags().StringVarP(&jobPath, "jobpath", "j", "", "path to the file holding the job's input data (required)")
	rootCmd.Flags().StringVar(&processorName, "processor", "identity", "name of the processor registered on every worker")
	rootCmd.Flags().StringVar(&splitterName, "splitter", "lines", "name of the registered splitter")
	rootCmd.Flags().StringVar(&combinerName, "combiner", "sum", "name of the registered combiner")
	rootCmd.Flags().StringVar(&masterHost, "master-host", "127.0.0.1", "master's IP or resolvable hostname")
	rootCmd.Flags().IntVarP(&masterPort, "port", "p", config.DefaultWorkerPort, "master's UDP port")
	_ = rootCmd.MarkFlagRequired("jobpath")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(jobPath)
	if err != nil {
		return fmt.Errorf("reading job file %s: %w", jobPath, err)
	}

	msgr, err := messenger.New(0)
	if err != nil {
		return fmt.Errorf("binding messenger: %w", err)
	}
	defer msgr.Close()

	ips, err := net.LookupHost(masterHost)
	if err != nil || len(ips) == 0 {
		return fmt.Errorf("resolving master host %q: %w", masterHost, err)
	}
	addr := &net.UDPAddr{IP: net.ParseIP(ips[0]), Port: masterPort}
	msgr.RegisterDestination("master", addr)

	j := job.NewJob(string(data), processorName, splitterName, combinerName)

	tracker, err := msgr.SendJob(j, "master", true)
	if err != nil {
		return fmt.Errorf("sending job: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	acked := make(chan error, 1)
	go func() { acked <- tracker.WaitAcked(ctx) }()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case err := <-acked:
			if err != nil {
				return fmt.Errorf("job %s was never acknowledged: %w", j.ID, err)
			}
			fmt.Printf("job %s acknowledged\n", j.ID)
			return nil
		case <-ticker.C:
			fmt.Printf("waiting for job %s to be acknowledged...\n", j.ID)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
