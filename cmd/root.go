// Package cmd wires the docpipe binaries: a Temporal worker hosting the
// pipelines, client commands that start them, and schema migration.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	sdklog "go.temporal.io/sdk/log"

	"github.com/koopa0/docpipe/internal/config"
	"github.com/koopa0/docpipe/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "docpipe",
	Short: "Durable documentation pipelines: ingest, query, evaluate",
	Long: `docpipe indexes a repository's documentation into a vector store and
answers questions over it. Ingestion, querying, and batch evaluation run as
Temporal workflows, so every step retries, resumes, and cleans up after
itself.`,
	SilenceUsage: true,
}

var debug bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(newWorkerCmd())
	rootCmd.AddCommand(newIngestCmd())
	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newEvaluateCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func newLogger() log.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level})
}

// dial loads configuration and connects a Temporal client. The SDK logs
// through the same slog handler as everything else.
func dial(logger log.Logger) (*config.Config, client.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    sdklog.NewStructuredLogger(logger),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to Temporal at %s: %w", cfg.TemporalAddress, err)
	}
	return cfg, c, nil
}

// signalContext cancels on Ctrl-C so a waiting client detaches cleanly. The
// workflow itself keeps running on the worker.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func printf(format string, args ...any) {
	fmt.Fprintf(os.Stdout, format+"\n", args...)
}
