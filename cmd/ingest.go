package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"

	"github.com/koopa0/docpipe/internal/config"
	"github.com/koopa0/docpipe/internal/workflow"
)

func retryFromConfig(cfg *config.Config) workflow.RetryConfig {
	return workflow.RetryConfig{
		MaximumAttempts:    int32(cfg.RetryMaxAttempts),
		BackoffCoefficient: cfg.RetryBackoffCoefficient,
		InitialInterval:    time.Duration(cfg.RetryInitialIntervalMS) * time.Millisecond,
	}
}

func newIngestCmd() *cobra.Command {
	var (
		repoURL    string
		branch     string
		directory  string
		extensions []string
		failRate   float64
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index a repository's documentation",
		Long: `Starts an ingestion run: shallow-clone the repository, archive the
selected files, embed them, and index them into the corpus. Blocks until the
run finishes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(repoURL, branch, directory, extensions, failRate)
		},
	}

	cmd.Flags().StringVar(&repoURL, "url", "", "repository URL (required)")
	cmd.Flags().StringVar(&branch, "branch", "main", "branch to clone")
	cmd.Flags().StringVar(&directory, "path", "", "subdirectory to index (default: whole repository)")
	cmd.Flags().StringSliceVar(&extensions, "ext", []string{"md"}, "file extensions to include")
	cmd.Flags().Float64Var(&failRate, "fail-rate", 0, "probability each activity attempt fails, for testing retries")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}

func runIngest(repoURL, branch, directory string, extensions []string, failRate float64) error {
	logger := newLogger()

	cfg, c, err := dial(logger)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := signalContext()
	defer cancel()

	workflowID := "ingest-" + uuid.NewString()
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: cfg.TaskQueue,
	}, workflow.Ingest, workflow.IngestInput{
		RepoURL:        repoURL,
		Branch:         branch,
		Directory:      directory,
		FileExtensions: extensions,
		FailRate:       failRate,
		Retry:          retryFromConfig(cfg),
	})
	if err != nil {
		return fmt.Errorf("start ingestion: %w", err)
	}

	logger.Info("ingestion started", "workflow_id", workflowID, "run_id", run.GetRunID())

	var out workflow.IngestOutput
	if err := run.Get(ctx, &out); err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	printf("Ingested %s into collection %q.", repoURL, out.Collection)
	return nil
}
