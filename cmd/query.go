package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"

	"github.com/koopa0/docpipe/internal/workflow"
)

func newQueryCmd() *cobra.Command {
	var (
		collection string
		failRate   float64
	)

	cmd := &cobra.Command{
		Use:   "query \"question\"",
		Short: "Ask a question over the indexed documentation",
		Long: `Answers one question: retrieves the most similar documents from the
corpus and asks the model with them as context. Without --collection the most
recently ingested corpus is used.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(strings.Join(args, " "), collection, failRate)
		},
	}

	cmd.Flags().StringVar(&collection, "collection", "", "collection to query (default: latest ingested)")
	cmd.Flags().Float64Var(&failRate, "fail-rate", 0, "probability each activity attempt fails, for testing retries")

	return cmd
}

func runQuery(question, collection string, failRate float64) error {
	logger := newLogger()

	cfg, c, err := dial(logger)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := signalContext()
	defer cancel()

	workflowID := "query-" + uuid.NewString()
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: cfg.TaskQueue,
	}, workflow.Query, workflow.QueryInput{
		Query:      question,
		Collection: collection,
		FailRate:   failRate,
		Retry:      retryFromConfig(cfg),
	})
	if err != nil {
		return fmt.Errorf("start query: %w", err)
	}

	logger.Debug("query started", "workflow_id", workflowID, "run_id", run.GetRunID())

	var out workflow.QueryOutput
	if err := run.Get(ctx, &out); err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	printf("%s", out.Answer)
	return nil
}
