package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"

	"github.com/koopa0/docpipe/internal/workflow"
)

func newEvaluateCmd() *cobra.Command {
	var (
		testSet    string
		collection string
		failRate   float64
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Grade the query pipeline against a test set",
		Long: `Runs every query in the named test set through the query pipeline,
grades each answer against the expected one, and prints a summary. Test sets
are YAML files mapping queries to expected answers, looked up by name in the
configured test set directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(testSet, collection, failRate)
		},
	}

	cmd.Flags().StringVar(&testSet, "test-set", "", "test set name (required)")
	cmd.Flags().StringVar(&collection, "collection", "", "collection to query (default: latest ingested)")
	cmd.Flags().Float64Var(&failRate, "fail-rate", 0, "probability each activity attempt fails, for testing retries")
	_ = cmd.MarkFlagRequired("test-set")

	return cmd
}

func runEvaluate(testSet, collection string, failRate float64) error {
	logger := newLogger()

	cfg, c, err := dial(logger)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := signalContext()
	defer cancel()

	workflowID := "evaluate-" + uuid.NewString()
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: cfg.TaskQueue,
	}, workflow.Evaluate, workflow.EvaluateInput{
		TestName:   testSet,
		Collection: collection,
		FailRate:   failRate,
		Retry:      retryFromConfig(cfg),
	})
	if err != nil {
		return fmt.Errorf("start evaluation: %w", err)
	}

	logger.Info("evaluation started", "workflow_id", workflowID, "run_id", run.GetRunID())

	var out workflow.EvaluateOutput
	if err := run.Get(ctx, &out); err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	for _, r := range out.Results {
		printf("[%.0f] %s", r.Score, r.Query)
		printf("    %s", r.Reason)
	}
	printf("")
	printf("Average score: %.2f", out.AverageScore)
	printf("%s", out.Summary)
	return nil
}
