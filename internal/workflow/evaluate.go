package workflow

import (
	"fmt"
	"sort"

	"go.temporal.io/sdk/workflow"

	"github.com/koopa0/docpipe/internal/activity"
)

// EvaluateInput names the test set to run the corpus against.
type EvaluateInput struct {
	TestName   string
	Collection string
	FailRate   float64
	Retry      RetryConfig
}

// EvaluateOutput carries every per-query grade plus the batch reduction.
type EvaluateOutput struct {
	Results      []activity.ValidationResult
	Summary      string
	AverageScore float64
}

// Evaluate grades the query pipeline against a named test set: one child
// Query workflow per test case, all in parallel, then one validation per
// answer, then a single summary. A failed child does not fail the batch; it
// scores zero with the failure as the reason, so a run always produces a
// complete report.
func Evaluate(ctx workflow.Context, in EvaluateInput) (EvaluateOutput, error) {
	logger := workflow.GetLogger(ctx)
	rc := in.Retry.withDefaults()
	opts := queryOptions(rc)

	loadCtx := workflow.WithActivityOptions(ctx, opts)
	var loaded activity.LoadTestCasesOutput
	err := workflow.ExecuteActivity(loadCtx, acts.LoadTestCases,
		activity.LoadTestCasesInput{TestName: in.TestName, FailRate: in.FailRate}).Get(loadCtx, &loaded)
	if err != nil {
		return EvaluateOutput{}, fmt.Errorf("load test cases: %w", err)
	}

	// Map iteration order is not deterministic; child workflow scheduling
	// must be.
	queries := make([]string, 0, len(loaded.Cases))
	for q := range loaded.Cases {
		queries = append(queries, q)
	}
	sort.Strings(queries)

	logger.Info("evaluation started", "test_set", in.TestName, "cases", len(queries))

	runID := workflow.GetInfo(ctx).WorkflowExecution.ID
	children := make([]workflow.ChildWorkflowFuture, len(queries))
	for i, q := range queries {
		childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
			WorkflowID: fmt.Sprintf("%s/query-%d", runID, i),
		})
		children[i] = workflow.ExecuteChildWorkflow(childCtx, Query, QueryInput{
			Query:      q,
			Collection: in.Collection,
			FailRate:   in.FailRate,
			Retry:      in.Retry,
		})
	}

	results := make([]activity.ValidationResult, len(queries))
	validations := make([]workflow.Future, len(queries))
	validateCtx := workflow.WithActivityOptions(ctx, opts)
	for i, q := range queries {
		results[i] = activity.ValidationResult{Query: q, ExpectedAnswer: loaded.Cases[q]}

		var out QueryOutput
		if err := children[i].Get(ctx, &out); err != nil {
			results[i].Reason = fmt.Sprintf("query failed: %v", err)
			continue
		}
		results[i].ActualAnswer = out.Answer

		validations[i] = workflow.ExecuteActivity(validateCtx, acts.ValidateResult, activity.ValidateResultInput{
			Query:          q,
			ExpectedAnswer: loaded.Cases[q],
			ActualAnswer:   out.Answer,
			FailRate:       in.FailRate,
		})
	}

	for i := range validations {
		if validations[i] == nil {
			continue
		}
		var verdict activity.ValidateResultOutput
		if err := validations[i].Get(ctx, &verdict); err != nil {
			results[i].Reason = fmt.Sprintf("validation failed: %v", err)
			continue
		}
		results[i].Score = verdict.Score
		results[i].Reason = verdict.Reason
	}

	summarizeCtx := workflow.WithActivityOptions(ctx, summarizeOptions(rc))
	var summary activity.SummarizeResultsOutput
	err = workflow.ExecuteActivity(summarizeCtx, acts.SummarizeResults,
		activity.SummarizeResultsInput{Results: results, FailRate: in.FailRate}).Get(summarizeCtx, &summary)
	if err != nil {
		return EvaluateOutput{}, fmt.Errorf("summarize results: %w", err)
	}

	logger.Info("evaluation finished", "average_score", summary.AverageScore)
	return EvaluateOutput{Results: results, Summary: summary.Summary, AverageScore: summary.AverageScore}, nil
}
