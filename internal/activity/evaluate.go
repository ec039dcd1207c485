package activity

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/koopa0/docpipe/internal/llm"
	"github.com/koopa0/docpipe/internal/testcases"
)

// LoadTestCasesInput names the labeled evaluation set to load.
type LoadTestCasesInput struct {
	TestName string
	FailRate float64
}

// LoadTestCasesOutput maps each query to its expected answer.
type LoadTestCasesOutput struct {
	Cases map[string]string
}

// LoadTestCases loads the named test set. Missing and empty sets are
// permanent failures: no retry will change the set's contents.
func (a *Activities) LoadTestCases(ctx context.Context, in LoadTestCasesInput) (LoadTestCasesOutput, error) {
	if err := a.maybeFail(in.FailRate); err != nil {
		return LoadTestCasesOutput{}, err
	}

	cases, err := a.testCases.Load(in.TestName)
	if err != nil {
		switch {
		case errors.Is(err, testcases.ErrEmptyTestSet):
			return LoadTestCasesOutput{}, permanentErr(TypeEmptyTestSet, "test set has no cases", err)
		case errors.Is(err, testcases.ErrInvalidTestName), errors.Is(err, fs.ErrNotExist):
			return LoadTestCasesOutput{}, permanentErr(TypeTestSetNotFound, "test set not found", err)
		}
		return LoadTestCasesOutput{}, transientErr(TypeStorageReadFailed, "load test set", err)
	}

	return LoadTestCasesOutput{Cases: cases}, nil
}

// ValidationResult is the scored outcome for one evaluated query.
type ValidationResult struct {
	Query          string
	ExpectedAnswer string
	ActualAnswer   string
	Score          float64
	Reason         string
}

// ValidateResultInput is one {query, expected, actual} triple to grade.
type ValidateResultInput struct {
	Query          string
	ExpectedAnswer string
	ActualAnswer   string
	FailRate       float64
}

// ValidateResultOutput carries the grade and its justification.
type ValidateResultOutput struct {
	Score  float64
	Reason string
}

// ValidateResult delegates correctness grading to the language model: the
// model replies with a binary verdict and a one-line reason.
func (a *Activities) ValidateResult(ctx context.Context, in ValidateResultInput) (ValidateResultOutput, error) {
	if err := a.maybeFail(in.FailRate); err != nil {
		return ValidateResultOutput{}, err
	}

	prompt := fmt.Sprintf(
		"Question: %s\n\nExpected answer: %s\n\nActual answer: %s",
		in.Query, in.ExpectedAnswer, in.ActualAnswer)

	verdict, err := a.model.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Text: "You are grading a question-answering system. " +
			"Decide whether the actual answer conveys the same information as the expected answer. " +
			"Reply with exactly one line: '1 - <reason>' when it does, '0 - <reason>' when it does not."},
		{Role: llm.RoleUser, Text: prompt},
	})
	if err != nil {
		return ValidateResultOutput{}, classifyModelErr(err)
	}

	score, reason := parseVerdict(verdict)
	return ValidateResultOutput{Score: score, Reason: reason}, nil
}

// parseVerdict extracts the binary score and reason from a grading reply.
// Anything that does not clearly start with a 1 scores 0.
func parseVerdict(verdict string) (float64, string) {
	trimmed := strings.TrimSpace(verdict)
	score := 0.0
	if strings.HasPrefix(trimmed, "1") {
		score = 1.0
	}

	reason := strings.TrimLeft(trimmed, "10")
	reason = strings.TrimLeft(reason, " \t-–:")
	if reason == "" {
		reason = trimmed
	}
	return score, reason
}

// SummarizeResultsInput carries every per-query validation result.
type SummarizeResultsInput struct {
	Results  []ValidationResult
	FailRate float64
}

// SummarizeResultsOutput reduces a batch to one narrative and one mean score.
type SummarizeResultsOutput struct {
	Summary      string
	AverageScore float64
}

// SummarizeResults computes the arithmetic mean of all scores and asks the
// model for a narrative reduction. The average is computed locally and never
// depends on the model; when the narrative call fails, a deterministic
// summary line is used instead so a finished batch always reports.
func (a *Activities) SummarizeResults(ctx context.Context, in SummarizeResultsInput) (SummarizeResultsOutput, error) {
	if err := a.maybeFail(in.FailRate); err != nil {
		return SummarizeResultsOutput{}, err
	}
	if len(in.Results) == 0 {
		return SummarizeResultsOutput{}, permanentErr(TypeEmptyTestSet, "no validation results to summarize", nil)
	}

	var sum float64
	passed := 0
	var lines []string
	for _, r := range in.Results {
		sum += r.Score
		if r.Score >= 1 {
			passed++
		}
		lines = append(lines, fmt.Sprintf("- %q scored %.0f: %s", r.Query, r.Score, r.Reason))
	}
	avg := sum / float64(len(in.Results))

	fallback := fmt.Sprintf("%d of %d queries answered correctly (average score %.2f).",
		passed, len(in.Results), avg)

	summary, err := a.model.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Text: "Summarize the following evaluation results of a documentation " +
			"question-answering system in a short paragraph. Mention notable failures."},
		{Role: llm.RoleUser, Text: strings.Join(lines, "\n")},
	})
	if err != nil {
		summary = fallback
	}

	return SummarizeResultsOutput{Summary: summary, AverageScore: avg}, nil
}
