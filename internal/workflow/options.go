// Package workflow contains the durable orchestrations: repository ingestion,
// question answering over the indexed corpus, and batch evaluation. Every
// external interaction happens in an activity; the workflows only sequence,
// retry, and compensate.
package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/koopa0/docpipe/internal/activity"
)

// acts is never instantiated: its method values only carry activity names
// into ExecuteActivity. The worker registers the real instance.
var acts *activity.Activities

// RetryConfig tunes the activity retry policy for a whole workflow run.
// Callers that inject faults tighten MaximumAttempts so a run terminates.
type RetryConfig struct {
	MaximumAttempts    int32
	BackoffCoefficient float64
	InitialInterval    time.Duration
}

func (rc RetryConfig) withDefaults() RetryConfig {
	if rc.MaximumAttempts == 0 {
		rc.MaximumAttempts = 3
	}
	if rc.BackoffCoefficient == 0 {
		rc.BackoffCoefficient = 2.0
	}
	if rc.InitialInterval == 0 {
		rc.InitialInterval = time.Second
	}
	return rc
}

func (rc RetryConfig) policy() *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:    rc.InitialInterval,
		BackoffCoefficient: rc.BackoffCoefficient,
		MaximumAttempts:    rc.MaximumAttempts,
	}
}

// Activity options come in cost classes. Lifecycle operations (bucket and
// object management) are cheap; collection pulls a repository over the
// network; processing embeds every file in the archive and dominates the
// ingestion budget.

func lifecycleOptions(rc RetryConfig) workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy:         rc.policy(),
	}
}

func collectOptions(rc RetryConfig) workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy:         rc.policy(),
	}
}

func processOptions(rc RetryConfig) workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 50 * time.Minute,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy:         rc.policy(),
	}
}

func queryOptions(rc RetryConfig) workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy:         rc.policy(),
	}
}

func summarizeOptions(rc RetryConfig) workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy:         rc.policy(),
	}
}
