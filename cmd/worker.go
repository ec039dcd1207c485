package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/worker"

	"github.com/koopa0/docpipe/internal/activity"
	"github.com/koopa0/docpipe/internal/blob"
	"github.com/koopa0/docpipe/internal/collect"
	"github.com/koopa0/docpipe/internal/config"
	"github.com/koopa0/docpipe/internal/corpus"
	"github.com/koopa0/docpipe/internal/llm"
	"github.com/koopa0/docpipe/internal/log"
	"github.com/koopa0/docpipe/internal/testcases"
	"github.com/koopa0/docpipe/internal/workflow"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the Temporal worker hosting all pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker()
		},
	}
}

func runWorker() error {
	logger := newLogger()

	cfg, c, err := dial(logger)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	acts, pool, err := buildActivities(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	w := worker.New(c, cfg.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflow.Ingest)
	w.RegisterWorkflow(workflow.Query)
	w.RegisterWorkflow(workflow.Evaluate)
	w.RegisterActivity(acts)

	logger.Info("worker starting",
		"task_queue", cfg.TaskQueue,
		"temporal", cfg.TemporalAddress,
		"collection", cfg.Collection)

	return w.Run(worker.InterruptCh())
}

// buildActivities constructs every external dependency the activities talk
// to. The pool is returned so the caller controls its lifetime.
func buildActivities(ctx context.Context, cfg *config.Config, logger log.Logger) (*activity.Activities, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	blobClient, err := blob.New(blob.Config{
		Endpoint:        cfg.BlobEndpoint,
		Region:          cfg.BlobRegion,
		AccessKeyID:     cfg.BlobAccessKeyID,
		SecretAccessKey: cfg.BlobSecretAccessKey,
	}, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("create blob client: %w", err)
	}

	model, err := llm.New(ctx, llm.Config{
		APIKey:        cfg.GeminiAPIKey,
		Model:         cfg.ModelName,
		EmbedderModel: cfg.EmbedderModel,
		EmbeddingDim:  cfg.EmbeddingDim,
	}, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("create model client: %w", err)
	}

	acts := activity.New(activity.Params{
		Blob:       blobClient,
		Corpus:     corpus.New(pool, logger),
		Model:      model,
		Collector:  collect.New(logger),
		TestCases:  testcases.NewLoader(cfg.TestSetDir),
		Collection: cfg.Collection,
	})
	return acts, pool, nil
}
