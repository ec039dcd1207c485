package workflow

import (
	"fmt"

	"go.temporal.io/sdk/workflow"

	"github.com/koopa0/docpipe/internal/activity"
)

// IngestInput describes the repository slice to index.
type IngestInput struct {
	RepoURL        string
	Branch         string
	Directory      string
	FileExtensions []string
	FailRate       float64
	Retry          RetryConfig
}

// IngestOutput names the collection the run's documents landed in.
type IngestOutput struct {
	Collection string
}

// Ingest checks out a repository, stages the selected files as an archive in
// a run-scoped bucket, embeds and indexes them, and tears the staging scope
// down again. The bucket is named after the workflow ID so concurrent runs
// never collide, and cleanup is deferred on a disconnected context so it
// executes on failure paths too.
func Ingest(ctx workflow.Context, in IngestInput) (IngestOutput, error) {
	logger := workflow.GetLogger(ctx)
	rc := in.Retry.withDefaults()
	bucket := workflow.GetInfo(ctx).WorkflowExecution.ID

	logger.Info("ingestion started", "repo", in.RepoURL, "branch", in.Branch, "directory", in.Directory)

	lifecycleCtx := workflow.WithActivityOptions(ctx, lifecycleOptions(rc))
	err := workflow.ExecuteActivity(lifecycleCtx, acts.CreateBucket,
		activity.BucketInput{Bucket: bucket, FailRate: in.FailRate}).Get(lifecycleCtx, nil)
	if err != nil {
		return IngestOutput{}, fmt.Errorf("create staging bucket: %w", err)
	}

	defer func() {
		// The archive has a fixed name and a lost activity result may have
		// uploaded it anyway, so delete it unconditionally: deletion of a
		// missing object is a no-op, and a non-empty bucket cannot be
		// removed.
		dctx, _ := workflow.NewDisconnectedContext(ctx)
		cleanupCtx := workflow.WithActivityOptions(dctx, lifecycleOptions(rc))
		err := workflow.ExecuteActivity(cleanupCtx, acts.DeleteObject,
			activity.ObjectInput{Bucket: bucket, Key: activity.ArchiveName, FailRate: in.FailRate}).Get(cleanupCtx, nil)
		if err != nil {
			logger.Error("cleanup: delete archive failed", "bucket", bucket, "key", activity.ArchiveName, "error", err)
		}
		err = workflow.ExecuteActivity(cleanupCtx, acts.DeleteBucket,
			activity.BucketInput{Bucket: bucket, FailRate: in.FailRate}).Get(cleanupCtx, nil)
		if err != nil {
			logger.Error("cleanup: delete staging bucket failed", "bucket", bucket, "error", err)
		}
	}()

	collectCtx := workflow.WithActivityOptions(ctx, collectOptions(rc))
	var collected activity.CollectDocumentsOutput
	err = workflow.ExecuteActivity(collectCtx, acts.CollectDocuments, activity.CollectDocumentsInput{
		WorkflowID:     bucket,
		Bucket:         bucket,
		RepoURL:        in.RepoURL,
		Branch:         in.Branch,
		Directory:      in.Directory,
		FileExtensions: in.FileExtensions,
		FailRate:       in.FailRate,
	}).Get(collectCtx, &collected)
	if err != nil {
		return IngestOutput{}, fmt.Errorf("collect documents: %w", err)
	}

	processCtx := workflow.WithActivityOptions(ctx, processOptions(rc))
	var processed activity.ProcessDocumentsOutput
	err = workflow.ExecuteActivity(processCtx, acts.ProcessDocuments, activity.ProcessDocumentsInput{
		WorkflowID:  bucket,
		Bucket:      bucket,
		ArchiveName: collected.ArchiveName,
		FailRate:    in.FailRate,
	}).Get(processCtx, &processed)
	if err != nil {
		return IngestOutput{}, fmt.Errorf("process documents: %w", err)
	}

	logger.Info("ingestion finished", "collection", processed.Collection)
	return IngestOutput{Collection: processed.Collection}, nil
}
