package workflow

import (
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/sdk/workflow"

	"github.com/koopa0/docpipe/internal/activity"
)

// QueryInput carries one question. Collection, when empty, resolves to the
// most recently processed corpus.
type QueryInput struct {
	Query      string
	Collection string
	FailRate   float64
	Retry      RetryConfig
}

// QueryOutput pairs the answer with the conversation scope it was produced
// in.
type QueryOutput struct {
	ConversationID string
	Answer         string
}

// Query answers one question over the indexed corpus: resolve the
// collection, stage the retrieved context in a conversation-scoped bucket,
// invoke the model, and tear the scope down. Each instance owns its bucket,
// so any number of queries can run concurrently.
func Query(ctx workflow.Context, in QueryInput) (QueryOutput, error) {
	logger := workflow.GetLogger(ctx)
	rc := in.Retry.withDefaults()
	opts := queryOptions(rc)

	collection := in.Collection
	if collection == "" {
		resolveCtx := workflow.WithActivityOptions(ctx, opts)
		var latest activity.LatestCollectionOutput
		err := workflow.ExecuteActivity(resolveCtx, acts.LatestCollection,
			activity.LatestCollectionInput{FailRate: in.FailRate}).Get(resolveCtx, &latest)
		if err != nil {
			return QueryOutput{}, fmt.Errorf("resolve latest collection: %w", err)
		}
		collection = latest.Collection
	}

	// The conversation ID must be stable across replay.
	var conversationID string
	err := workflow.SideEffect(ctx, func(workflow.Context) any {
		return "conversation-" + uuid.NewString()
	}).Get(&conversationID)
	if err != nil {
		return QueryOutput{}, fmt.Errorf("generate conversation id: %w", err)
	}

	logger.Info("query started", "conversation_id", conversationID, "collection", collection)

	lifecycleCtx := workflow.WithActivityOptions(ctx, lifecycleOptions(rc))
	err = workflow.ExecuteActivity(lifecycleCtx, acts.CreateBucket,
		activity.BucketInput{Bucket: conversationID, FailRate: in.FailRate}).Get(lifecycleCtx, nil)
	if err != nil {
		return QueryOutput{}, fmt.Errorf("create conversation bucket: %w", err)
	}

	defer func() {
		// The context artifact has a fixed name and a lost activity result
		// may have stored it anyway, so delete it unconditionally: deletion
		// of a missing object is a no-op, and a non-empty bucket cannot be
		// removed.
		dctx, _ := workflow.NewDisconnectedContext(ctx)
		cleanupCtx := workflow.WithActivityOptions(dctx, lifecycleOptions(rc))
		err := workflow.ExecuteActivity(cleanupCtx, acts.DeleteObject,
			activity.ObjectInput{Bucket: conversationID, Key: activity.ContextObjectName, FailRate: in.FailRate}).Get(cleanupCtx, nil)
		if err != nil {
			logger.Error("cleanup: delete context artifact failed", "bucket", conversationID, "error", err)
		}
		err = workflow.ExecuteActivity(cleanupCtx, acts.DeleteBucket,
			activity.BucketInput{Bucket: conversationID, FailRate: in.FailRate}).Get(cleanupCtx, nil)
		if err != nil {
			logger.Error("cleanup: delete conversation bucket failed", "bucket", conversationID, "error", err)
		}
	}()

	retrieveCtx := workflow.WithActivityOptions(ctx, opts)
	var retrieved activity.RetrieveContextOutput
	err = workflow.ExecuteActivity(retrieveCtx, acts.RetrieveContext, activity.RetrieveContextInput{
		Query:      in.Query,
		Collection: collection,
		Bucket:     conversationID,
		FailRate:   in.FailRate,
	}).Get(retrieveCtx, &retrieved)
	if err != nil {
		return QueryOutput{}, fmt.Errorf("retrieve context: %w", err)
	}

	invokeCtx := workflow.WithActivityOptions(ctx, opts)
	var invoked activity.InvokeModelOutput
	err = workflow.ExecuteActivity(invokeCtx, acts.InvokeModel, activity.InvokeModelInput{
		Query:             in.Query,
		Bucket:            conversationID,
		ContextObjectName: retrieved.ContextObjectName,
		FailRate:          in.FailRate,
	}).Get(invokeCtx, &invoked)
	if err != nil {
		return QueryOutput{}, fmt.Errorf("invoke model: %w", err)
	}

	return QueryOutput{ConversationID: conversationID, Answer: invoked.Answer}, nil
}
