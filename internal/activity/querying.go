package activity

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/koopa0/docpipe/internal/blob"
	"github.com/koopa0/docpipe/internal/corpus"
	"github.com/koopa0/docpipe/internal/llm"
)

// ContextObjectName is the retrieved-context artifact written into each
// conversation bucket, consumed immediately by InvokeModel.
const ContextObjectName = "related-documentation.json"

// retrievalTopK is the number of documents similarity search returns.
const retrievalTopK = 5

// systemPreamble is the fixed instruction prefix for every model invocation.
var systemPreamble = []string{
	"You are a friendly, helpful software assistant. Your goal is to help users work with the project whose documentation has been indexed for you.",
	"Respond in short paragraphs, using Markdown formatting, separated with two newlines to keep your responses easily readable.",
}

// contextDocument is the serialized form of the retrieved result set.
type contextDocument struct {
	Context []corpus.Match `json:"context"`
}

// RetrieveContextInput scopes one similarity search to a collection and a
// conversation bucket.
type RetrieveContextInput struct {
	Query      string
	Collection string
	Bucket     string
	FailRate   float64
}

// RetrieveContextOutput names the stored context artifact.
type RetrieveContextOutput struct {
	ContextObjectName string
}

// RetrieveContext embeds the query, runs a top-k similarity search against
// the collection, and stores the serialized result set in the conversation
// bucket.
func (a *Activities) RetrieveContext(ctx context.Context, in RetrieveContextInput) (RetrieveContextOutput, error) {
	if err := a.maybeFail(in.FailRate); err != nil {
		return RetrieveContextOutput{}, err
	}

	vectors, err := a.model.Embed(ctx, []string{in.Query})
	if err != nil {
		return RetrieveContextOutput{}, transientErr(TypeEmbeddingServiceUnavailable, "embed query", err)
	}

	matches, err := a.corpus.Search(ctx, vectors[0], in.Collection, retrievalTopK)
	if err != nil {
		return RetrieveContextOutput{}, transientErr(TypeIndexUnavailable, "similarity search", err)
	}

	payload, err := json.Marshal(contextDocument{Context: matches})
	if err != nil {
		return RetrieveContextOutput{}, transientErr(TypeStorageWriteFailed, "serialize context", err)
	}

	if err := a.blob.Put(ctx, in.Bucket, ContextObjectName, payload); err != nil {
		return RetrieveContextOutput{}, transientErr(TypeStorageWriteFailed, "store context artifact", err)
	}

	return RetrieveContextOutput{ContextObjectName: ContextObjectName}, nil
}

// InvokeModelInput names the context artifact to answer from.
type InvokeModelInput struct {
	Query             string
	Bucket            string
	ContextObjectName string
	FailRate          float64
}

// InvokeModelOutput carries the completion text.
type InvokeModelOutput struct {
	Answer string
}

// InvokeModel loads the retrieved-context artifact, composes the fixed
// instruction preamble plus the context plus the user query, and calls the
// language model. A missing artifact is a permanent failure; the pipeline
// sequence guarantees it was written first, so absence means the scope was
// torn down or never populated.
func (a *Activities) InvokeModel(ctx context.Context, in InvokeModelInput) (InvokeModelOutput, error) {
	if err := a.maybeFail(in.FailRate); err != nil {
		return InvokeModelOutput{}, err
	}

	payload, err := a.blob.Get(ctx, in.Bucket, in.ContextObjectName)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return InvokeModelOutput{}, permanentErr(TypeContextMissing, "context artifact absent", err)
		}
		return InvokeModelOutput{}, transientErr(TypeStorageReadFailed, "load context artifact", err)
	}

	var doc contextDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return InvokeModelOutput{}, permanentErr(TypeContextMissing, "context artifact unreadable", err)
	}

	contents := make([]string, 0, len(doc.Context))
	for _, m := range doc.Context {
		contents = append(contents, m.Content)
	}

	messages := make([]llm.Message, 0, len(systemPreamble)+2)
	for _, s := range systemPreamble {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Text: s})
	}
	messages = append(messages, llm.Message{
		Role: llm.RoleSystem,
		Text: "Here is the documentation that is relevant to the user's query:\n\n" + strings.Join(contents, "\n\n"),
	})
	messages = append(messages, llm.Message{Role: llm.RoleUser, Text: in.Query})

	answer, err := a.model.Generate(ctx, messages)
	if err != nil {
		return InvokeModelOutput{}, classifyModelErr(err)
	}

	return InvokeModelOutput{Answer: answer}, nil
}

// LatestCollectionInput carries only the fault-injection knob.
type LatestCollectionInput struct {
	FailRate float64
}

// LatestCollectionOutput names the most recently processed corpus.
type LatestCollectionOutput struct {
	Collection string
}

// LatestCollection resolves the collection of the most recent processing
// record. An empty record table is a permanent failure: retrying cannot
// conjure a corpus.
func (a *Activities) LatestCollection(ctx context.Context, in LatestCollectionInput) (LatestCollectionOutput, error) {
	if err := a.maybeFail(in.FailRate); err != nil {
		return LatestCollectionOutput{}, err
	}

	ing, err := a.corpus.LatestIngestion(ctx)
	if err != nil {
		if errors.Is(err, corpus.ErrNoIngestions) {
			return LatestCollectionOutput{}, permanentErr(TypeNoProcessedCorpusFound, "no processed corpus found", err)
		}
		return LatestCollectionOutput{}, transientErr(TypeIndexUnavailable, "read processing records", err)
	}

	return LatestCollectionOutput{Collection: ing.Collection}, nil
}

// classifyModelErr separates rate limiting from other transient model
// failures so operators can tell them apart; both are retried.
func classifyModelErr(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate") || strings.Contains(msg, "quota") {
		return transientErr(TypeModelRateLimited, "model rate limited", err)
	}
	return transientErr(TypeModelUnavailable, "model invocation failed", err)
}
