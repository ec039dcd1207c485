// Package activity implements the side-effecting steps the pipelines
// sequence: repository collection, document processing, bucket lifecycle,
// context retrieval, model invocation, and evaluation scoring.
//
// Every activity is a pure request→response boundary call on the Activities
// struct. Collaborators are injected through narrow consumer-side interfaces
// at construction time; there is no ambient shared state and no lazily
// constructed global client.
//
// Fault injection: every input carries an optional FailRate in [0,1]. Before
// doing any real work an activity draws from the injected random source and
// raises a retryable SimulatedFailure when the draw lands below the rate.
// Fixing the source in tests makes retry and compensation behavior
// deterministic.
package activity

import (
	"context"
	"math/rand/v2"

	"github.com/koopa0/docpipe/internal/collect"
	"github.com/koopa0/docpipe/internal/corpus"
	"github.com/koopa0/docpipe/internal/llm"
)

// BlobStore is the scoped-resource-container surface the activities use.
// Implemented by blob.Client.
type BlobStore interface {
	CreateBucket(ctx context.Context, bucket string) error
	DeleteBucket(ctx context.Context, bucket string) error
	Put(ctx context.Context, bucket, key string, body []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	DeleteObject(ctx context.Context, bucket, key string) error
}

// CorpusStore is the vector index and processing-record surface.
// Implemented by corpus.Store.
type CorpusStore interface {
	UpsertDocument(ctx context.Context, doc corpus.Document) error
	Search(ctx context.Context, queryEmbedding []float32, collection string, k int) ([]corpus.Match, error)
	RecordIngestion(ctx context.Context, workflowID, collection string) error
	LatestIngestion(ctx context.Context) (corpus.Ingestion, error)
}

// Model is the embedding and completion surface. Implemented by llm.Client.
type Model interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Generate(ctx context.Context, messages []llm.Message) (string, error)
}

// Collector packages a filtered repository snapshot into zip bytes.
// Implemented by collect.Collector.
type Collector interface {
	Collect(ctx context.Context, req collect.Request) ([]byte, error)
}

// TestCaseLoader resolves named evaluation sets.
// Implemented by testcases.Loader.
type TestCaseLoader interface {
	Load(name string) (map[string]string, error)
}

// Params collects the collaborators for New.
type Params struct {
	Blob      BlobStore
	Corpus    CorpusStore
	Model     Model
	Collector Collector
	TestCases TestCaseLoader

	// Collection is the logical corpus name processing appends into. It is
	// configuration, deliberately not derived from workflow identifiers, so
	// repeated ingestion runs extend one corpus.
	Collection string

	// Rand supplies the fault-injection draws. Defaults to math/rand/v2.
	// Tests substitute a deterministic sequence.
	Rand func() float64
}

// Activities hosts every activity implementation. Registered once on the
// worker; safe for concurrent use.
type Activities struct {
	blob      BlobStore
	corpus    CorpusStore
	model     Model
	collector Collector
	testCases TestCaseLoader

	collection string
	rand       func() float64
}

// New creates the activity set from explicit collaborators.
func New(p Params) *Activities {
	if p.Rand == nil {
		p.Rand = rand.Float64
	}
	return &Activities{
		blob:       p.Blob,
		corpus:     p.Corpus,
		model:      p.Model,
		collector:  p.Collector,
		testCases:  p.TestCases,
		collection: p.Collection,
		rand:       p.Rand,
	}
}

// maybeFail implements fault injection: one uniform draw per invocation,
// failing with a retryable SimulatedFailure when it lands below rate.
func (a *Activities) maybeFail(rate float64) error {
	if rate <= 0 {
		return nil
	}
	if a.rand() < rate {
		return transientErr(TypeSimulatedFailure, "fault injection triggered", nil)
	}
	return nil
}
