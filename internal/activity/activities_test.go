package activity

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/goleak"

	"github.com/koopa0/docpipe/internal/blob"
	"github.com/koopa0/docpipe/internal/collect"
	"github.com/koopa0/docpipe/internal/corpus"
	"github.com/koopa0/docpipe/internal/llm"
	"github.com/koopa0/docpipe/internal/testcases"
)

// Every collaborator here is an in-memory fake, so no activity may leave a
// goroutine behind.
func TestMain(m *testing.M) {
	// go.opencensus.io (pulled in transitively) starts a background worker in
	// its package init; it is not a goroutine leaked by the activities.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

// ----------------------------------------------------------------------------
// Fakes
// ----------------------------------------------------------------------------

type fakeBlob struct {
	buckets map[string]map[string][]byte
	getErr  error
	putErr  error
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{buckets: map[string]map[string][]byte{}}
}

func (f *fakeBlob) CreateBucket(_ context.Context, bucket string) error {
	if _, ok := f.buckets[bucket]; !ok {
		f.buckets[bucket] = map[string][]byte{}
	}
	return nil
}

func (f *fakeBlob) DeleteBucket(_ context.Context, bucket string) error {
	delete(f.buckets, bucket)
	return nil
}

func (f *fakeBlob) Put(_ context.Context, bucket, key string, body []byte) error {
	if f.putErr != nil {
		return f.putErr
	}
	if _, ok := f.buckets[bucket]; !ok {
		f.buckets[bucket] = map[string][]byte{}
	}
	f.buckets[bucket][key] = body
	return nil
}

func (f *fakeBlob) Get(_ context.Context, bucket, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	body, ok := f.buckets[bucket][key]
	if !ok {
		return nil, fmt.Errorf("object %q in bucket %q: %w", key, bucket, blob.ErrNotFound)
	}
	return body, nil
}

func (f *fakeBlob) DeleteObject(_ context.Context, bucket, key string) error {
	delete(f.buckets[bucket], key)
	return nil
}

type fakeCorpus struct {
	docs       []corpus.Document
	matches    []corpus.Match
	ingestions []corpus.Ingestion
	searchErr  error
	upsertErr  error

	// recordedAfterDocs captures how many documents were stored when the
	// ingestion record was appended.
	recordedAfterDocs int
}

func (f *fakeCorpus) UpsertDocument(_ context.Context, doc corpus.Document) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.docs = append(f.docs, doc)
	return nil
}

func (f *fakeCorpus) Search(_ context.Context, _ []float32, _ string, _ int) ([]corpus.Match, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.matches, nil
}

func (f *fakeCorpus) RecordIngestion(_ context.Context, workflowID, collection string) error {
	f.recordedAfterDocs = len(f.docs)
	f.ingestions = append(f.ingestions, corpus.Ingestion{WorkflowID: workflowID, Collection: collection})
	return nil
}

func (f *fakeCorpus) LatestIngestion(_ context.Context) (corpus.Ingestion, error) {
	if len(f.ingestions) == 0 {
		return corpus.Ingestion{}, corpus.ErrNoIngestions
	}
	return f.ingestions[len(f.ingestions)-1], nil
}

type fakeModel struct {
	embedErr    error
	generateErr error
	completion  string
	prompts     [][]llm.Message
}

func (f *fakeModel) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(len(texts[i])), 1}
	}
	return vectors, nil
}

func (f *fakeModel) Generate(_ context.Context, messages []llm.Message) (string, error) {
	f.prompts = append(f.prompts, messages)
	if f.generateErr != nil {
		return "", f.generateErr
	}
	return f.completion, nil
}

type fakeCollector struct {
	archive []byte
	err     error
}

func (f *fakeCollector) Collect(_ context.Context, _ collect.Request) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.archive, nil
}

type fakeLoader struct {
	cases map[string]string
	err   error
}

func (f *fakeLoader) Load(string) (map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cases, nil
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func appErrType(t *testing.T, err error) (string, bool) {
	t.Helper()
	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	return appErr.Type(), appErr.NonRetryable()
}

func newTestActivities(deps Params) *Activities {
	if deps.Collection == "" {
		deps.Collection = "docs"
	}
	if deps.Rand == nil {
		deps.Rand = func() float64 { return 1 } // never trip fault injection
	}
	return New(deps)
}

// ----------------------------------------------------------------------------
// Fault injection
// ----------------------------------------------------------------------------

func TestMaybeFailTriggers(t *testing.T) {
	a := newTestActivities(Params{Blob: newFakeBlob(), Rand: func() float64 { return 0.1 }})

	err := a.CreateBucket(context.Background(), BucketInput{Bucket: "b", FailRate: 0.5})
	require.Error(t, err)

	typ, nonRetryable := appErrType(t, err)
	assert.Equal(t, TypeSimulatedFailure, typ)
	assert.False(t, nonRetryable, "injected faults model the transient class")
}

func TestMaybeFailZeroRateNeverDraws(t *testing.T) {
	draws := 0
	a := newTestActivities(Params{Blob: newFakeBlob(), Rand: func() float64 { draws++; return 0 }})

	require.NoError(t, a.CreateBucket(context.Background(), BucketInput{Bucket: "b"}))
	assert.Zero(t, draws)
}

// ----------------------------------------------------------------------------
// Collection and processing
// ----------------------------------------------------------------------------

func TestCollectDocuments(t *testing.T) {
	blobStore := newFakeBlob()
	archive := zipBytes(t, map[string]string{"intro.md": "# Intro"})
	a := newTestActivities(Params{Blob: blobStore, Collector: &fakeCollector{archive: archive}})

	out, err := a.CollectDocuments(context.Background(), CollectDocumentsInput{
		WorkflowID: "ingest-1",
		Bucket:     "ingest-1",
		RepoURL:    "https://github.com/org/repo.git",
		Branch:     "main",
		Directory:  "docs",
	})
	require.NoError(t, err)
	assert.Equal(t, ArchiveName, out.ArchiveName)
	assert.Equal(t, archive, blobStore.buckets["ingest-1"][ArchiveName])
}

func TestCollectDocumentsInvalidRepo(t *testing.T) {
	a := newTestActivities(Params{
		Blob:      newFakeBlob(),
		Collector: &fakeCollector{err: fmt.Errorf("%w: no owner", collect.ErrInvalidRepoURL)},
	})

	_, err := a.CollectDocuments(context.Background(), CollectDocumentsInput{RepoURL: "ftp://x"})
	typ, nonRetryable := appErrType(t, err)
	assert.Equal(t, TypeInvalidRepository, typ)
	assert.True(t, nonRetryable)
}

func TestCollectDocumentsCloneFailure(t *testing.T) {
	a := newTestActivities(Params{
		Blob:      newFakeBlob(),
		Collector: &fakeCollector{err: fmt.Errorf("%w: connection refused", collect.ErrCloneFailed)},
	})

	_, err := a.CollectDocuments(context.Background(), CollectDocumentsInput{})
	typ, nonRetryable := appErrType(t, err)
	assert.Equal(t, TypeSourceUnavailable, typ)
	assert.False(t, nonRetryable)
}

func TestProcessDocuments(t *testing.T) {
	blobStore := newFakeBlob()
	require.NoError(t, blobStore.Put(context.Background(), "ingest-1", ArchiveName, zipBytes(t, map[string]string{
		"intro.md":       "# Intro",
		"guide/setup.md": "# Setup",
		"empty.md":       "",
	})))
	store := &fakeCorpus{}
	a := newTestActivities(Params{Blob: blobStore, Corpus: store, Model: &fakeModel{}})

	out, err := a.ProcessDocuments(context.Background(), ProcessDocumentsInput{
		WorkflowID:  "ingest-1",
		Bucket:      "ingest-1",
		ArchiveName: ArchiveName,
	})
	require.NoError(t, err)
	assert.Equal(t, "docs", out.Collection)

	// Empty files are skipped; non-empty ones land in the configured
	// collection.
	require.Len(t, store.docs, 2)
	for _, d := range store.docs {
		assert.Equal(t, "docs", d.Collection)
		assert.NotEmpty(t, d.Embedding)
	}

	// The processing record is appended only after every document is stored.
	require.Len(t, store.ingestions, 1)
	assert.Equal(t, "ingest-1", store.ingestions[0].WorkflowID)
	assert.Equal(t, 2, store.recordedAfterDocs)
}

func TestProcessDocumentsMalformedArchive(t *testing.T) {
	blobStore := newFakeBlob()
	require.NoError(t, blobStore.Put(context.Background(), "b", ArchiveName, []byte("not a zip")))
	a := newTestActivities(Params{Blob: blobStore, Corpus: &fakeCorpus{}, Model: &fakeModel{}})

	_, err := a.ProcessDocuments(context.Background(), ProcessDocumentsInput{Bucket: "b", ArchiveName: ArchiveName})
	typ, nonRetryable := appErrType(t, err)
	assert.Equal(t, TypeMalformedArchive, typ)
	assert.True(t, nonRetryable)
}

func TestProcessDocumentsNoRecordOnStoreFailure(t *testing.T) {
	blobStore := newFakeBlob()
	require.NoError(t, blobStore.Put(context.Background(), "b", ArchiveName,
		zipBytes(t, map[string]string{"intro.md": "# Intro"})))
	store := &fakeCorpus{upsertErr: errors.New("index down")}
	a := newTestActivities(Params{Blob: blobStore, Corpus: store, Model: &fakeModel{}})

	_, err := a.ProcessDocuments(context.Background(), ProcessDocumentsInput{Bucket: "b", ArchiveName: ArchiveName})
	typ, _ := appErrType(t, err)
	assert.Equal(t, TypeIndexWriteFailed, typ)
	assert.Empty(t, store.ingestions, "no processing record without full processing")
}

// ----------------------------------------------------------------------------
// Retrieval and model invocation
// ----------------------------------------------------------------------------

func TestRetrieveContext(t *testing.T) {
	blobStore := newFakeBlob()
	store := &fakeCorpus{matches: []corpus.Match{
		{Content: "install with go install", Similarity: 0.9},
	}}
	a := newTestActivities(Params{Blob: blobStore, Corpus: store, Model: &fakeModel{}})

	out, err := a.RetrieveContext(context.Background(), RetrieveContextInput{
		Query:      "how to install",
		Collection: "docs",
		Bucket:     "conversation-1",
	})
	require.NoError(t, err)
	assert.Equal(t, ContextObjectName, out.ContextObjectName)

	stored := blobStore.buckets["conversation-1"][ContextObjectName]
	assert.Contains(t, string(stored), "install with go install")
}

func TestRetrieveContextIndexDown(t *testing.T) {
	a := newTestActivities(Params{
		Blob:   newFakeBlob(),
		Corpus: &fakeCorpus{searchErr: errors.New("connection refused")},
		Model:  &fakeModel{},
	})

	_, err := a.RetrieveContext(context.Background(), RetrieveContextInput{Query: "q"})
	typ, nonRetryable := appErrType(t, err)
	assert.Equal(t, TypeIndexUnavailable, typ)
	assert.False(t, nonRetryable)
}

func TestInvokeModel(t *testing.T) {
	blobStore := newFakeBlob()
	payload := `{"context":[{"content":"docs are under docs/","similarity":0.8}]}`
	require.NoError(t, blobStore.Put(context.Background(), "conversation-1", ContextObjectName, []byte(payload)))
	model := &fakeModel{completion: "The docs live in the docs directory."}
	a := newTestActivities(Params{Blob: blobStore, Model: model})

	out, err := a.InvokeModel(context.Background(), InvokeModelInput{
		Query:             "where are the docs?",
		Bucket:            "conversation-1",
		ContextObjectName: ContextObjectName,
	})
	require.NoError(t, err)
	assert.Equal(t, "The docs live in the docs directory.", out.Answer)

	// Prompt composition: preamble, retrieved context, then the user query.
	require.Len(t, model.prompts, 1)
	msgs := model.prompts[0]
	require.GreaterOrEqual(t, len(msgs), 4)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[len(msgs)-2].Text, "docs are under docs/")
	last := msgs[len(msgs)-1]
	assert.Equal(t, llm.RoleUser, last.Role)
	assert.Equal(t, "where are the docs?", last.Text)
}

func TestInvokeModelContextMissing(t *testing.T) {
	a := newTestActivities(Params{Blob: newFakeBlob(), Model: &fakeModel{}})

	_, err := a.InvokeModel(context.Background(), InvokeModelInput{
		Bucket:            "conversation-1",
		ContextObjectName: ContextObjectName,
	})
	typ, nonRetryable := appErrType(t, err)
	assert.Equal(t, TypeContextMissing, typ)
	assert.True(t, nonRetryable)
}

func TestInvokeModelRateLimited(t *testing.T) {
	blobStore := newFakeBlob()
	require.NoError(t, blobStore.Put(context.Background(), "c", ContextObjectName, []byte(`{"context":[]}`)))
	a := newTestActivities(Params{
		Blob:  blobStore,
		Model: &fakeModel{generateErr: errors.New("googleapi: Error 429: quota exceeded")},
	})

	_, err := a.InvokeModel(context.Background(), InvokeModelInput{Bucket: "c", ContextObjectName: ContextObjectName})
	typ, nonRetryable := appErrType(t, err)
	assert.Equal(t, TypeModelRateLimited, typ)
	assert.False(t, nonRetryable)
}

func TestLatestCollection(t *testing.T) {
	store := &fakeCorpus{ingestions: []corpus.Ingestion{
		{WorkflowID: "ingest-old", Collection: "docs"},
		{WorkflowID: "ingest-new", Collection: "docs-v2"},
	}}
	a := newTestActivities(Params{Corpus: store})

	out, err := a.LatestCollection(context.Background(), LatestCollectionInput{})
	require.NoError(t, err)
	assert.Equal(t, "docs-v2", out.Collection)
}

func TestLatestCollectionEmpty(t *testing.T) {
	a := newTestActivities(Params{Corpus: &fakeCorpus{}})

	_, err := a.LatestCollection(context.Background(), LatestCollectionInput{})
	typ, nonRetryable := appErrType(t, err)
	assert.Equal(t, TypeNoProcessedCorpusFound, typ)
	assert.True(t, nonRetryable)
}

// ----------------------------------------------------------------------------
// Evaluation
// ----------------------------------------------------------------------------

func TestLoadTestCases(t *testing.T) {
	a := newTestActivities(Params{TestCases: &fakeLoader{cases: map[string]string{"q": "a"}}})

	out, err := a.LoadTestCases(context.Background(), LoadTestCasesInput{TestName: "assistant"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"q": "a"}, out.Cases)
}

func TestLoadTestCasesEmpty(t *testing.T) {
	a := newTestActivities(Params{TestCases: &fakeLoader{err: testcases.ErrEmptyTestSet}})

	_, err := a.LoadTestCases(context.Background(), LoadTestCasesInput{TestName: "empty"})
	typ, nonRetryable := appErrType(t, err)
	assert.Equal(t, TypeEmptyTestSet, typ)
	assert.True(t, nonRetryable)
}

func TestValidateResult(t *testing.T) {
	tests := []struct {
		name       string
		completion string
		wantScore  float64
		wantReason string
	}{
		{"pass", "1 - matches the expected installation steps", 1, "matches the expected installation steps"},
		{"fail", "0 - answer names the wrong directory", 0, "answer names the wrong directory"},
		{"garbled", "maybe?", 0, "maybe?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestActivities(Params{Model: &fakeModel{completion: tt.completion}})

			out, err := a.ValidateResult(context.Background(), ValidateResultInput{
				Query:          "q",
				ExpectedAnswer: "expected",
				ActualAnswer:   "actual",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, out.Score)
			assert.Equal(t, tt.wantReason, out.Reason)
		})
	}
}

func TestSummarizeResultsAverage(t *testing.T) {
	a := newTestActivities(Params{Model: &fakeModel{completion: "Mostly correct."}})

	out, err := a.SummarizeResults(context.Background(), SummarizeResultsInput{
		Results: []ValidationResult{
			{Query: "a", Score: 1},
			{Query: "b", Score: 0},
			{Query: "c", Score: 1},
			{Query: "d", Score: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.75, out.AverageScore)
	assert.Equal(t, "Mostly correct.", out.Summary)
}

func TestSummarizeResultsModelDown(t *testing.T) {
	a := newTestActivities(Params{Model: &fakeModel{generateErr: errors.New("unavailable")}})

	out, err := a.SummarizeResults(context.Background(), SummarizeResultsInput{
		Results: []ValidationResult{{Query: "a", Score: 1}, {Query: "b", Score: 0}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.5, out.AverageScore)
	assert.True(t, strings.Contains(out.Summary, "1 of 2"), "deterministic fallback summary: %q", out.Summary)
}

func TestSummarizeResultsEmpty(t *testing.T) {
	a := newTestActivities(Params{Model: &fakeModel{}})

	_, err := a.SummarizeResults(context.Background(), SummarizeResultsInput{})
	_, nonRetryable := appErrType(t, err)
	assert.True(t, nonRetryable)
}
