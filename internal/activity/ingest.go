package activity

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"

	tactivity "go.temporal.io/sdk/activity"

	"github.com/koopa0/docpipe/internal/collect"
	"github.com/koopa0/docpipe/internal/corpus"
)

// ArchiveName is the single staged archive each ingestion run produces.
// Exactly one producer (CollectDocuments) and one consumer (ProcessDocuments);
// its lifetime is bounded by the run's bucket.
const ArchiveName = "files.zip"

// BucketInput addresses one scoped resource container.
type BucketInput struct {
	Bucket   string
	FailRate float64
}

// ObjectInput addresses one artifact inside a scoped resource container.
type ObjectInput struct {
	Bucket   string
	Key      string
	FailRate float64
}

// CreateBucket creates the scoped resource container for a run. Idempotent:
// re-creating an owned bucket succeeds, so replays are safe.
func (a *Activities) CreateBucket(ctx context.Context, in BucketInput) error {
	if err := a.maybeFail(in.FailRate); err != nil {
		return err
	}
	if err := a.blob.CreateBucket(ctx, in.Bucket); err != nil {
		return transientErr(TypeStorageWriteFailed, "create bucket", err)
	}
	return nil
}

// DeleteBucket removes a run's scoped resource container. Deleting a missing
// bucket is a no-op.
func (a *Activities) DeleteBucket(ctx context.Context, in BucketInput) error {
	if err := a.maybeFail(in.FailRate); err != nil {
		return err
	}
	if err := a.blob.DeleteBucket(ctx, in.Bucket); err != nil {
		return transientErr(TypeStorageWriteFailed, "delete bucket", err)
	}
	return nil
}

// DeleteObject removes one artifact. Deleting a missing artifact is a no-op.
func (a *Activities) DeleteObject(ctx context.Context, in ObjectInput) error {
	if err := a.maybeFail(in.FailRate); err != nil {
		return err
	}
	if err := a.blob.DeleteObject(ctx, in.Bucket, in.Key); err != nil {
		return transientErr(TypeStorageWriteFailed, "delete object", err)
	}
	return nil
}

// CollectDocumentsInput describes the repository snapshot to collect and the
// bucket to stage the archive in.
type CollectDocumentsInput struct {
	WorkflowID     string
	Bucket         string
	RepoURL        string
	Branch         string
	Directory      string
	FileExtensions []string
	FailRate       float64
}

// CollectDocumentsOutput names the staged archive.
type CollectDocumentsOutput struct {
	ArchiveName string
}

// CollectDocuments checks out the repository, filters files by subdirectory
// and extension allowlist, zips them, and uploads the archive to the run's
// bucket. The archive is uploaded before any local state is discarded.
func (a *Activities) CollectDocuments(ctx context.Context, in CollectDocumentsInput) (CollectDocumentsOutput, error) {
	if err := a.maybeFail(in.FailRate); err != nil {
		return CollectDocumentsOutput{}, err
	}

	archive, err := a.collector.Collect(ctx, collect.Request{
		URL:            in.RepoURL,
		Branch:         in.Branch,
		Directory:      in.Directory,
		FileExtensions: in.FileExtensions,
	})
	if err != nil {
		if errors.Is(err, collect.ErrInvalidRepoURL) {
			return CollectDocumentsOutput{}, permanentErr(TypeInvalidRepository, "parse repository URL", err)
		}
		return CollectDocumentsOutput{}, transientErr(TypeSourceUnavailable, "collect repository snapshot", err)
	}

	if err := a.blob.Put(ctx, in.Bucket, ArchiveName, archive); err != nil {
		return CollectDocumentsOutput{}, transientErr(TypeStorageWriteFailed, "upload archive", err)
	}

	return CollectDocumentsOutput{ArchiveName: ArchiveName}, nil
}

// ProcessDocumentsInput names the staged archive to embed and store.
type ProcessDocumentsInput struct {
	WorkflowID  string
	Bucket      string
	ArchiveName string
	FailRate    float64
}

// ProcessDocumentsOutput names the collection the documents landed in.
type ProcessDocumentsOutput struct {
	Collection string
}

// ProcessDocuments downloads the staged archive, embeds every file, and
// upserts each into the configured collection. The processing record is
// appended only after every file is stored, so a record's existence implies a
// fully processed corpus. Upserts are keyed by content hash, making re-runs
// after a mid-flight retry safe.
func (a *Activities) ProcessDocuments(ctx context.Context, in ProcessDocumentsInput) (ProcessDocumentsOutput, error) {
	if err := a.maybeFail(in.FailRate); err != nil {
		return ProcessDocumentsOutput{}, err
	}

	data, err := a.blob.Get(ctx, in.Bucket, in.ArchiveName)
	if err != nil {
		return ProcessDocumentsOutput{}, transientErr(TypeStorageReadFailed, "download archive", err)
	}

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ProcessDocumentsOutput{}, permanentErr(TypeMalformedArchive, "open archive", err)
	}

	for i, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}

		content, err := readZipFile(f)
		if err != nil {
			return ProcessDocumentsOutput{}, permanentErr(TypeMalformedArchive, "read archive entry "+f.Name, err)
		}
		if len(content) == 0 {
			continue
		}

		vectors, err := a.model.Embed(ctx, []string{string(content)})
		if err != nil {
			return ProcessDocumentsOutput{}, transientErr(TypeEmbeddingServiceUnavailable, "embed "+f.Name, err)
		}

		err = a.corpus.UpsertDocument(ctx, corpus.Document{
			Collection: a.collection,
			Content:    string(content),
			Embedding:  vectors[0],
		})
		if err != nil {
			return ProcessDocumentsOutput{}, transientErr(TypeIndexWriteFailed, "store "+f.Name, err)
		}

		// Long archives run under a 50 minute timeout; heartbeat progress so
		// a stuck worker is detected before that.
		if tactivity.IsActivity(ctx) {
			tactivity.RecordHeartbeat(ctx, i+1)
		}
	}

	if err := a.corpus.RecordIngestion(ctx, in.WorkflowID, a.collection); err != nil {
		return ProcessDocumentsOutput{}, transientErr(TypeIndexWriteFailed, "record ingestion", err)
	}

	return ProcessDocumentsOutput{Collection: a.collection}, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
