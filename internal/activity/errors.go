package activity

import "go.temporal.io/sdk/temporal"

// Error type tags carried by activity failures. The retry policy only retries
// the transient class; the permanent class fails the calling pipeline
// immediately via non-retryable application errors.
//
// Transient-external failures (retried):
const (
	// TypeSourceUnavailable tags repository checkout failures.
	TypeSourceUnavailable = "SourceUnavailable"

	// TypeStorageWriteFailed tags blob store upload failures.
	TypeStorageWriteFailed = "StorageWriteFailed"

	// TypeStorageReadFailed tags blob store download failures.
	TypeStorageReadFailed = "StorageReadFailed"

	// TypeEmbeddingServiceUnavailable tags embedding computation failures.
	TypeEmbeddingServiceUnavailable = "EmbeddingServiceUnavailable"

	// TypeIndexWriteFailed tags vector index upsert failures.
	TypeIndexWriteFailed = "IndexWriteFailed"

	// TypeIndexUnavailable tags vector index search failures.
	TypeIndexUnavailable = "IndexUnavailable"

	// TypeModelRateLimited tags language model rate limiting.
	TypeModelRateLimited = "ModelRateLimited"

	// TypeModelUnavailable tags other transient language model failures.
	TypeModelUnavailable = "ModelUnavailable"

	// TypeSimulatedFailure tags faults injected via the failRate knob.
	TypeSimulatedFailure = "SimulatedFailure"
)

// Resource-missing and permanent failures (never retried):
const (
	// TypeContextMissing tags a model invocation whose retrieved-context
	// artifact is absent or unreadable.
	TypeContextMissing = "ContextMissing"

	// TypeNoProcessedCorpusFound tags latest-corpus resolution against an
	// empty processing record table.
	TypeNoProcessedCorpusFound = "NoProcessedCorpusFound"

	// TypeInvalidRepository tags a malformed repository URL.
	TypeInvalidRepository = "InvalidRepository"

	// TypeMalformedArchive tags a staged archive that cannot be unpacked.
	TypeMalformedArchive = "MalformedArchive"

	// TypeEmptyTestSet tags an evaluation test set with zero cases.
	TypeEmptyTestSet = "EmptyTestSet"

	// TypeTestSetNotFound tags a test set name that resolves to nothing.
	TypeTestSetNotFound = "TestSetNotFound"
)

// transientErr builds a retryable application error carrying an error type
// tag and the underlying cause.
func transientErr(errType, msg string, cause error) error {
	return temporal.NewApplicationErrorWithCause(msg, errType, cause)
}

// permanentErr builds a non-retryable application error. The execution
// substrate surfaces it to the owning pipeline without further attempts.
func permanentErr(errType, msg string, cause error) error {
	return temporal.NewNonRetryableApplicationError(msg, errType, cause)
}
