package corpus

import (
	"errors"
	"time"
)

// ErrNoIngestions is returned by LatestIngestion when no ingestion run has
// ever completed.
var ErrNoIngestions = errors.New("no completed ingestions")

// Document is one embedded document belonging to a collection.
type Document struct {
	Collection string
	Content    string
	Embedding  []float32
}

// Match is a single similarity-search hit.
type Match struct {
	Content    string  `json:"content"`
	Similarity float32 `json:"similarity"`
}

// Ingestion is the processing record appended when an ingestion run finishes
// embedding and storing every collected file. It is the only state that
// outlives a pipeline run and is used to resolve the most recent corpus.
type Ingestion struct {
	WorkflowID string
	Collection string
	CreatedAt  time.Time
}
