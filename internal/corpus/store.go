// Package corpus persists embedded documents and ingestion records in
// PostgreSQL with pgvector.
//
// Two tables (see db/migrations):
//
//	documents  — embedded content, unique on (collection, content_hash) so
//	             re-processing the same archive upserts instead of duplicating
//	ingestions — append-only processing records, read latest by created_at
//
// There is no in-place mutation of shared rows: documents are upserted by
// content hash and ingestion records are append-only, so concurrent runs need
// no locking discipline.
package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// DB is the subset of pgxpool.Pool the store uses. Defined on the consumer
// side so tests can substitute a fake.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages the document corpus and ingestion records.
// Safe for concurrent use.
type Store struct {
	db     DB
	logger *slog.Logger
}

// New creates a Store over the given database handle.
func New(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// UpsertDocument inserts a document or, when the same content already exists
// in the collection, refreshes its embedding. The content hash keys the
// upsert, which makes re-running a processing step safe.
func (s *Store) UpsertDocument(ctx context.Context, doc Document) error {
	if doc.Collection == "" {
		return fmt.Errorf("document collection must not be empty")
	}
	if len(doc.Embedding) == 0 {
		return fmt.Errorf("document embedding must not be empty")
	}

	hash := contentHash(doc.Content)
	_, err := s.db.Exec(ctx,
		`INSERT INTO documents (collection, content, content_hash, embedding)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (collection, content_hash)
		 DO UPDATE SET embedding = EXCLUDED.embedding`,
		doc.Collection, doc.Content, hash, pgvector.NewVector(doc.Embedding))
	if err != nil {
		return fmt.Errorf("upsert document in collection %q: %w", doc.Collection, err)
	}

	s.logger.Debug("upserted document",
		"collection", doc.Collection,
		"content_hash", hash,
		"content_length", len(doc.Content))
	return nil
}

// Search returns the k most similar documents in a collection, ordered by
// cosine distance to the query embedding. Similarity is 1 - distance.
func (s *Store) Search(ctx context.Context, queryEmbedding []float32, collection string, k int) ([]Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("search limit must be positive, got %d", k)
	}

	rows, err := s.db.Query(ctx,
		`SELECT content, 1 - (embedding <=> $1) AS similarity
		 FROM documents
		 WHERE collection = $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		pgvector.NewVector(queryEmbedding), collection, k)
	if err != nil {
		return nil, fmt.Errorf("search collection %q: %w", collection, err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.Content, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search results: %w", err)
	}

	return matches, nil
}

// RecordIngestion appends a processing record. Called exactly once per
// ingestion run, only after every collected file has been embedded and
// stored.
func (s *Store) RecordIngestion(ctx context.Context, workflowID, collection string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO ingestions (workflow_id, collection) VALUES ($1, $2)`,
		workflowID, collection)
	if err != nil {
		return fmt.Errorf("record ingestion %q: %w", workflowID, err)
	}

	s.logger.Info("recorded ingestion", "workflow_id", workflowID, "collection", collection)
	return nil
}

// LatestIngestion returns the most recent processing record, or
// ErrNoIngestions when the table is empty.
func (s *Store) LatestIngestion(ctx context.Context) (Ingestion, error) {
	var ing Ingestion
	err := s.db.QueryRow(ctx,
		`SELECT workflow_id, collection, created_at
		 FROM ingestions
		 ORDER BY created_at DESC
		 LIMIT 1`).Scan(&ing.WorkflowID, &ing.Collection, &ing.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ingestion{}, ErrNoIngestions
		}
		return Ingestion{}, fmt.Errorf("query latest ingestion: %w", err)
	}
	return ing, nil
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
