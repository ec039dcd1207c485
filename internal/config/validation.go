package config

import "fmt"

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
//
// The Gemini API key is deliberately not checked here: migration and worker
// shutdown paths must work without one. Callers that invoke the model check
// RequireAPIKey first.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}
	// pgvector supports up to 2000 dimensions for indexed columns.
	if c.EmbeddingDim < 1 || c.EmbeddingDim > 2000 {
		return fmt.Errorf("%w: must be between 1 and 2000, got %d", ErrInvalidEmbeddingDim, c.EmbeddingDim)
	}

	if c.Collection == "" {
		return fmt.Errorf("%w: collection cannot be empty", ErrInvalidCollection)
	}

	if c.TemporalAddress == "" {
		return fmt.Errorf("%w: temporal_address cannot be empty", ErrInvalidTemporalAddress)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.RetryMaxAttempts < 1 || c.RetryMaxAttempts > 100 {
		return fmt.Errorf("%w: must be between 1 and 100, got %d", ErrInvalidRetryAttempts, c.RetryMaxAttempts)
	}
	// Coefficient 1.0 yields constant delay between attempts.
	if c.RetryBackoffCoefficient < 1.0 || c.RetryBackoffCoefficient > 10.0 {
		return fmt.Errorf("%w: must be between 1.0 and 10.0, got %.2f", ErrInvalidBackoff, c.RetryBackoffCoefficient)
	}

	return nil
}

// RequireAPIKey returns an error when no Gemini API key is configured.
// Called by paths that will invoke the embedder or the model.
func (c *Config) RequireAPIKey() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("%w: set the GEMINI_API_KEY environment variable", ErrMissingAPIKey)
	}
	return nil
}
