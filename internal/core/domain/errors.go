package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates authentication failed or missing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the caller lacks permission for this action
	ErrForbidden = errors.New("forbidden")

	// ErrNormalization indicates a raw record is missing required fields.
	// Surfaced to the connector; the record is dropped from this attempt.
	ErrNormalization = errors.New("normalization failed")

	// ErrChunking indicates chunking could not produce passages.
	// The document is still ingested, with zero passages.
	ErrChunking = errors.New("chunking failed")

	// ErrEmbedding indicates embedding computation failed after retries.
	// Affected passages stay unindexed until a later retry succeeds.
	ErrEmbedding = errors.New("embedding failed")

	// ErrVersionMismatch indicates an embedding version other than the
	// active one was offered for comparison
	ErrVersionMismatch = errors.New("embedding version mismatch")

	// ErrReindexInProgress indicates a bulk reindex is already running
	ErrReindexInProgress = errors.New("reindex already in progress")

	// ErrNoEmbeddingService indicates no embedding provider is configured
	ErrNoEmbeddingService = errors.New("embedding service not configured")

	// ErrNormaliserNotFound indicates the source kind has no registered normaliser
	ErrNormaliserNotFound = errors.New("normaliser not found")

	// ErrTokenExpired indicates the auth token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid indicates the auth token is malformed or invalid
	ErrTokenInvalid = errors.New("token invalid")

	// ErrInvalidCredentials indicates a wrong API key
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidProvider indicates an unknown AI provider was specified
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrServiceUnavailable indicates the AI service could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")
)
