package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/custodia-labs/persona-core/internal/core/domain"
	"github.com/custodia-labs/persona-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore implements driven.DocumentStore using PostgreSQL
type DocumentStore struct {
	db *DB
}

// NewDocumentStore creates a new DocumentStore
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

const documentColumns = `id, source_kind, external_id, author, raw_text, content_hash, metadata, created_at, updated_at, ingested_at`

// Save creates or updates a document
func (s *DocumentStore) Save(ctx context.Context, doc *domain.Document) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO documents (id, source_kind, external_id, author, raw_text, content_hash, metadata, created_at, updated_at, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			author = EXCLUDED.author,
			raw_text = EXCLUDED.raw_text,
			content_hash = EXCLUDED.content_hash,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at,
			ingested_at = EXCLUDED.ingested_at
	`

	_, err = s.db.ExecContext(ctx, query,
		doc.ID,
		doc.SourceKind,
		doc.ExternalID,
		doc.Author,
		doc.RawText,
		doc.ContentHash,
		metadataJSON,
		doc.CreatedAt,
		doc.UpdatedAt,
		doc.IngestedAt,
	)
	return err
}

// Get retrieves a document by ID
func (s *DocumentStore) Get(ctx context.Context, id string) (*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	return s.scanDocument(s.db.QueryRowContext(ctx, query, id))
}

// GetByExternalID retrieves a document by source kind and external ID
func (s *DocumentStore) GetByExternalID(ctx context.Context, kind domain.SourceKind, externalID string) (*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE source_kind = $1 AND external_id = $2`
	return s.scanDocument(s.db.QueryRowContext(ctx, query, kind, externalID))
}

// List retrieves documents with pagination, most recently updated first
func (s *DocumentStore) List(ctx context.Context, limit, offset int) ([]*domain.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		ORDER BY updated_at DESC, id ASC
		LIMIT $1 OFFSET $2
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		doc, err := s.scanDocumentRows(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ListIDs returns all document IDs in stable order
func (s *DocumentStore) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM documents ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete deletes a document; passages cascade via the FK
func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Count returns total document count
func (s *DocumentStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// CountByKind returns document count for a source kind
func (s *DocumentStore) CountByKind(ctx context.Context, kind domain.SourceKind) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE source_kind = $1`, kind).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *DocumentStore) scanDocument(row *sql.Row) (*domain.Document, error) {
	doc, err := scanDocumentFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return doc, err
}

func (s *DocumentStore) scanDocumentRows(rows *sql.Rows) (*domain.Document, error) {
	return scanDocumentFrom(rows)
}

func scanDocumentFrom(scanner rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var metadataJSON []byte

	err := scanner.Scan(
		&doc.ID,
		&doc.SourceKind,
		&doc.ExternalID,
		&doc.Author,
		&doc.RawText,
		&doc.ContentHash,
		&metadataJSON,
		&doc.CreatedAt,
		&doc.UpdatedAt,
		&doc.IngestedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
			return nil, err
		}
	}
	return &doc, nil
}
