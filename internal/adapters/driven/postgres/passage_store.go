package postgres

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"math"

	"github.com/custodia-labs/persona-core/internal/core/domain"
	"github.com/custodia-labs/persona-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.PassageStore = (*PassageStore)(nil)

// PassageStore implements driven.PassageStore using PostgreSQL.
// Embeddings are stored inline as little-endian float32 bytes; the in-memory
// vector index is rebuilt from these rows on startup.
type PassageStore struct {
	db *DB
}

// NewPassageStore creates a new PassageStore
func NewPassageStore(db *DB) *PassageStore {
	return &PassageStore{db: db}
}

const passageColumns = `id, document_id, content, position, start_char, end_char, embedding_version, embedding, indexed, created_at`

// ReplaceForDocument atomically swaps a document's passage set.
// Delete plus insert in one transaction: readers see either the fully-old
// or fully-new set.
func (s *PassageStore) ReplaceForDocument(ctx context.Context, documentID string, passages []*domain.Passage) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM passages WHERE document_id = $1`, documentID); err != nil {
			return err
		}
		if len(passages) == 0 {
			return nil
		}

		query := `
			INSERT INTO passages (id, document_id, content, position, start_char, end_char, embedding_version, embedding, indexed, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range passages {
			_, err = stmt.ExecContext(ctx,
				p.ID,
				p.DocumentID,
				p.Text,
				p.Position,
				p.StartChar,
				p.EndChar,
				p.EmbeddingVersion,
				encodeEmbedding(p.Embedding),
				p.Indexed,
				p.CreatedAt,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Get retrieves a passage by ID
func (s *PassageStore) Get(ctx context.Context, id string) (*domain.Passage, error) {
	query := `SELECT ` + passageColumns + ` FROM passages WHERE id = $1`

	p, err := scanPassageFrom(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return p, err
}

// GetByDocument retrieves all passages for a document, in position order
func (s *PassageStore) GetByDocument(ctx context.Context, documentID string) ([]*domain.Passage, error) {
	query := `SELECT ` + passageColumns + ` FROM passages WHERE document_id = $1 ORDER BY position ASC`
	return s.queryPassages(ctx, query, documentID)
}

// ListIndexed streams indexed passages of one version in stable ID order
func (s *PassageStore) ListIndexed(ctx context.Context, embeddingVersion string, limit, offset int) ([]*domain.Passage, error) {
	query := `
		SELECT ` + passageColumns + `
		FROM passages
		WHERE indexed AND embedding_version = $1
		ORDER BY id ASC
		LIMIT $2 OFFSET $3
	`
	return s.queryPassages(ctx, query, embeddingVersion, limit, offset)
}

// ListUnindexed returns passages whose embedding is pending retry
func (s *PassageStore) ListUnindexed(ctx context.Context, limit int) ([]*domain.Passage, error) {
	query := `SELECT ` + passageColumns + ` FROM passages WHERE NOT indexed ORDER BY id ASC LIMIT $1`
	return s.queryPassages(ctx, query, limit)
}

// UpdateEmbedding stores a freshly computed embedding for a passage
func (s *PassageStore) UpdateEmbedding(ctx context.Context, id string, embeddingVersion string, embedding []float32) error {
	query := `
		UPDATE passages
		SET embedding_version = $2, embedding = $3, indexed = TRUE
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, id, embeddingVersion, encodeEmbedding(embedding))
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

// DeleteByDocument deletes all passages for a document
func (s *PassageStore) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM passages WHERE document_id = $1`, documentID)
	return err
}

// Count returns total passage count
func (s *PassageStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages`).Scan(&count)
	return count, err
}

// CountIndexed returns the number of indexed passages for a version
func (s *PassageStore) CountIndexed(ctx context.Context, embeddingVersion string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM passages WHERE indexed AND embedding_version = $1`,
		embeddingVersion,
	).Scan(&count)
	return count, err
}

func (s *PassageStore) queryPassages(ctx context.Context, query string, args ...any) ([]*domain.Passage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var passages []*domain.Passage
	for rows.Next() {
		p, err := scanPassageFrom(rows)
		if err != nil {
			return nil, err
		}
		passages = append(passages, p)
	}
	return passages, rows.Err()
}

func scanPassageFrom(scanner rowScanner) (*domain.Passage, error) {
	var p domain.Passage
	var embedding []byte

	err := scanner.Scan(
		&p.ID,
		&p.DocumentID,
		&p.Text,
		&p.Position,
		&p.StartChar,
		&p.EndChar,
		&p.EmbeddingVersion,
		&embedding,
		&p.Indexed,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Embedding = decodeEmbedding(embedding)
	return &p, nil
}

// encodeEmbedding packs a vector as little-endian float32 bytes.
// Returns nil for an empty vector so the column stays NULL.
func encodeEmbedding(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(embedding))
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeEmbedding unpacks little-endian float32 bytes
func decodeEmbedding(buf []byte) []float32 {
	if len(buf) < 4 {
		return nil
	}
	embedding := make([]float32, len(buf)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return embedding
}
