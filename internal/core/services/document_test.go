package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/custodia-labs/persona-core/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock implementations for local testing

// MockDocumentStore is a mock implementation of driven.DocumentStore
type MockDocumentStore struct {
	mock.Mock
}

func (m *MockDocumentStore) Save(ctx context.Context, doc *domain.Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockDocumentStore) Get(ctx context.Context, id string) (*domain.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentStore) GetByExternalID(ctx context.Context, kind domain.SourceKind, externalID string) (*domain.Document, error) {
	args := m.Called(ctx, kind, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentStore) List(ctx context.Context, limit, offset int) ([]*domain.Document, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Document), args.Error(1)
}

func (m *MockDocumentStore) ListIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDocumentStore) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDocumentStore) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockDocumentStore) CountByKind(ctx context.Context, kind domain.SourceKind) (int, error) {
	args := m.Called(ctx, kind)
	return args.Int(0), args.Error(1)
}

// MockPassageReader is a mock implementation of driven.PassageStore
type MockPassageReader struct {
	mock.Mock
}

func (m *MockPassageReader) ReplaceForDocument(ctx context.Context, documentID string, passages []*domain.Passage) error {
	args := m.Called(ctx, documentID, passages)
	return args.Error(0)
}

func (m *MockPassageReader) Get(ctx context.Context, id string) (*domain.Passage, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Passage), args.Error(1)
}

func (m *MockPassageReader) GetByDocument(ctx context.Context, documentID string) ([]*domain.Passage, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Passage), args.Error(1)
}

func (m *MockPassageReader) ListIndexed(ctx context.Context, embeddingVersion string, limit, offset int) ([]*domain.Passage, error) {
	args := m.Called(ctx, embeddingVersion, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Passage), args.Error(1)
}

func (m *MockPassageReader) ListUnindexed(ctx context.Context, limit int) ([]*domain.Passage, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Passage), args.Error(1)
}

func (m *MockPassageReader) UpdateEmbedding(ctx context.Context, id string, embeddingVersion string, embedding []float32) error {
	args := m.Called(ctx, id, embeddingVersion, embedding)
	return args.Error(0)
}

func (m *MockPassageReader) DeleteByDocument(ctx context.Context, documentID string) error {
	args := m.Called(ctx, documentID)
	return args.Error(0)
}

func (m *MockPassageReader) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockPassageReader) CountIndexed(ctx context.Context, embeddingVersion string) (int, error) {
	args := m.Called(ctx, embeddingVersion)
	return args.Int(0), args.Error(1)
}

func TestDocumentService_Get(t *testing.T) {
	docStore := new(MockDocumentStore)
	passageStore := new(MockPassageReader)
	svc := NewDocumentService(docStore, passageStore)

	doc := &domain.Document{
		ID:         "doc-1",
		SourceKind: domain.SourceKindChat,
		ExternalID: "m-1",
		UpdatedAt:  time.Now(),
	}
	docStore.On("Get", mock.Anything, "doc-1").Return(doc, nil)

	got, err := svc.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", got.ID)
	docStore.AssertExpectations(t)
}

func TestDocumentService_Get_EmptyID(t *testing.T) {
	svc := NewDocumentService(new(MockDocumentStore), new(MockPassageReader))

	_, err := svc.Get(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDocumentService_GetWithPassages(t *testing.T) {
	docStore := new(MockDocumentStore)
	passageStore := new(MockPassageReader)
	svc := NewDocumentService(docStore, passageStore)

	doc := &domain.Document{ID: "doc-1", SourceKind: domain.SourceKindCommit}
	passages := []*domain.Passage{
		{ID: "doc-1:0", DocumentID: "doc-1", Position: 0},
		{ID: "doc-1:1", DocumentID: "doc-1", Position: 1},
	}
	docStore.On("Get", mock.Anything, "doc-1").Return(doc, nil)
	passageStore.On("GetByDocument", mock.Anything, "doc-1").Return(passages, nil)

	got, err := svc.GetWithPassages(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", got.Document.ID)
	assert.Len(t, got.Passages, 2)
	passageStore.AssertExpectations(t)
}

func TestDocumentService_GetWithPassages_NotFound(t *testing.T) {
	docStore := new(MockDocumentStore)
	passageStore := new(MockPassageReader)
	svc := NewDocumentService(docStore, passageStore)

	docStore.On("Get", mock.Anything, "missing").Return(nil, domain.ErrNotFound)

	_, err := svc.GetWithPassages(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	passageStore.AssertNotCalled(t, "GetByDocument", mock.Anything, mock.Anything)
}

func TestDocumentService_List_ClampsLimit(t *testing.T) {
	docStore := new(MockDocumentStore)
	svc := NewDocumentService(docStore, new(MockPassageReader))

	// Oversized limits are clamped to 100, non-positive ones default to 20
	docStore.On("List", mock.Anything, 100, 0).Return([]*domain.Document{}, nil).Once()
	docStore.On("List", mock.Anything, 20, 0).Return([]*domain.Document{}, nil).Once()

	_, err := svc.List(context.Background(), 500, -3)
	require.NoError(t, err)
	_, err = svc.List(context.Background(), 0, 0)
	require.NoError(t, err)
	docStore.AssertExpectations(t)
}

func TestDocumentService_CountByKind_UnknownKind(t *testing.T) {
	svc := NewDocumentService(new(MockDocumentStore), new(MockPassageReader))

	_, err := svc.CountByKind(context.Background(), domain.SourceKind("email"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDocumentService_Count_StoreError(t *testing.T) {
	docStore := new(MockDocumentStore)
	svc := NewDocumentService(docStore, new(MockPassageReader))

	storeErr := errors.New("connection reset")
	docStore.On("Count", mock.Anything).Return(0, storeErr)

	_, err := svc.Count(context.Background())
	assert.ErrorIs(t, err, storeErr)
}
