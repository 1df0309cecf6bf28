package document_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docqa/features/document"
	"docqa/internal/extraction"
	"docqa/internal/qa"
)

func assignID(id string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		args.Get(1).(*document.Document).ID = id
	}
}

type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) Save(ctx context.Context, doc *document.Document) error {
	return m.Called(ctx, doc).Error(0)
}

func (m *MockRepo) Get(ctx context.Context, id string) (*document.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*document.Document), args.Error(1)
}

func (m *MockRepo) List(ctx context.Context) ([]document.Document, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]document.Document), args.Error(1)
}

func (m *MockRepo) ExistsByFilename(ctx context.Context, filename string) (bool, error) {
	args := m.Called(ctx, filename)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepo) UpdateStatus(ctx context.Context, id, status string) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockRepo) MarkProcessed(ctx context.Context, id string, pages, chunks int) error {
	return m.Called(ctx, id, pages, chunks).Error(0)
}

func (m *MockRepo) MarkFailed(ctx context.Context, id, reason string) error {
	return m.Called(ctx, id, reason).Error(0)
}

func (m *MockRepo) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockRepo) CountProcessed(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockLoader struct {
	mock.Mock
}

func (m *MockLoader) Open(ctx context.Context, id, path string) (extraction.Document, error) {
	args := m.Called(ctx, id, path)
	return args.Get(0).(extraction.Document), args.Error(1)
}

type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, doc extraction.Document) (string, error) {
	args := m.Called(ctx, doc)
	return args.String(0), args.Error(1)
}

type MockAnswerer struct {
	mock.Mock
}

func (m *MockAnswerer) Index(ctx context.Context, documentID, content string) (int, error) {
	args := m.Called(ctx, documentID, content)
	return args.Int(0), args.Error(1)
}

func (m *MockAnswerer) Ask(ctx context.Context, question, documentID string) (qa.Answer, error) {
	args := m.Called(ctx, question, documentID)
	return args.Get(0).(qa.Answer), args.Error(1)
}

func (m *MockAnswerer) Forget(ctx context.Context, documentID string) error {
	return m.Called(ctx, documentID).Error(0)
}

func (m *MockAnswerer) Cleanup(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(topic string, body []byte) error {
	return m.Called(topic, body).Error(0)
}
