package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docqa/features/document"
	"docqa/internal/apperr"
	"docqa/internal/qa"
)

type MockAnswerer struct{ mock.Mock }

func (m *MockAnswerer) Ask(ctx context.Context, question, documentID string) (qa.Answer, error) {
	args := m.Called(ctx, question, documentID)
	return args.Get(0).(qa.Answer), args.Error(1)
}

type MockLister struct{ mock.Mock }

func (m *MockLister) List(ctx context.Context) ([]document.Document, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]document.Document), args.Error(1)
}

type toolResponse struct {
	Result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
}

func callTool(t *testing.T, a Answerer, l Lister, name string, args map[string]interface{}) toolResponse {
	t.Helper()
	srv := NewServer(a, l)

	msg, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]interface{}{"name": name, "arguments": args},
	})
	require.NoError(t, err)

	raw, err := json.Marshal(srv.HandleMessage(context.Background(), msg))
	require.NoError(t, err)

	var resp toolResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.NotEmpty(t, resp.Result.Content)
	return resp
}

func TestAskQuestion(t *testing.T) {
	tests := []struct {
		name      string
		args      map[string]interface{}
		setup     func(*MockAnswerer)
		wantError bool
		wantText  string
	}{
		{
			name: "Answered",
			args: map[string]interface{}{"question": "refund window?", "document_id": "doc-1"},
			setup: func(m *MockAnswerer) {
				m.On("Ask", mock.Anything, "refund window?", "doc-1").
					Return(qa.Answer{Answer: "30 days", Confidence: 1, SourceDocument: "Used 3 relevant text chunks"}, nil)
			},
			wantText: `{"answer":"30 days","confidence":1,"source_document":"Used 3 relevant text chunks"}`,
		},
		{
			name: "All Documents",
			args: map[string]interface{}{"question": "anything?"},
			setup: func(m *MockAnswerer) {
				m.On("Ask", mock.Anything, "anything?", "").Return(qa.Answer{Answer: "yes"}, nil)
			},
			wantText: `{"answer":"yes","confidence":0,"source_document":""}`,
		},
		{
			name:      "Missing Question",
			args:      map[string]interface{}{},
			setup:     func(*MockAnswerer) {},
			wantError: true,
		},
		{
			name: "Unknown Document",
			args: map[string]interface{}{"question": "q", "document_id": "nope"},
			setup: func(m *MockAnswerer) {
				m.On("Ask", mock.Anything, "q", "nope").Return(qa.Answer{}, apperr.ErrNotFound)
			},
			wantError: true,
			wantText:  "Document not found",
		},
		{
			name: "Internal Failure Hidden",
			args: map[string]interface{}{"question": "q"},
			setup: func(m *MockAnswerer) {
				m.On("Ask", mock.Anything, "q", "").Return(qa.Answer{}, errors.New("pq: connection refused"))
			},
			wantError: true,
			wantText:  "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(MockAnswerer)
			tt.setup(m)

			resp := callTool(t, m, new(MockLister), "ask_question", tt.args)

			assert.Equal(t, tt.wantError, resp.Result.IsError)
			if tt.wantText != "" {
				if tt.wantError {
					assert.Equal(t, tt.wantText, resp.Result.Content[0].Text)
				} else {
					assert.JSONEq(t, tt.wantText, resp.Result.Content[0].Text)
				}
			}
			m.AssertExpectations(t)
		})
	}
}

func TestListDocuments(t *testing.T) {
	l := new(MockLister)
	l.On("List", mock.Anything).Return(nil, nil)

	resp := callTool(t, new(MockAnswerer), l, "list_documents", nil)

	assert.False(t, resp.Result.IsError)
	assert.Equal(t, "[]", resp.Result.Content[0].Text)
}

func TestSSEHandler_RejectsMessageWithoutSession(t *testing.T) {
	h := NewSSEHandler(NewServer(new(MockAnswerer), new(MockLister)), "http://localhost:8000")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, MessagePath, nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
