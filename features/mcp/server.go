package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"docqa/features/document"
	"docqa/internal/qa"
)

const (
	SSEPath     = "/mcp/sse"
	MessagePath = "/mcp/message"
)

type Answerer interface {
	Ask(ctx context.Context, question, documentID string) (qa.Answer, error)
}

type Lister interface {
	List(ctx context.Context) ([]document.Document, error)
}

// NewServer registers the question answering tools.
func NewServer(answerer Answerer, lister Lister) *server.MCPServer {
	srv := server.NewMCPServer("docqa", "1.0.0", server.WithToolCapabilities(false))

	ask := mcp.NewTool("ask_question",
		mcp.WithDescription("Answer a question using the text of uploaded PDF documents. Pass document_id to restrict the answer to one document."),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to answer"),
		),
		mcp.WithString("document_id",
			mcp.Description("Optional ID of a processed document"),
		),
	)
	srv.AddTool(ask, askHandler(answerer))

	list := mcp.NewTool("list_documents",
		mcp.WithDescription("List uploaded documents with their processing status."),
	)
	srv.AddTool(list, listHandler(lister))

	return srv
}

func askHandler(answerer Answerer) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := request.RequireString("question")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		documentID := request.GetString("document_id", "")

		answer, err := answerer.Ask(ctx, question, documentID)
		if err != nil {
			slog.WarnContext(ctx, "mcp ask failed", "document_id", documentID, "error", err)
			return mcp.NewToolResultError(toolMessage(err)), nil
		}

		raw, err := json.Marshal(answer)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(raw)), nil
	}
}

func listHandler(lister Lister) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		docs, err := lister.List(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if docs == nil {
			docs = []document.Document{}
		}
		raw, err := json.Marshal(docs)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(raw)), nil
	}
}

func toolMessage(err error) string {
	_, status := document.ErrorStatus(err)
	switch status {
	case http.StatusNotFound:
		return "Document not found"
	case http.StatusInternalServerError:
		return "Internal Server Error"
	}
	return err.Error()
}

// NewSSEHandler exposes srv over SSE at SSEPath and MessagePath.
func NewSSEHandler(srv *server.MCPServer, baseURL string) http.Handler {
	return server.NewSSEServer(srv,
		server.WithBaseURL(baseURL),
		server.WithSSEEndpoint(SSEPath),
		server.WithMessageEndpoint(MessagePath),
	)
}
