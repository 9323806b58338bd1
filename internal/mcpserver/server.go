// Package mcpserver exposes the search engine as MCP tools over stdio.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/internal/search"
	"github.com/hyperjump/shirabe/pkg/utils"
)

const (
	serverName      = "shirabe"
	defaultTOCLimit = 20
	hitPreviewLen   = 400
)

// SearchArgs are the arguments of the search tool.
type SearchArgs struct {
	Query string `json:"query" jsonschema:"natural language question or keywords"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"maximum number of passages to return (default 5)"`
}

// TOCArgs are the arguments of the toc tool.
type TOCArgs struct {
	Find  string `json:"find,omitempty" jsonschema:"keywords to look up in section titles; omit for the full table of contents"`
	Fuzzy bool   `json:"fuzzy,omitempty" jsonschema:"tolerate misspellings in find"`
}

// StatsArgs is empty; the stats tool takes no arguments.
type StatsArgs struct{}

// Handlers adapts the engine to MCP tool calls.
type Handlers struct {
	engine *search.Engine
	logger *zap.Logger
}

// NewHandlers creates handlers for engine.
func NewHandlers(engine *search.Engine, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{engine: engine, logger: logger}
}

// NewServer builds an MCP server with the search, stats and toc tools registered.
func NewServer(h *Handlers, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: version,
	}, &mcp.ServerOptions{
		Instructions: "Use search to find passages of the indexed manual. Results carry the page and section they come from. Use toc to browse or look up section titles.",
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search",
		Description: "Semantic search over the indexed manual. Returns the best passages with page number and section.",
	}, h.Search)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "stats",
		Description: "Describe the index: document count, embedding model, dimension and metric.",
	}, h.Stats)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "toc",
		Description: "List the table of contents, or find sections whose title matches the given keywords.",
	}, h.TOC)

	return server
}

// Run serves MCP over stdin/stdout until ctx is done or the client disconnects.
func Run(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// Search handles the search tool.
func (h *Handlers) Search(ctx context.Context, req *mcp.CallToolRequest, args SearchArgs) (*mcp.CallToolResult, any, error) {
	h.logger.Debug("mcp search", zap.String("query", args.Query), zap.Int("top_k", args.TopK))
	resp, err := h.engine.Query(ctx, models.SearchQuery{Query: args.Query, TopK: args.TopK})
	if err != nil {
		if errors.Is(err, search.ErrNoIndex) {
			return textResult("No index is available yet. Run `shirabe index <path>` first."), nil, nil
		}
		h.logger.Error("mcp search failed", zap.Error(err))
		return nil, nil, err
	}
	return textResult(formatHits(resp)), nil, nil
}

// Stats handles the stats tool.
func (h *Handlers) Stats(ctx context.Context, req *mcp.CallToolRequest, _ StatsArgs) (*mcp.CallToolResult, any, error) {
	s, err := h.engine.Stats(ctx)
	if err != nil {
		return nil, nil, err
	}
	msg := fmt.Sprintf("documents: %d\nmodel: %s\ndimension: %d\nmetric: %s\nlocation: %s\nloaded: %t\n",
		s.DocumentCount, s.ModelName, s.Dimension, s.Space, s.DBPath, s.Loaded)
	return textResult(msg), nil, nil
}

// TOC handles the toc tool.
func (h *Handlers) TOC(ctx context.Context, req *mcp.CallToolRequest, args TOCArgs) (*mcp.CallToolResult, any, error) {
	var marks []models.Bookmark
	if strings.TrimSpace(args.Find) == "" {
		marks = h.engine.Bookmarks()
	} else {
		var err error
		marks, err = h.engine.FindBookmarks(args.Find, defaultTOCLimit, args.Fuzzy)
		if err != nil {
			return nil, nil, err
		}
	}
	if len(marks) == 0 {
		return textResult("No sections found."), nil, nil
	}
	var b strings.Builder
	for _, m := range marks {
		fmt.Fprintf(&b, "p.%d  %s\n", m.PageNumber, m.Title)
	}
	return textResult(b.String()), nil, nil
}

func formatHits(resp *models.SearchResponse) string {
	if len(resp.Hits) == 0 {
		return fmt.Sprintf("No results for %q.", resp.Query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d results for %q\n", len(resp.Hits), resp.Query)
	for i, hit := range resp.Hits {
		fmt.Fprintf(&b, "\n[%d] page %d | %s | relevance %.3f\n%s\n",
			i+1, hit.Page, hit.Section, hit.Relevance, utils.Truncate(hit.Text, hitPreviewLen))
	}
	return b.String()
}

func textResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}
}
