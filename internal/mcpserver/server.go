// Package mcpserver exposes the QA index to MCP clients over stdio, so an
// agent can log its own exchanges and pull context without the CLI.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flemzord/qaindex/internal/qaindex"
)

// Server wraps an MCP server whose tools call the store.
type Server struct {
	store  *qaindex.Store
	mcp    *server.MCPServer
	logger *slog.Logger
}

// New registers every tool on a fresh MCP server.
func New(store *qaindex.Store, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:  store,
		mcp:    server.NewMCPServer("qaindex", version, server.WithToolCapabilities(false)),
		logger: logger,
	}
	s.registerTools()
	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// Serve speaks MCP over in/out until ctx is cancelled or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, in, out)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("qa_ask",
		mcp.WithDescription("Append a question to a session. Returns the new entry with its seq."),
		mcp.WithString("session", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("question", mcp.Required()),
		mcp.WithString("author", mcp.Description("Who asked")),
	), s.handleAsk)

	s.mcp.AddTool(mcp.NewTool("qa_answer",
		mcp.WithDescription("Record the answer of an entry. The answer text is kept only if it scores above the retention threshold."),
		mcp.WithString("session", mcp.Required()),
		mcp.WithNumber("seq", mcp.Required(), mcp.Description("Entry sequence number")),
		mcp.WithString("answer", mcp.Required()),
		mcp.WithArray("tags", mcp.Items(map[string]any{"type": "string"}), mcp.Description("Topic tags")),
		mcp.WithNumber("significance", mcp.Description("Override the computed score, 0 to 1")),
	), s.handleAnswer)

	s.mcp.AddTool(mcp.NewTool("qa_log",
		mcp.WithDescription("Log a question together with its answer in one step."),
		mcp.WithString("session", mcp.Required()),
		mcp.WithString("question", mcp.Required()),
		mcp.WithString("answer", mcp.Required()),
		mcp.WithString("author"),
		mcp.WithArray("tags", mcp.Items(map[string]any{"type": "string"})),
		mcp.WithNumber("significance"),
	), s.handleLog)

	s.mcp.AddTool(mcp.NewTool("qa_recent",
		mcp.WithDescription("Last entries of a session, or across all sessions when session is omitted."),
		mcp.WithString("session"),
		mcp.WithNumber("n", mcp.Description("Number of entries, default 5")),
	), s.handleRecent)

	s.mcp.AddTool(mcp.NewTool("qa_context",
		mcp.WithDescription("Markdown block of the recent conversation, ready to prepend to a prompt."),
		mcp.WithString("session", mcp.Required()),
		mcp.WithNumber("window", mcp.Description("Number of entries, default 5")),
	), s.handleContext)

	s.mcp.AddTool(mcp.NewTool("qa_query",
		mcp.WithDescription("Find past questions sharing tokens with the text, best matches first."),
		mcp.WithString("text", mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Maximum matches, default 10")),
		mcp.WithNumber("min_significance"),
		mcp.WithBoolean("answered", mcp.Description("Only entries with a stored answer")),
		mcp.WithString("session"),
	), s.handleQuery)

	s.mcp.AddTool(mcp.NewTool("qa_topics",
		mcp.WithDescription("All topics with their entry counts."),
	), s.handleTopics)

	s.mcp.AddTool(mcp.NewTool("qa_topic",
		mcp.WithDescription("Entries tagged with a topic, oldest first."),
		mcp.WithString("topic", mcp.Required()),
	), s.handleTopic)

	s.mcp.AddTool(mcp.NewTool("qa_hash",
		mcp.WithDescription("Entry that last asked the question with this hash."),
		mcp.WithString("hash", mcp.Required()),
	), s.handleHash)

	s.mcp.AddTool(mcp.NewTool("qa_session",
		mcp.WithDescription("A full session."),
		mcp.WithString("session", mcp.Required()),
	), s.handleSession)

	s.mcp.AddTool(mcp.NewTool("qa_stats",
		mcp.WithDescription("Index metadata and per-session counts."),
	), s.handleStats)

	s.mcp.AddTool(mcp.NewTool("qa_significance",
		mcp.WithDescription("Override the significance of an answered entry."),
		mcp.WithString("session", mcp.Required()),
		mcp.WithNumber("seq", mcp.Required()),
		mcp.WithNumber("value", mcp.Required(), mcp.Description("0 to 1")),
	), s.handleSignificance)

	s.mcp.AddTool(mcp.NewTool("qa_tags",
		mcp.WithDescription("Replace the topic tags of an entry."),
		mcp.WithString("session", mcp.Required()),
		mcp.WithNumber("seq", mcp.Required()),
		mcp.WithArray("tags", mcp.Required(), mcp.Items(map[string]any{"type": "string"})),
	), s.handleTags)
}

func (s *Server) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := req.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.store.AppendQuestion(ctx, session, question, time.Time{}, req.GetString("author", ""))
	return s.result("qa_ask", rec, err)
}

func (s *Server) handleAnswer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := req.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	seq, err := req.RequireInt("seq")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	answer, err := req.RequireString("answer")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.store.RecordAnswer(ctx, session, seq, qaindex.AnswerInput{
		Answer:       answer,
		TopicTags:    req.GetStringSlice("tags", nil),
		Significance: optionalFloat(req, "significance"),
	})
	return s.result("qa_answer", rec, err)
}

func (s *Server) handleLog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := req.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	answer, err := req.RequireString("answer")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.store.LogExchange(ctx, qaindex.ExchangeInput{
		SessionID:    session,
		Question:     question,
		Answer:       answer,
		Author:       req.GetString("author", ""),
		TopicTags:    req.GetStringSlice("tags", nil),
		Significance: optionalFloat(req, "significance"),
	})
	return s.result("qa_log", rec, err)
}

func (s *Server) handleRecent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n := req.GetInt("n", qaindex.DefaultWindow)
	if session := req.GetString("session", ""); session != "" {
		recs, err := s.store.Recent(ctx, session, n)
		return s.result("qa_recent", recs, err)
	}
	recs, err := s.store.Latest(ctx, n)
	return s.result("qa_recent", recs, err)
}

func (s *Server) handleContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := req.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	items, err := s.store.ContextWindow(ctx, session, req.GetInt("window", qaindex.DefaultWindow))
	if err != nil {
		return s.failure("qa_context", err), nil
	}
	return mcp.NewToolResultText(qaindex.FormatContext(items, qaindex.FormatOptions{MaxAnswerChars: 200})), nil
}

func (s *Server) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	matches, err := s.store.ByTokenOverlap(ctx, qaindex.OverlapQuery{
		Text:            text,
		Limit:           req.GetInt("limit", 10),
		MinSignificance: req.GetFloat("min_significance", 0),
		RequireAnswer:   req.GetBool("answered", false),
		SessionID:       req.GetString("session", ""),
	})
	return s.result("qa_query", matches, err)
}

func (s *Server) handleTopics(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topics, err := s.store.Topics(ctx)
	return s.result("qa_topics", topics, err)
}

func (s *Server) handleTopic(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topic, err := req.RequireString("topic")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	recs, err := s.store.ByTopic(ctx, topic)
	return s.result("qa_topic", recs, err)
}

func (s *Server) handleHash(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hash, err := req.RequireString("hash")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.store.ByHash(ctx, hash)
	return s.result("qa_hash", rec, err)
}

func (s *Server) handleSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := req.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.store.Session(ctx, session)
	return s.result("qa_session", sess, err)
}

func (s *Server) handleStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.store.Stats(ctx)
	return s.result("qa_stats", stats, err)
}

func (s *Server) handleSignificance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := req.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	seq, err := req.RequireInt("seq")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := req.RequireFloat("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.store.UpdateSignificance(ctx, session, seq, value)
	return s.result("qa_significance", rec, err)
}

func (s *Server) handleTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := req.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	seq, err := req.RequireInt("seq")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tags, err := req.RequireStringSlice("tags")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.store.UpdateTags(ctx, session, seq, tags)
	return s.result("qa_tags", rec, err)
}

// result renders v as indented JSON, or err as a tool error. Store errors
// are tool-level failures the client can read, not protocol errors.
func (s *Server) result(tool string, v any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return s.failure(tool, err), nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcpserver: encoding %s result: %w", tool, err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) failure(tool string, err error) *mcp.CallToolResult {
	kind := qaindex.KindOf(err)
	if kind == qaindex.KindPersistence {
		s.logger.Error("tool failed", "tool", tool, "error", err)
	} else {
		s.logger.Debug("tool rejected", "tool", tool, "kind", kind.String(), "error", err)
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", kind, err))
}

func optionalFloat(req mcp.CallToolRequest, name string) *float64 {
	if _, ok := req.GetArguments()[name]; !ok {
		return nil
	}
	v := req.GetFloat(name, 0)
	return &v
}
