// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes workspace tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/patto/internal/apperr"
	"github.com/starford/patto/internal/noteservice"
)

const formatURI = "patto://note-format"

// Server wraps the MCP server with workspace tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"patto",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note names and content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. daily/2025-01-01.pn)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new note at the specified path. "+
			"Content MUST use the tab-indented note format. Read it first via "+
			"the get_note_format tool or the "+formatURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path for the new note (must end with .pn)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Note content in the tab-indented note format")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("get_note_format",
		mcp.WithDescription("Returns the note format reference. "+
			"Call this before creating notes to ensure correct structure."),
	), s.getNoteFormat)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List all note paths, optionally restricted to a folder."),
		mcp.WithString("folder", mcp.Description("Optional folder prefix (empty for all)")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all notes that link to the specified note, with the linking lines."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the note to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("get_two_hop",
		mcp.WithDescription("Find notes that share link targets with the specified note, grouped by shared target."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the note")),
	), s.getTwoHop)

	s.mcp.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks across all notes ordered by due date."),
		mcp.WithString("status", mcp.Description("Optional status filter: todo, doing or done")),
	), s.listTasks)

	s.mcp.AddTool(mcp.NewTool("resolve_link",
		mcp.WithDescription("Find which note and line a link written in a note points to."),
		mcp.WithString("from", mcp.Required(), mcp.Description("Path of the note containing the link")),
		mcp.WithString("target", mcp.Description("Link target name; empty for a link within the same note")),
		mcp.WithString("anchor", mcp.Description("Optional anchor name")),
	), s.resolveLink)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Note Format",
			mcp.WithResourceDescription("Reference for the tab-indented note format."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("not found")
	}
	return mcp.NewToolResultError(err.Error())
}

// optString returns an optional string argument, or "" when absent.
func optString(req mcp.CallToolRequest, key string) string {
	if v, err := req.RequireString(key); err == nil {
		return v
	}
	return ""
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(results), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.GetNote(ctx, path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
		}
		return toolError(err), nil
	}
	return mcp.NewToolResultText(note.Content), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.CreateNote(ctx, path, []byte(content))
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			return mcp.NewToolResultError(fmt.Sprintf("note already exists: %s", path)), nil
		}
		return toolError(err), nil
	}
	msg := fmt.Sprintf("created: %s", path)
	if n := len(note.Diagnostics); n > 0 {
		msg += fmt.Sprintf(" (%d lines could not be parsed)", n)
	}
	return mcp.NewToolResultText(msg), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := strings.Trim(optString(req, "folder"), "/")

	items, _, err := s.svc.ListNotes(ctx, -1, 0, "")
	if err != nil {
		return toolError(err), nil
	}
	var paths []string
	for _, it := range items {
		if folder == "" || strings.HasPrefix(it.Path, folder+"/") {
			paths = append(paths, it.Path)
		}
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) getNoteFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormat), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormat,
		},
	}, nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.svc.Backlinks(ctx, path)
	if err != nil {
		return toolError(err), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	var b strings.Builder
	for _, src := range bl {
		for _, loc := range src.Locations {
			fmt.Fprintf(&b, "%s:%d: %s\n", s.svc.RelPath(src.SourceURI), loc.Row+1, loc.Context)
		}
	}
	return mcp.NewToolResultText(strings.TrimSuffix(b.String(), "\n")), nil
}

func (s *Server) getTwoHop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bridges, err := s.svc.TwoHop(ctx, path)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(bridges), nil
}

func (s *Server) listTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tasks, err := s.svc.Tasks(ctx, optString(req, "status"))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(tasks), nil
}

func (s *Server) resolveLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := req.RequireString("from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Resolve(ctx, from, optString(req, "target"), optString(req, "anchor"))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res), nil
}
