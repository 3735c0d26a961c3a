// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes pagenote tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/pagenote/internal/apperr"
	"github.com/starford/pagenote/internal/models"
	"github.com/starford/pagenote/internal/noteservice"
)

const layoutURI = "pagenote://store-layout"

// Server wraps the MCP server with pagenote tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all pagenote tools registered.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Pagenote",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes of a folder, most recently modified first. "+
			"One line per note: id, title, first url."),
		mcp.WithString("folder", mcp.Description("Folder key; empty or \"all\" lists every note")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read one note as JSON (title, HTML content, folder, urls)."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id, e.g. note_1700000000000")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("list_folders",
		mcp.WithDescription("List folder keys with their display names and note counts."),
	), s.listFolders)

	s.mcp.AddTool(mcp.NewTool("rename_folder",
		mcp.WithDescription("Change the display name of a folder. The folder key is unchanged."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Folder key as returned by list_folders")),
		mcp.WithString("name", mcp.Required(), mcp.Description("New display name")),
	), s.renameFolder)

	s.mcp.AddTool(mcp.NewTool("get_store_layout",
		mcp.WithDescription("Returns how notes and folders are stored and keyed."),
	), s.getStoreLayout)

	// Resource: store layout.
	s.mcp.AddResource(
		mcp.NewResource(layoutURI, "Store Layout",
			mcp.WithResourceDescription("Keys and JSON shapes of persisted notes and folders."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readLayoutResource,
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

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := req.GetString("folder", "")
	if folder == "" {
		folder = models.AllFolder
	}
	notes, err := s.svc.Notes(ctx, folder)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(notes) == 0 {
		return mcp.NewToolResultText("no notes found"), nil
	}

	lines := make([]string, 0, len(notes))
	for _, n := range notes {
		url := ""
		if len(n.URLs) > 0 {
			url = n.URLs[0]
		}
		lines = append(lines, fmt.Sprintf("%s\t%s\t%s", n.ID, n.Title, url))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.Get(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(note, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

type folderInfo struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Notes int    `json:"notes"`
}

func (s *Server) listFolders(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names, err := s.svc.Folders(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	idx := s.svc.Index()
	out := make([]folderInfo, 0, len(names))
	for key, f := range names {
		out = append(out, folderInfo{Key: key, Name: f.Name, Notes: idx.Count(key)})
	}
	slices.SortFunc(out, func(a, b folderInfo) int { return strings.Compare(a.Key, b.Key) })
	data, _ := json.MarshalIndent(out, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) renameFolder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.RenameFolder(ctx, key, name); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("renamed: %s -> %s", key, name)), nil
}

func (s *Server) getStoreLayout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(StoreLayout), nil
}

func (s *Server) readLayoutResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      layoutURI,
			MIMEType: "text/markdown",
			Text:     StoreLayout,
		},
	}, nil
}
