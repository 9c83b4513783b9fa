// CLAUDE:SUMMARY Registers the templio MCP tools: list, get, create, preview, rename, favorite, delete, markdown export.
package templates

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/templio/kit"
)

// MCPImplementation identifies the templio MCP server.
var MCPImplementation = &mcp.Implementation{Name: "templio", Version: "1.0.0"}

// RegisterMCP registers the template tools on srv. Every call acts as
// userID.
func (s *Service) RegisterMCP(srv *mcp.Server, userID string) {
	s.registerListTool(srv, userID)
	s.registerGetTool(srv, userID)
	s.registerCreateTool(srv, userID)
	s.registerPreviewTool(srv, userID)
	s.registerRenameTool(srv, userID)
	s.registerToggleFavoriteTool(srv, userID)
	s.registerDeleteTool(srv, userID)
	s.registerExportTool(srv, userID)
}

// MCPHandler serves the tools over streamable HTTP. Each request gets a
// server bound to the user its context carries, so mount it behind the
// session middleware.
func (s *Service) MCPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		srv := mcp.NewServer(MCPImplementation, nil)
		s.RegisterMCP(srv, kit.GetUserID(r.Context()))
		return srv
	}, &mcp.StreamableHTTPOptions{Stateless: true})
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// decodeAs decodes the tool arguments into a fresh T and binds the call to
// userID.
func decodeAs[T any](userID string) func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	return func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		res, err := kit.DecodeJSON[T](req)
		if err != nil {
			return nil, err
		}
		res.EnrichCtx = func(ctx context.Context) context.Context {
			return kit.WithUserID(ctx, userID)
		}
		return res, nil
	}
}

var idProperty = map[string]any{"type": "string", "description": "Template id"}

type idRequest struct {
	ID string `json:"id"`
}

// --- list ---

type listRequest struct {
	Sort string `json:"sort,omitempty"`
	Page int    `json:"page,omitempty"`
}

func (s *Service) registerListTool(srv *mcp.Server, userID string) {
	tool := &mcp.Tool{
		Name:        "templio_list",
		Description: "List saved HTML templates, 6 per page. Returns ids, titles, descriptions and thumbnails.",
		InputSchema: inputSchema(map[string]any{
			"sort": map[string]any{"type": "string", "enum": []any{SortNewest, SortOldest, SortFavorites}, "description": "Order (default newest)"},
			"page": map[string]any{"type": "integer", "description": "Page number, starting at 1"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*listRequest)
		return s.List(ctx, r.Sort, r.Page)
	}
	kit.RegisterMCPTool(srv, tool, kit.Logging(s.logger, tool.Name)(endpoint), decodeAs[listRequest](userID))
}

// --- get ---

func (s *Service) registerGetTool(srv *mcp.Server, userID string) {
	tool := &mcp.Tool{
		Name:        "templio_get",
		Description: "Get one template, including its raw html_code.",
		InputSchema: inputSchema(map[string]any{"id": idProperty}, []string{"id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return s.Get(ctx, req.(*idRequest).ID)
	}
	kit.RegisterMCPTool(srv, tool, kit.Logging(s.logger, tool.Name)(endpoint), decodeAs[idRequest](userID))
}

// --- create ---

func (s *Service) registerCreateTool(srv *mcp.Server, userID string) {
	tool := &mcp.Tool{
		Name:        "templio_create",
		Description: "Save a new HTML template. A thumbnail is generated; if that fails the template is still saved and a warning is returned.",
		InputSchema: inputSchema(map[string]any{
			"title":       map[string]any{"type": "string", "description": "Title, up to 200 characters"},
			"description": map[string]any{"type": "string", "description": "Optional description, up to 1000 characters"},
			"html_code":   map[string]any{"type": "string", "description": "HTML document or fragment, up to 10 MB"},
		}, []string{"title", "html_code"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return s.Create(ctx, *req.(*CreateInput))
	}
	kit.RegisterMCPTool(srv, tool, kit.Logging(s.logger, tool.Name)(endpoint), decodeAs[CreateInput](userID))
}

// --- preview ---

type previewRequest struct {
	ID       string `json:"id,omitempty"`
	HTMLCode string `json:"html_code,omitempty"`
	Title    string `json:"title,omitempty"`
}

type previewResponse struct {
	Document string `json:"document"`
}

func (s *Service) registerPreviewTool(srv *mcp.Server, userID string) {
	tool := &mcp.Tool{
		Name:        "templio_preview",
		Description: "Return the sanitized preview document of a saved template (by id) or of unsaved html_code.",
		InputSchema: inputSchema(map[string]any{
			"id":        idProperty,
			"html_code": map[string]any{"type": "string", "description": "Unsaved HTML to sanitize, used when id is empty"},
			"title":     map[string]any{"type": "string", "description": "Document title for unsaved HTML"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*previewRequest)
		var doc string
		var err error
		if r.ID != "" {
			doc, err = s.Preview(ctx, r.ID)
		} else {
			if _, err := userFrom(ctx, "preview"); err != nil {
				return nil, err
			}
			doc, err = s.SanitizePreview(r.HTMLCode, r.Title)
		}
		if err != nil {
			return nil, err
		}
		return &previewResponse{Document: doc}, nil
	}
	kit.RegisterMCPTool(srv, tool, kit.Logging(s.logger, tool.Name)(endpoint), decodeAs[previewRequest](userID))
}

// --- rename ---

type renameRequest struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func (s *Service) registerRenameTool(srv *mcp.Server, userID string) {
	tool := &mcp.Tool{
		Name:        "templio_rename",
		Description: "Change the title of a template.",
		InputSchema: inputSchema(map[string]any{
			"id":    idProperty,
			"title": map[string]any{"type": "string", "description": "New title"},
		}, []string{"id", "title"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*renameRequest)
		return s.UpdateTitle(ctx, r.ID, r.Title)
	}
	kit.RegisterMCPTool(srv, tool, kit.Logging(s.logger, tool.Name)(endpoint), decodeAs[renameRequest](userID))
}

// --- toggle_favorite ---

func (s *Service) registerToggleFavoriteTool(srv *mcp.Server, userID string) {
	tool := &mcp.Tool{
		Name:        "templio_toggle_favorite",
		Description: "Flip the favorite flag of a template.",
		InputSchema: inputSchema(map[string]any{"id": idProperty}, []string{"id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return s.ToggleFavorite(ctx, req.(*idRequest).ID)
	}
	kit.RegisterMCPTool(srv, tool, kit.Logging(s.logger, tool.Name)(endpoint), decodeAs[idRequest](userID))
}

// --- delete ---

func (s *Service) registerDeleteTool(srv *mcp.Server, userID string) {
	tool := &mcp.Tool{
		Name:        "templio_delete",
		Description: "Delete a template permanently.",
		InputSchema: inputSchema(map[string]any{"id": idProperty}, []string{"id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		id := req.(*idRequest).ID
		if err := s.Delete(ctx, id); err != nil {
			return nil, err
		}
		return map[string]string{"deleted": id}, nil
	}
	kit.RegisterMCPTool(srv, tool, kit.Logging(s.logger, tool.Name)(endpoint), decodeAs[idRequest](userID))
}

// --- export_markdown ---

type markdownResponse struct {
	Markdown string `json:"markdown"`
}

func (s *Service) registerExportTool(srv *mcp.Server, userID string) {
	tool := &mcp.Tool{
		Name:        "templio_export_markdown",
		Description: "Export a template as Markdown, converted from its sanitized HTML.",
		InputSchema: inputSchema(map[string]any{"id": idProperty}, []string{"id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		md, err := s.ExportMarkdown(ctx, req.(*idRequest).ID)
		if err != nil {
			return nil, err
		}
		return &markdownResponse{Markdown: md}, nil
	}
	kit.RegisterMCPTool(srv, tool, kit.Logging(s.logger, tool.Name)(endpoint), decodeAs[idRequest](userID))
}
