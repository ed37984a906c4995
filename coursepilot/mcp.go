// CLAUDE:SUMMARY Registers the coursepilot MCP tools: status, toggle, update_settings, scan, pages.
package coursepilot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/coursepilot/coursepilot/state"
	"github.com/hazyhaar/coursepilot/kit"
)

// MCPImplementation identifies the coursepilot MCP server.
var MCPImplementation = &mcp.Implementation{Name: "coursepilot", Version: "1.0.0"}

// NewMCPServer returns an MCP server with every coursepilot tool registered.
func (p *Pilot) NewMCPServer() *mcp.Server {
	srv := mcp.NewServer(MCPImplementation, &mcp.ServerOptions{
		Instructions: "Drives online course pages in Chrome. Every tool takes the page_id " +
			"of an open page; coursepilot_pages lists them.",
	})
	p.RegisterMCP(srv)
	return srv
}

// RegisterMCP registers coursepilot tools on an MCP server.
func (p *Pilot) RegisterMCP(srv *mcp.Server) {
	p.registerStatusTool(srv)
	p.registerToggleTool(srv)
	p.registerSettingsTool(srv)
	p.registerScanTool(srv)
	p.registerPagesTool(srv)
}

// mcpCallTimeout bounds one tool call.
const mcpCallTimeout = 30 * time.Second

func (p *Pilot) mcpEndpoint(op string, ep kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.Logging(p.logger, op), kit.Timeout(mcpCallTimeout))(ep)
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

var pageIDProp = map[string]any{"type": "string", "description": "Page id (see coursepilot_pages)"}

type pageRequest struct {
	PageID string `json:"page_id"`
}

func decodePage[T any](validate func(*T) string) func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	return func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r T
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		id := validate(&r)
		if id == "" {
			return nil, fmt.Errorf("page_id is required")
		}
		return &kit.MCPDecodeResult{
			Request:   &r,
			EnrichCtx: func(ctx context.Context) context.Context { return kit.WithPageID(ctx, id) },
		}, nil
	}
}

// --- status ---

func (p *Pilot) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "coursepilot_status",
		Description: "Report whether a page is monitoring, the seconds until the next allowed click, settings and click statistics.",
		InputSchema: inputSchema(map[string]any{"page_id": pageIDProp}, []string{"page_id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*pageRequest)
		return p.Status(ctx, r.PageID)
	}
	kit.RegisterMCPTool(srv, tool, p.mcpEndpoint("status", endpoint),
		decodePage(func(r *pageRequest) string { return r.PageID }))
}

// --- toggle ---

type toggleRequest struct {
	PageID  string `json:"page_id"`
	Enabled bool   `json:"enabled"`
}

func (p *Pilot) registerToggleTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "coursepilot_toggle",
		Description: "Start or stop monitoring a page. The flag is persisted.",
		InputSchema: inputSchema(map[string]any{
			"page_id": pageIDProp,
			"enabled": map[string]any{"type": "boolean", "description": "true to start monitoring, false to stop"},
		}, []string{"page_id", "enabled"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*toggleRequest)
		if err := p.SetMonitoring(ctx, r.PageID, r.Enabled); err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "page_id": r.PageID, "enabled": r.Enabled}, nil
	}
	kit.RegisterMCPTool(srv, tool, p.mcpEndpoint("toggle", endpoint),
		decodePage(func(r *toggleRequest) string { return r.PageID }))
}

// --- update_settings ---

type settingsRequest struct {
	PageID         string `json:"page_id"`
	DelaySeconds   *int   `json:"delay_seconds,omitempty"`
	MarkAsComplete *bool  `json:"mark_as_complete,omitempty"`
}

func (p *Pilot) registerSettingsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "coursepilot_update_settings",
		Description: "Change the minimum delay between clicks and whether completion controls are clicked. Omitted fields keep their value.",
		InputSchema: inputSchema(map[string]any{
			"page_id":          pageIDProp,
			"delay_seconds":    map[string]any{"type": "integer", "minimum": 0, "description": "Minimum seconds between two clicks"},
			"mark_as_complete": map[string]any{"type": "boolean", "description": "Click \"mark as complete\" controls before \"next\""},
		}, []string{"page_id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*settingsRequest)
		return p.UpdateSettings(ctx, r.PageID, state.SettingsUpdate{
			DelaySeconds:   r.DelaySeconds,
			MarkAsComplete: r.MarkAsComplete,
		})
	}
	kit.RegisterMCPTool(srv, tool, p.mcpEndpoint("update_settings", endpoint),
		decodePage(func(r *settingsRequest) string { return r.PageID }))
}

// --- scan ---

func (p *Pilot) registerScanTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "coursepilot_scan",
		Description: "Scan a page now. The minimum delay still applies and an idle page is not scanned.",
		InputSchema: inputSchema(map[string]any{"page_id": pageIDProp}, []string{"page_id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*pageRequest)
		res, err := p.ForceScan(ctx, r.PageID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "result": res}, nil
	}
	kit.RegisterMCPTool(srv, tool, p.mcpEndpoint("scan", endpoint),
		decodePage(func(r *pageRequest) string { return r.PageID }))
}

// --- pages ---

func (p *Pilot) registerPagesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "coursepilot_pages",
		Description: "List open pages with their url and state.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return p.Pages(ctx), nil
	}
	decode := func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{}, nil
	}
	kit.RegisterMCPTool(srv, tool, p.mcpEndpoint("pages", endpoint), decode)
}
