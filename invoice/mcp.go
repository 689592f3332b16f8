// CLAUDE:SUMMARY MCP tools: run a batch, preview, read delivery logs, query the next scheduled run.
package invoice

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sinthos/PPV-Rechnung-Versenden/kit"
)

// RegisterMCP registers all invoice tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerRunNow(srv)
	s.registerPreview(srv)
	s.registerLogs(srv)
	s.registerNextRun(srv)
}

// wrap applies the standard tool middleware: panic recovery innermost so
// a crashing batch surfaces as a tool error, call logging outermost.
func (s *Service) wrap(op string, e kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.Logging(s.logger, op), kit.Recovery(s.logger))(e)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	sch := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sch["required"] = required
	}
	return sch
}

func (s *Service) registerRunNow(srv *mcp.Server) {
	type req struct {
		IgnoreDedup bool     `json:"ignore_dedup"`
		Files       []string `json:"files"`
	}

	tool := &mcp.Tool{
		Name:        "rechnung_run_now",
		Description: "Process and send all pending invoices now, regardless of invoice date",
		InputSchema: inputSchema(map[string]any{
			"ignore_dedup": map[string]any{"type": "boolean", "description": "Re-send files already logged as sent"},
			"files":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Restrict the run to these filenames"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return s.TriggerNow(ctx, RunOptions{IgnoreDedup: p.IgnoreDedup, Files: p.Files}), nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if len(r.Params.Arguments) > 0 {
			if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, s.wrap(tool.Name, endpoint), decode)
}

func (s *Service) registerPreview(srv *mcp.Server) {
	type req struct {
		Files []string `json:"files"`
	}

	tool := &mcp.Tool{
		Name:        "rechnung_preview",
		Description: "Dry-run the invoice pipeline: report what would be sent without sending, logging, or moving anything",
		InputSchema: inputSchema(map[string]any{
			"files": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Restrict the preview to these filenames"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return s.Preview(ctx, p.Files), nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if len(r.Params.Arguments) > 0 {
			if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, s.wrap(tool.Name, endpoint), decode)
}

func (s *Service) registerLogs(srv *mcp.Server) {
	type req struct {
		Limit int `json:"limit"`
	}

	tool := &mcp.Tool{
		Name:        "rechnung_logs",
		Description: "Read the delivery log, newest first",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Maximum entries to return (default 100)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return s.RecentLogs(ctx, p.Limit)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if len(r.Params.Arguments) > 0 {
			if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, s.wrap(tool.Name, endpoint), decode)
}

func (s *Service) registerNextRun(srv *mcp.Server) {
	type req struct{}

	tool := &mcp.Tool{
		Name:        "rechnung_next_run",
		Description: "Return the next scheduled daily run, or null when the scheduler is stopped",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		resp := map[string]any{"running": s.SchedulerRunning()}
		if next := s.NextRun(); next != nil {
			resp["next_run"] = next.Format(time.RFC3339)
		}
		return resp, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: &req{}}, nil
	}

	kit.RegisterMCPTool(srv, tool, s.wrap(tool.Name, endpoint), decode)
}
