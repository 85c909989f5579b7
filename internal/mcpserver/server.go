// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes menu tree tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/menutree/internal/menuservice"
	"github.com/starford/menutree/internal/menutree"
	"github.com/starford/menutree/internal/models"
)

// ContractURI addresses the move contract resource.
const ContractURI = "menutree://move-contract"

// Server wraps the MCP server with menu tree tools.
type Server struct {
	mcp *server.MCPServer
	svc *menuservice.Service
}

// New creates a new MCP server with all menu tree tools registered.
func New(svc *menuservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"menutree",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_menu_tree",
		mcp.WithDescription("Return the current menu forest as an indented outline (id, name, type). "+
			"Records flagged as anomalies are marked with their reason."),
	), s.getMenuTree)

	s.mcp.AddTool(mcp.NewTool("list_menu_anomalies",
		mcp.WithDescription("List records that were placed at top level because their declared parent is invalid."),
	), s.listAnomalies)

	s.mcp.AddTool(mcp.NewTool("move_menu",
		mcp.WithDescription("Move a menu relative to a target. Read the move contract first via "+
			"the get_move_contract tool or the "+ContractURI+" resource."),
		mcp.WithNumber("source_id", mcp.Required(), mcp.Description("Id of the menu to move")),
		mcp.WithNumber("target_id", mcp.Description("Id of the target menu; omit for the top-level container")),
		mcp.WithString("relation", mcp.Required(), mcp.Description("One of before, after, inside"),
			mcp.Enum(string(menutree.RelationBefore), string(menutree.RelationAfter), string(menutree.RelationInside))),
	), s.moveMenu)

	s.mcp.AddTool(mcp.NewTool("create_menu",
		mcp.WithDescription("Create a menu as the last child of parent_id, or at top level when parent_id is omitted."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Display name")),
		mcp.WithNumber("parent_id", mcp.Description("Optional parent menu id")),
		mcp.WithString("type", mcp.Description("One of link, page, board, folder")),
		mcp.WithString("path", mcp.Description("Optional link or page path")),
	), s.createMenu)

	s.mcp.AddTool(mcp.NewTool("get_move_contract",
		mcp.WithDescription("Returns the rules for moving menus. Call this before move_menu."),
	), s.getMoveContract)

	s.mcp.AddResource(
		mcp.NewResource(ContractURI, "Move Contract",
			mcp.WithResourceDescription("How relations, ordering and cycle rejection work for menu moves."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
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

func (s *Server) getMenuTree(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tree := s.svc.Tree()
	if len(tree.Forest) == 0 {
		return mcp.NewToolResultText("no menus"), nil
	}
	var b strings.Builder
	tree.Forest.Walk(func(n *menutree.Node, depth int) bool {
		fmt.Fprintf(&b, "%s- [%d] %s", strings.Repeat("  ", depth), n.ID, n.Name)
		if n.Type != "" {
			fmt.Fprintf(&b, " (%s)", n.Type)
		}
		if n.Anomaly != "" {
			fmt.Fprintf(&b, " !%s", n.Anomaly)
		}
		b.WriteByte('\n')
		return true
	})
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) listAnomalies(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	anomalies := s.svc.Anomalies()
	if len(anomalies) == 0 {
		return mcp.NewToolResultText("no anomalies found"), nil
	}
	out, _ := json.MarshalIndent(anomalies, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) moveMenu(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := req.RequireFloat("source_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rel, err := req.RequireString("relation")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := menuservice.MoveInput{
		SourceID: int64(src),
		TargetID: optionalID(req, "target_id"),
		Relation: rel,
	}
	res, err := s.svc.Move(ctx, in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) createMenu(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.svc.Create(ctx, menuservice.CreateInput{
		Name:     name,
		ParentID: optionalID(req, "parent_id"),
		Type:     req.GetString("type", ""),
		Path:     req.GetString("path", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %d", rec.ID)), nil
}

func (s *Server) getMoveContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(MoveContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ContractURI,
			MIMEType: "text/markdown",
			Text:     MoveContract,
		},
	}, nil
}

// optionalID returns nil when the argument is absent or not a number.
func optionalID(req mcp.CallToolRequest, key string) *int64 {
	v, err := req.RequireFloat(key)
	if err != nil {
		return nil
	}
	return models.Int64Ptr(int64(v))
}

