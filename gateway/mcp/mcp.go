// Package mcp provides an MCP (Model Context Protocol) server over the
// patchbay transcript store.
package mcp

import (
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/patchbay/pkg/transcript"
	"github.com/papercomputeco/patchbay/pkg/utils"
)

type Config struct {
	// Store is the transcript store the history tools read from.
	Store transcript.Store

	// Logger is the configured zap logger
	Logger *zap.Logger
}

type Server struct {
	config    *Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the history tools.
func NewServer(c *Config) (*Server, error) {
	if c.Store == nil {
		return nil, errors.New("transcript store is required")
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	s := &Server{
		config: c,
	}

	// Create the MCP server
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "patchbay",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	// Add tools
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        historySearchToolName,
		Description: historySearchDescription,
	}, s.handleHistorySearch)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        historyGetToolName,
		Description: historyGetDescription,
	}, s.handleHistoryGet)

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
