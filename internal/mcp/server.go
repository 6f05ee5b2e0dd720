// Package mcp implements the Model Context Protocol server surface: a
// JSON-RPC 2.0 loop over line-framed stdio exposing the query tools and the
// influxdb:// resource scheme.
package mcp

import (
	"bufio"
	"io"
	"log/slog"
	"os"

	"fluxmcp/internal/query"
	"fluxmcp/internal/storage"
)

// Server represents the MCP server
type Server struct {
	stdin   io.Reader
	stdout  io.Writer
	scanner *bufio.Scanner
	logger  *slog.Logger
	version string
	engine  *query.Engine
	metrics *storage.DB
	tools   map[string]ToolHandler
}

// NewServer creates a new MCP server reading stdin and writing stdout.
// metrics may be nil when metrics persistence is disabled.
func NewServer(version string, engine *query.Engine, metrics *storage.DB, logger *slog.Logger) *Server {
	server := &Server{
		stdin:   os.Stdin,
		stdout:  os.Stdout,
		logger:  logger,
		version: version,
		engine:  engine,
		metrics: metrics,
		tools:   make(map[string]ToolHandler),
	}
	server.RegisterTools()
	return server
}

// Start starts the MCP server and begins processing messages
func (s *Server) Start() error {
	s.logger.Info("MCP server starting", "version", s.version)

	for {
		msg, err := s.readMessage()
		if err != nil {
			if err == io.EOF {
				s.logger.Info("MCP server shutting down (EOF)")
				return nil
			}
			s.logger.Error("error reading message", "error", err.Error())

			// The id of an unparseable request is unknowable; the
			// error reply goes out without one.
			_ = s.writeError(nil, ParseError, "failed to parse message")
			continue
		}

		// Notifications don't generate responses
		response := s.handleMessage(msg)
		if response != nil {
			if err := s.writeMessage(response); err != nil {
				s.logger.Error("error writing response", "error", err.Error())
			}
		}
	}
}

// SetStdin sets the input stream (for testing)
func (s *Server) SetStdin(r io.Reader) {
	s.stdin = r
	s.scanner = nil // Reset scanner so it will be recreated with new reader
}

// SetStdout sets the output stream (for testing)
func (s *Server) SetStdout(w io.Writer) {
	s.stdout = w
}
