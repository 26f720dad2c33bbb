// Package mcp exposes catalog browsing and schedule generation as Model
// Context Protocol tools over streamable HTTP.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/CourseForge/internal/domain/advisor"
	"github.com/Strob0t/CourseForge/internal/domain/course"
	"github.com/Strob0t/CourseForge/internal/domain/orchestration"
	"github.com/Strob0t/CourseForge/internal/domain/student"
)

const endpointPath = "/mcp"

// Scheduler is the subset of the schedule service the tools call.
type Scheduler interface {
	Departments(ctx context.Context) ([]course.Department, error)
	Recommend(ctx context.Context, department string, completed []string, limit int) (course.Selection, error)
	Generate(ctx context.Context, req student.Request) (orchestration.Outcome, error)
	Advisors() []advisor.Agent
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
	APIKey  string
}

// ServerDeps are the services behind the tools. A nil Schedules makes every
// tool answer with an error result.
type ServerDeps struct {
	Schedules Scheduler
}

// Server wraps an mcp-go server and its HTTP listener.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer

	mu   sync.Mutex
	http *http.Server
}

// NewServer creates the server and registers its tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
			mcpserver.WithRecovery(),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Handler returns the streamable HTTP handler mounted at /mcp, behind the API
// key check when one is configured.
func (s *Server) Handler() http.Handler {
	streamable := mcpserver.NewStreamableHTTPServer(s.mcpServer,
		mcpserver.WithEndpointPath(endpointPath),
		mcpserver.WithStateLess(true),
	)
	mux := http.NewServeMux()
	mux.Handle(endpointPath, streamable)
	return AuthMiddleware(s.cfg.APIKey, mux)
}

// Start listens on cfg.Addr and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server error", "error", err)
		}
	}()
	slog.Info("mcp server started", "addr", ln.Addr().String(), "path", endpointPath)
	return nil
}

// Stop shuts the listener down. It is a no-op before Start.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.http = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
