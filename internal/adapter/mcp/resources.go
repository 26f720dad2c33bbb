package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

const (
	resourceDepartments = "courseforge://departments"
	resourceAdvisors    = "courseforge://advisors"
)

type advisorResource struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Department string   `json:"department,omitempty"`
	Handoffs   []string `json:"handoffs,omitempty"`
}

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			resourceDepartments,
			"Departments",
			mcplib.WithResourceDescription("Departments in the course catalog"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleDepartmentsResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			resourceAdvisors,
			"Advisors",
			mcplib.WithResourceDescription("Router and department advisors with their handoff targets"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleAdvisorsResource,
	)
}

func (s *Server) handleDepartmentsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Schedules == nil {
		return jsonContents(req.Params.URI, `{"error":"schedule service not configured"}`), nil
	}
	depts, err := s.deps.Schedules.Departments(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(depts)
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, string(data)), nil
}

func (s *Server) handleAdvisorsResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Schedules == nil {
		return jsonContents(req.Params.URI, `{"error":"schedule service not configured"}`), nil
	}
	agents := s.deps.Schedules.Advisors()
	out := make([]advisorResource, 0, len(agents))
	for i := range agents {
		out = append(out, advisorResource{
			ID:         agents[i].ID,
			Name:       agents[i].Name,
			Department: agents[i].Department,
			Handoffs:   agents[i].HandoffTargets,
		})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, string(data)), nil
}

func jsonContents(uri, text string) []mcplib.ResourceContents {
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{URI: uri, MIMEType: "application/json", Text: text},
	}
}
