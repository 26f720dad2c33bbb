package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/CourseForge/internal/domain/orchestration"
	"github.com/Strob0t/CourseForge/internal/domain/student"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.listDepartmentsTool(),
		s.recommendCoursesTool(),
		s.generateScheduleTool(),
	)
}

func (s *Server) listDepartmentsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_departments",
		mcplib.WithDescription("List the departments in the course catalog"),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleListDepartments}
}

func (s *Server) recommendCoursesTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("recommend_courses",
		mcplib.WithDescription("Recommend a department's courses the student has not completed, in catalog order"),
		mcplib.WithString("department",
			mcplib.Required(),
			mcplib.Description("Department name as listed by list_departments"),
		),
		mcplib.WithArray("completed",
			mcplib.Description("Titles of completed courses, e.g. \"CS 1101\""),
			mcplib.WithStringItems(),
		),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum number of courses; 0 uses the server default"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleRecommendCourses}
}

func (s *Server) generateScheduleTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("generate_schedule",
		mcplib.WithDescription("Plan a semester schedule by consulting the department advisors"),
		mcplib.WithArray("completed_courses", mcplib.WithStringItems(),
			mcplib.Description("Titles of completed courses")),
		mcplib.WithArray("interests", mcplib.WithStringItems(),
			mcplib.Description("Academic interests and sports")),
		mcplib.WithString("future_goals",
			mcplib.Description("Career or study goals")),
		mcplib.WithArray("departments", mcplib.WithStringItems(),
			mcplib.Description("Departments to consider; empty means all")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGenerateSchedule}
}

func (s *Server) handleListDepartments(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Schedules == nil {
		return mcplib.NewToolResultError("schedule service not configured"), nil
	}
	depts, err := s.deps.Schedules.Departments(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list departments", err), nil
	}
	return toolResultJSON(depts)
}

func (s *Server) handleRecommendCourses(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Schedules == nil {
		return mcplib.NewToolResultError("schedule service not configured"), nil
	}
	args := req.GetArguments()
	dept, _ := args["department"].(string)
	if strings.TrimSpace(dept) == "" {
		return mcplib.NewToolResultError("department is required"), nil
	}
	limit := 0
	if n, ok := args["limit"].(float64); ok {
		if n < 0 {
			return mcplib.NewToolResultError("limit must not be negative"), nil
		}
		limit = int(n)
	}

	sel, err := s.deps.Schedules.Recommend(ctx, dept, stringSlice(args["completed"]), limit)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to recommend %s courses", dept), err), nil
	}
	return mcplib.NewToolResultText(sel.Render(dept)), nil
}

func (s *Server) handleGenerateSchedule(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Schedules == nil {
		return mcplib.NewToolResultError("schedule service not configured"), nil
	}
	args := req.GetArguments()
	goals, _ := args["future_goals"].(string)
	out, err := s.deps.Schedules.Generate(ctx, student.Request{
		CompletedCourses: stringSlice(args["completed_courses"]),
		Interests:        stringSlice(args["interests"]),
		FutureGoals:      goals,
		DepartmentNames:  stringSlice(args["departments"]),
	})
	if out.Status != orchestration.StatusTerminated {
		if out.RunID == "" {
			return mcplib.NewToolResultErrorFromErr("invalid schedule request", err), nil
		}
		return mcplib.NewToolResultError(fmt.Sprintf("schedule generation failed (%s, run %s)", out.ErrorKind, out.RunID)), nil
	}
	return mcplib.NewToolResultText(strings.Join(out.ScheduleLines, "\n")), nil
}

func toolResultJSON(v any) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}

// stringSlice reads a JSON array argument, skipping non-string items.
func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
