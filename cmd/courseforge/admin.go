package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/Strob0t/CourseForge/internal/adapter/catalogfile"
	"github.com/Strob0t/CourseForge/internal/adapter/litellm"
	"github.com/Strob0t/CourseForge/internal/adapter/postgres"
	"github.com/Strob0t/CourseForge/internal/config"
	"github.com/Strob0t/CourseForge/internal/domain/course"
	"github.com/Strob0t/CourseForge/internal/domain/orchestration"
	"github.com/Strob0t/CourseForge/internal/domain/student"
	"github.com/Strob0t/CourseForge/internal/middleware"
	"github.com/Strob0t/CourseForge/internal/service"
)

// runAdmin dispatches admin subcommands.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp(os.Stderr)
		return nil
	}

	switch args[0] {
	case "import":
		return runAdminImport(args[1:])
	case "departments":
		return runAdminDepartments(args[1:])
	case "recommend":
		return runAdminRecommend(args[1:])
	case "generate":
		return runAdminGenerate(args[1:])
	case "migrate":
		return runAdminMigrate(args[1:])
	case "models":
		return runAdminModels(args[1:])
	default:
		printAdminHelp(os.Stderr)
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp(w io.Writer) {
	fmt.Fprintf(w, `Usage: courseforge admin <command> [options]

Commands:
  import        Upsert a Workday courses.json export into PostgreSQL
  departments   List catalog departments
  recommend     Show the courses an advisor would recommend for a department
  generate      Run one schedule generation and print the result
  migrate       Apply, roll back or show database migrations
  models        List LiteLLM models and their health
  help          Show this help message

Output is a table on a terminal and JSON otherwise.

Examples:
  courseforge admin import --file courses.json
  courseforge admin import --file courses.json --refresh-url http://localhost:8080
  courseforge admin departments
  courseforge admin recommend --department "Computer Science Department" --completed "CS 1101,CS 2102"
  courseforge admin generate --completed "CS 1101" --interests "AI,soccer" --goals "ML engineer"
  courseforge admin migrate status
  courseforge admin migrate down --steps 1
`)
}

func loadAdminConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// interactive reports whether stdout is a terminal.
func interactive() bool {
	return term.IsTerminal(int(os.Stdout.Fd())) //nolint:gosec // fd fits in int
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runAdminImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	file := fs.String("file", "", "Workday Report_Entry JSON export (required)")
	refreshURL := fs.String("refresh-url", "", "server base URL to notify so it drops cached catalog entries")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("--file is required")
	}

	courses, err := catalogfile.ParseFile(*file)
	if err != nil {
		return err
	}

	cfg, err := loadAdminConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	n, err := postgres.NewCatalogStore(pool).UpsertCourses(ctx, courses)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Imported %d courses from %s\n", n, *file)

	if *refreshURL == "" {
		return nil
	}
	return notifyCatalogRefresh(ctx, *refreshURL, cfg.Catalog.RefreshSecret, courses)
}

// notifyCatalogRefresh posts the imported departments to the signed refresh
// endpoint of a running server.
func notifyCatalogRefresh(ctx context.Context, baseURL, secret string, courses []course.Course) error {
	seen := make(map[string]struct{})
	depts := make([]string, 0)
	for i := range courses {
		d := courses[i].Department
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		depts = append(depts, d)
	}
	body, err := json.Marshal(map[string][]string{"departments": depts})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(baseURL, "/")+"/api/v1/catalog/refresh", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CourseForge-Signature", "sha256="+hex.EncodeToString(middleware.Sign(body, secret)))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("catalog refresh: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("catalog refresh: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	fmt.Fprintf(os.Stderr, "Server cache refreshed for %d departments\n", len(depts))
	return nil
}

func runAdminDepartments(args []string) error {
	fs := flag.NewFlagSet("departments", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadAdminConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	cat, cleanup, err := openCatalog(ctx, cfg, nil, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	depts, err := cat.ListDepartments(ctx)
	if err != nil {
		return fmt.Errorf("list departments: %w", err)
	}
	if !interactive() {
		return printJSON(depts)
	}
	if len(depts) == 0 {
		fmt.Println("No departments found.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tCOURSES")
	for _, d := range depts {
		courses, err := cat.CoursesByDepartment(ctx, d.Name)
		if err != nil {
			return fmt.Errorf("courses for %s: %w", d.Name, err)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\n", d.ID, d.Name, len(courses))
	}
	return w.Flush()
}

func runAdminRecommend(args []string) error {
	fs := flag.NewFlagSet("recommend", flag.ContinueOnError)
	dept := fs.String("department", "", "department name (required)")
	completed := fs.String("completed", "", "comma-separated completed course titles")
	limit := fs.Int("limit", 0, "maximum courses; 0 uses schedule.top_n")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dept == "" {
		return fmt.Errorf("--department is required")
	}

	cfg, err := loadAdminConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	cat, cleanup, err := openCatalog(ctx, cfg, nil, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	registry, _, err := loadAdvisors(cfg.Orchestrator)
	if err != nil {
		return err
	}
	svc := service.NewScheduleService(nil, registry, cat, cfg.Schedule.TopN)
	sel, err := svc.Recommend(ctx, *dept, splitList(*completed), *limit)
	if err != nil {
		return err
	}
	if !interactive() {
		return printJSON(sel)
	}
	fmt.Println(sel.Render(*dept))
	return nil
}

func runAdminGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	completed := fs.String("completed", "", "comma-separated completed course titles")
	interests := fs.String("interests", "", "comma-separated interests and sports")
	goals := fs.String("goals", "", "future goals")
	depts := fs.String("departments", "", "comma-separated departments; empty means all")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadAdminConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	cat, cleanup, err := openCatalog(ctx, cfg, nil, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	registry, routerID, err := loadAdvisors(cfg.Orchestrator)
	if err != nil {
		return err
	}
	exec := service.NewTurnExecutor(newGenerator(cfg), cat, nil, cfg.Orchestrator, cfg.Schedule)
	orch := service.NewOrchestrator(registry, exec, routerID, cfg.Orchestrator)
	svc := service.NewScheduleService(orch, registry, cat, cfg.Schedule.TopN)

	out, err := svc.Generate(ctx, student.Request{
		CompletedCourses: splitList(*completed),
		Interests:        splitList(*interests),
		FutureGoals:      *goals,
		DepartmentNames:  splitList(*depts),
	})
	if !interactive() {
		if jerr := printJSON(out); jerr != nil {
			return jerr
		}
	}
	if out.Status != orchestration.StatusTerminated {
		return fmt.Errorf("schedule generation failed (%s): %w", out.ErrorKind, err)
	}
	if interactive() {
		fmt.Println(strings.Join(out.ScheduleLines, "\n"))
		fmt.Fprintf(os.Stderr, "\nrun %s: %d turns, %d input / %d output tokens\n",
			out.RunID, out.TurnsTaken, out.Usage.InputTokens, out.Usage.OutputTokens)
	}
	return nil
}

func runAdminMigrate(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("migrate requires one of: up, down, status")
	}
	fs := flag.NewFlagSet("migrate "+args[0], flag.ContinueOnError)
	steps := fs.Int("steps", 1, "migrations to roll back (down only)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := loadAdminConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	dsn := cfg.Postgres.DSN

	switch args[0] {
	case "up":
		if err := postgres.RunMigrations(ctx, dsn); err != nil {
			return err
		}
	case "down":
		if err := postgres.RollbackMigrations(ctx, dsn, *steps); err != nil {
			return err
		}
	case "status":
	default:
		return fmt.Errorf("unknown migrate command: %s", args[0])
	}

	v, err := postgres.MigrationVersion(ctx, dsn)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Schema version: %d\n", v)
	return nil
}

func runAdminModels(args []string) error {
	fs := flag.NewFlagSet("models", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadAdminConfig()
	if err != nil {
		return err
	}
	models, err := litellm.NewClient(cfg.LiteLLM.URL, cfg.LiteLLM.MasterKey).DiscoverModels(context.Background())
	if err != nil {
		return fmt.Errorf("discover models: %w", err)
	}
	if !interactive() {
		return printJSON(models)
	}
	if len(models) == 0 {
		fmt.Println("No models configured.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "MODEL\tPROVIDER\tMAX_TOKENS\tSTATUS")
	for _, m := range models {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", m.ModelName, m.Provider, m.MaxTokens, m.Status)
	}
	return w.Flush()
}
