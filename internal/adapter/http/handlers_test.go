package http_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	cfhttp "github.com/Strob0t/CourseForge/internal/adapter/http"
	"github.com/Strob0t/CourseForge/internal/adapter/catalogfile"
	"github.com/Strob0t/CourseForge/internal/adapter/litellm"
	"github.com/Strob0t/CourseForge/internal/adapter/ristretto"
	"github.com/Strob0t/CourseForge/internal/config"
	"github.com/Strob0t/CourseForge/internal/domain/advisor"
	"github.com/Strob0t/CourseForge/internal/domain/conversation"
	"github.com/Strob0t/CourseForge/internal/domain/course"
	"github.com/Strob0t/CourseForge/internal/domain/orchestration"
	"github.com/Strob0t/CourseForge/internal/middleware"
	"github.com/Strob0t/CourseForge/internal/port/generator"
	"github.com/Strob0t/CourseForge/internal/port/messagequeue"
	"github.com/Strob0t/CourseForge/internal/service"
)

const deptCS = "Computer Science Department"

func testCatalog() *catalogfile.Catalog {
	return catalogfile.New([]course.Course{
		{Title: "CS 1101", Section: "CS 1101-A01", Department: deptCS},
		{Title: "CS 2102", Section: "CS 2102-A01", Department: deptCS},
		{Title: "CS 3013", Section: "CS 3013-A01", Department: deptCS},
		{Title: "MA 1021", Section: "MA 1021-A01", Department: "Mathematical Sciences Department"},
	})
}

func reply(content string, toolID string) generator.Response {
	msg := conversation.Message{Role: conversation.RoleAssistant, Content: content}
	if toolID != "" {
		msg.ToolCall = &conversation.ToolInvocation{ToolID: toolID, Arguments: json.RawMessage(`{}`)}
	}
	return generator.Response{Message: msg, Usage: orchestration.Usage{InputTokens: 10, OutputTokens: 2}}
}

func hasTool(tools []generator.ToolSpec, name string) bool {
	return slices.ContainsFunc(tools, func(t generator.ToolSpec) bool { return t.Name == name })
}

// csRoute answers like a cooperative model over the built-in advisors: the
// router sends the student to the CS advisor, which fetches once and
// transfers back, and the router lists what was recommended.
func csRoute(_ context.Context, _ string, msgs []conversation.Message, tools []generator.ToolSpec) (generator.Response, error) {
	var recommended []string
	for _, m := range msgs {
		if m.Role == conversation.RoleTool && strings.HasPrefix(m.Content, "Recommended ") {
			rows := strings.Split(m.Content, "\n")
			recommended = append(recommended, rows[1:]...)
		}
	}
	if hasTool(tools, "fetch_cs_courses") {
		if len(recommended) > 0 {
			return reply("", orchestration.HandoffToolID("router")), nil
		}
		return reply("", "fetch_cs_courses"), nil
	}
	if len(recommended) > 0 {
		return reply("Final schedule:\n"+strings.Join(recommended, "\n"), ""), nil
	}
	return reply("", orchestration.HandoffToolID("cs_advisor")), nil
}

type testEnv struct {
	router http.Handler
	calls  *atomic.Int64
}

func newTestEnv(t *testing.T, gen generator.Func, maxTurns int, q messagequeue.Queue) testEnv {
	t.Helper()
	reg, routerID, err := advisor.LoadDefault()
	if err != nil {
		t.Fatalf("load advisors: %v", err)
	}
	cat := testCatalog()
	calls := &atomic.Int64{}
	counted := generator.Func(func(ctx context.Context, instr string, msgs []conversation.Message, tools []generator.ToolSpec) (generator.Response, error) {
		calls.Add(1)
		return gen(ctx, instr, msgs, tools)
	})

	orchCfg := config.Orchestrator{MaxTurns: maxTurns, TurnTimeout: time.Second, RunTimeout: 5 * time.Second}
	exec := service.NewTurnExecutor(counted, cat, nil, orchCfg, config.Schedule{TopN: 3, CourseCount: 5})
	orch := service.NewOrchestrator(reg, exec, routerID, orchCfg)
	svc := service.NewScheduleService(orch, reg, cat, 3)
	if q != nil {
		svc.SetQueue(q)
		orch.SetQueue(q)
	}

	store, err := ristretto.New(1 << 20)
	if err != nil {
		t.Fatalf("ristretto: %v", err)
	}
	t.Cleanup(store.Close)

	h := &cfhttp.Handlers{Schedules: svc, Queue: q, CatalogSource: "file", Version: "test"}
	r := chi.NewRouter()
	r.Get("/health", h.Health)
	cfhttp.MountRoutes(r, h, cfhttp.RouteOptions{
		Limiter:          middleware.NewRateLimiter(100, 100),
		IdempotencyStore: store,
		IdempotencyTTL:   time.Minute,
	})
	return testEnv{router: r, calls: calls}
}

func do(t *testing.T, h http.Handler, method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

type scheduleBody struct {
	Status        string   `json:"status"`
	ScheduleLines []string `json:"schedule_lines"`
	RunID         string   `json:"run_id"`
	Error         string   `json:"error"`
	ErrorKind     string   `json:"error_kind"`
}

func TestGenerateSchedule(t *testing.T) {
	env := newTestEnv(t, csRoute, 10, nil)

	w := do(t, env.router, http.MethodPost, "/api/v1/schedules/generate",
		`{"completedCourses":["CS 1101"],"interests":["operating systems"],"futureGoals":"systems engineer","departmentNames":["Computer Science Department"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	got := decode[scheduleBody](t, w)
	want := []string{"Final schedule:", "CS 2102 (CS 2102-A01)", "CS 3013 (CS 3013-A01)"}
	if got.Status != string(orchestration.StatusTerminated) || !slices.Equal(got.ScheduleLines, want) {
		t.Fatalf("unexpected schedule %+v", got)
	}
	if got.RunID == "" {
		t.Error("expected run id")
	}
	for _, line := range got.ScheduleLines {
		if strings.HasPrefix(line, "CS 1101") {
			t.Fatal("completed course recommended")
		}
	}
}

func TestGenerateSchedule_TurnLimit(t *testing.T) {
	bounce := generator.Func(func(_ context.Context, _ string, _ []conversation.Message, tools []generator.ToolSpec) (generator.Response, error) {
		if hasTool(tools, "fetch_cs_courses") {
			return reply("", orchestration.HandoffToolID("router")), nil
		}
		return reply("", orchestration.HandoffToolID("cs_advisor")), nil
	})
	env := newTestEnv(t, bounce, 10, nil)

	w := do(t, env.router, http.MethodPost, "/api/v1/schedules/generate", `{"interests":["robots"]}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", w.Code, w.Body.String())
	}
	got := decode[scheduleBody](t, w)
	if got.Error != "schedule generation failed" || got.ErrorKind != string(orchestration.KindTurnLimitExceeded) {
		t.Fatalf("unexpected failure body %+v", got)
	}
	if len(got.ScheduleLines) != 0 {
		t.Fatal("failure must not carry a partial schedule")
	}
	if n := env.calls.Load(); n != 10 {
		t.Errorf("expected exactly 10 generator calls, got %d", n)
	}
}

func TestGenerateSchedule_CollaboratorDown(t *testing.T) {
	down := generator.Func(func(context.Context, string, []conversation.Message, []generator.ToolSpec) (generator.Response, error) {
		return generator.Response{}, errors.New("connection refused")
	})
	env := newTestEnv(t, down, 10, nil)

	w := do(t, env.router, http.MethodPost, "/api/v1/schedules/generate", `{"interests":["art"]}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	if got := decode[scheduleBody](t, w); got.ErrorKind != string(orchestration.KindCollaborator) {
		t.Fatalf("expected collaborator kind, got %+v", got)
	}
}

func TestGenerateSchedule_BadRequests(t *testing.T) {
	env := newTestEnv(t, csRoute, 10, nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"not json", `{"completedCourses":`, http.StatusBadRequest},
		{"blank completed title", `{"completedCourses":["  "]}`, http.StatusBadRequest},
		{"too large", `{"futureGoals":"` + strings.Repeat("x", 1<<20) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, env.router, http.MethodPost, "/api/v1/schedules/generate", tt.body)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
	if env.calls.Load() != 0 {
		t.Error("rejected requests reached the generator")
	}
}

func TestGenerateSchedule_IdempotentReplay(t *testing.T) {
	env := newTestEnv(t, csRoute, 10, nil)
	body := `{"completedCourses":["CS 1101"],"departmentNames":["Computer Science Department"]}`

	first := do(t, env.router, http.MethodPost, "/api/v1/schedules/generate", body, "Idempotency-Key", "plan-1")
	calls := env.calls.Load()
	second := do(t, env.router, http.MethodPost, "/api/v1/schedules/generate", body, "Idempotency-Key", "plan-1")

	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("unexpected status %d / %d", first.Code, second.Code)
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Error("second response not marked as replay")
	}
	if env.calls.Load() != calls {
		t.Error("replay ran the generator again")
	}
	if first.Body.String() != second.Body.String() {
		t.Error("replayed body differs")
	}
}

type stubQueue struct {
	connected bool
	published []string
}

func (q *stubQueue) Publish(_ context.Context, subject string, _ []byte) error {
	q.published = append(q.published, subject)
	return nil
}

func (q *stubQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}
func (q *stubQueue) Drain() error      { return nil }
func (q *stubQueue) Close() error      { return nil }
func (q *stubQueue) IsConnected() bool { return q.connected }

func TestSubmitSchedule(t *testing.T) {
	q := &stubQueue{connected: true}
	env := newTestEnv(t, csRoute, 10, q)

	w := do(t, env.router, http.MethodPost, "/api/v1/schedules/async", `{"interests":["AI"]}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	got := decode[map[string]string](t, w)
	if got["run_id"] == "" || got["status"] != "queued" {
		t.Fatalf("unexpected body %v", got)
	}
	if !slices.Equal(q.published, []string{messagequeue.SubjectScheduleRequest}) {
		t.Errorf("unexpected publishes %v", q.published)
	}
}

func TestSubmitSchedule_NoQueue(t *testing.T) {
	env := newTestEnv(t, csRoute, 10, nil)
	w := do(t, env.router, http.MethodPost, "/api/v1/schedules/async", `{"interests":["AI"]}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestDepartments(t *testing.T) {
	env := newTestEnv(t, csRoute, 10, nil)

	w := do(t, env.router, http.MethodGet, "/api/v1/departments", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	depts := decode[[]course.Department](t, w)
	if len(depts) != 2 || depts[0].Name != deptCS {
		t.Fatalf("unexpected departments %+v", depts)
	}

	w = do(t, env.router, http.MethodGet, "/api/v1/departments/Computer%20Science%20Department/courses", "")
	if courses := decode[[]course.Course](t, w); len(courses) != 3 {
		t.Fatalf("expected 3 CS courses, got %d", len(courses))
	}

	w = do(t, env.router, http.MethodGet, "/api/v1/departments/Underwater%20Basket%20Weaving/courses", "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("unknown department should list nothing, got %d %s", w.Code, w.Body.String())
	}
}

func TestRecommend(t *testing.T) {
	env := newTestEnv(t, csRoute, 10, nil)

	type recBody struct {
		Department   string          `json:"department"`
		Courses      []course.Course `json:"courses"`
		NoNewCourses bool            `json:"no_new_courses"`
	}

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantTitle []string
		wantNone  bool
	}{
		{"default top-n", "", http.StatusOK, []string{"CS 1101", "CS 2102", "CS 3013"}, false},
		{"excludes completed", "?completed=CS+1101", http.StatusOK, []string{"CS 2102", "CS 3013"}, false},
		{"limit", "?completed=CS+1101&limit=1", http.StatusOK, []string{"CS 2102"}, false},
		{"nothing left", "?completed=CS+1101&completed=CS+2102&completed=CS+3013", http.StatusOK, nil, true},
		{"bad limit", "?limit=-1", http.StatusBadRequest, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, env.router, http.MethodGet, "/api/v1/departments/Computer%20Science%20Department/recommendations"+tt.query, "")
			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			got := decode[recBody](t, w)
			var titles []string
			for _, c := range got.Courses {
				titles = append(titles, c.Title)
			}
			if !slices.Equal(titles, tt.wantTitle) || got.NoNewCourses != tt.wantNone {
				t.Fatalf("unexpected recommendation %+v", got)
			}
		})
	}
}

func TestListAdvisors(t *testing.T) {
	env := newTestEnv(t, csRoute, 10, nil)

	w := do(t, env.router, http.MethodGet, "/api/v1/advisors", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var advisors []struct {
		ID             string   `json:"id"`
		Tools          []string `json:"tools"`
		HandoffTargets []string `json:"handoff_targets"`
		Entry          bool     `json:"entry"`
	}
	if err := json.NewDecoder(w.Body).Decode(&advisors); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(advisors) < 2 || advisors[0].ID != "router" || !advisors[0].Entry {
		t.Fatalf("expected router first and marked as entry, got %+v", advisors)
	}
	for _, a := range advisors[1:] {
		if a.Entry {
			t.Errorf("%s marked as entry", a.ID)
		}
		if !slices.Equal(a.HandoffTargets, []string{"router"}) {
			t.Errorf("%s should only hand back to the router: %v", a.ID, a.HandoffTargets)
		}
	}
}

func TestHealth(t *testing.T) {
	litellmUp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"healthy_endpoints":[],"unhealthy_endpoints":[]}`))
	}))
	defer litellmUp.Close()

	tests := []struct {
		name       string
		handlers   cfhttp.Handlers
		wantStatus string
		wantNATS   string
	}{
		{"minimal", cfhttp.Handlers{CatalogSource: "file"}, "ok", "disabled"},
		{"all up", cfhttp.Handlers{LiteLLM: litellm.NewClient(litellmUp.URL, ""), Queue: &stubQueue{connected: true}}, "ok", "ok"},
		{"nats down", cfhttp.Handlers{Queue: &stubQueue{}}, "degraded", "disconnected"},
		{"litellm down", cfhttp.Handlers{LiteLLM: litellm.NewClient("http://127.0.0.1:1", "")}, "degraded", "disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := tt.handlers
			w := httptest.NewRecorder()
			h.Health(w, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", w.Code)
			}
			got := decode[map[string]string](t, w)
			if got["status"] != tt.wantStatus || got["nats"] != tt.wantNATS {
				t.Fatalf("unexpected health %v", got)
			}
		})
	}
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t, csRoute, 10, nil)
	w := do(t, env.router, http.MethodGet, "/api/v1/version", "")
	if got := decode[map[string]string](t, w); got["version"] != "test" {
		t.Fatalf("unexpected version %v", got)
	}
}

type recInvalidator struct {
	got []string
	err error
}

func (r *recInvalidator) Invalidate(_ context.Context, departments ...string) error {
	r.got = append(r.got, departments...)
	return r.err
}

func TestRefreshCatalog(t *testing.T) {
	const secret = "refresh-key"
	body := `{"departments":["Computer Science Department"]}`

	newRouter := func(inv *recInvalidator) http.Handler {
		r := chi.NewRouter()
		cfhttp.MountRoutes(r, &cfhttp.Handlers{CatalogCache: inv}, cfhttp.RouteOptions{RefreshSecret: secret})
		return r
	}
	sig := "sha256=" + hex.EncodeToString(middleware.Sign([]byte(body), secret))

	inv := &recInvalidator{}
	w := do(t, newRouter(inv), http.MethodPost, "/api/v1/catalog/refresh", body, "X-CourseForge-Signature", sig)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !slices.Equal(inv.got, []string{deptCS}) {
		t.Fatalf("unexpected invalidation %v", inv.got)
	}

	inv = &recInvalidator{}
	w = do(t, newRouter(inv), http.MethodPost, "/api/v1/catalog/refresh", body, "X-CourseForge-Signature", "sha256=00")
	if w.Code != http.StatusForbidden || len(inv.got) != 0 {
		t.Fatalf("unsigned refresh accepted: %d %v", w.Code, inv.got)
	}

	inv = &recInvalidator{err: errors.New("kv down")}
	w = do(t, newRouter(inv), http.MethodPost, "/api/v1/catalog/refresh", body, "X-CourseForge-Signature", sig)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestRouteOptions_GenerateLimits(t *testing.T) {
	if got := (cfhttp.RouteOptions{}).GenerateLimits(); got != nil {
		t.Fatalf("no limiter must yield no middleware, got %d", len(got))
	}

	// One generation charges the route cost plus the /api/v1 request token.
	opts := cfhttp.RouteOptions{Limiter: middleware.NewRateLimiter(0.001, cfhttp.GenerateCost+1)}
	r := chi.NewRouter()
	r.With(opts.GenerateLimits()...).Post("/a2a/tasks", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/a2a/tasks", nil))
		if w.Code != want {
			t.Fatalf("request %d: expected %d, got %d", i+1, want, w.Code)
		}
	}
}
