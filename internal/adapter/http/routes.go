package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/CourseForge/internal/middleware"
	"github.com/Strob0t/CourseForge/internal/port/cache"
)

// GenerateCost is the rate limiter cost per schedule generation; a run makes
// several generator calls, catalog reads make none.
const GenerateCost = 5

// headerSignature carries the catalog refresh HMAC.
const headerSignature = "X-CourseForge-Signature"

// RouteOptions configures the protective middleware on mutating routes. A nil
// Limiter or IdempotencyStore disables the respective middleware.
type RouteOptions struct {
	Limiter          *middleware.RateLimiter
	IdempotencyStore cache.Cache
	IdempotencyTTL   time.Duration
	RefreshSecret    string
}

// GenerateLimits returns the limiter chain a schedule generation pays under
// /api/v1, for generation routes mounted elsewhere.
func (o RouteOptions) GenerateLimits() []func(http.Handler) http.Handler {
	if o.Limiter == nil {
		return nil
	}
	return []func(http.Handler) http.Handler{o.Limiter.Handler, o.Limiter.Weighted(GenerateCost)}
}

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, opts RouteOptions) {
	r.Route("/api/v1", func(r chi.Router) {
		if opts.Limiter != nil {
			r.Use(opts.Limiter.Handler)
		}

		r.Get("/version", h.VersionInfo)

		// Catalog
		r.Get("/departments", h.ListDepartments)
		r.Get("/departments/{name}/courses", h.DepartmentCourses)
		r.Get("/departments/{name}/recommendations", h.Recommend)

		r.With(middleware.WebhookHMAC(opts.RefreshSecret, headerSignature)).
			Post("/catalog/refresh", h.RefreshCatalog)

		// Advisors
		r.Get("/advisors", h.ListAdvisors)

		// Schedules
		r.Group(func(r chi.Router) {
			if opts.Limiter != nil {
				r.Use(opts.Limiter.Weighted(GenerateCost))
			}
			if opts.IdempotencyStore != nil {
				r.Use(middleware.Idempotency(opts.IdempotencyStore, opts.IdempotencyTTL))
			}
			r.Post("/schedules/generate", h.GenerateSchedule)
			r.Post("/schedules/async", h.SubmitSchedule)
		})
	})
}
