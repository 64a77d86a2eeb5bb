package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ukydev/fleet-maintenance/internal/middleware"
)

// Permissions checked per route when authentication is enabled.
const (
	PermViewReports   = "view_reports"
	PermCreateExpense = "create_expense"
	PermUpdateExpense = "update_expense"
	PermDeleteExpense = "delete_expense"
	PermCreateRepair  = "create_repair"
	PermUpdateRepair  = "update_repair"
	PermDeleteRepair  = "delete_repair"
	PermAddRemark     = "add_remark"
)

// Routes groups the handlers served by the API.
type Routes struct {
	Expenses          *ExpenseHandler
	ExpenseRemarks    *RemarkHandler
	Attachments       *AttachmentHandler
	Reports           *ReportHandler
	ToolRepairs       *RepairHandler
	ToolRepairRemarks *RemarkHandler
	TyreRepairs       *RepairHandler
	TyreRepairRemarks *RemarkHandler
	Health            *HealthHandler

	// Auth is nil when authentication is disabled.
	Auth              *middleware.AuthMiddleware
	RateLimit         *middleware.RateLimitMiddleware
	RateLimitRequests int
	RateLimitWindow   int
	RequestTimeout    time.Duration
}

// NewRouter builds the chi router for rt.
func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.Recoverer)
	if rt.RequestTimeout > 0 {
		r.Use(chimw.Timeout(rt.RequestTimeout))
	}

	if rt.Health != nil {
		r.Get("/health", rt.Health.Health)
	}

	r.Route("/api", func(r chi.Router) {
		if rt.Auth != nil {
			r.Use(rt.Auth.Authenticate)
		}
		if rt.RateLimit != nil {
			r.Use(rt.RateLimit.RateLimit(rt.RateLimitRequests, rt.RateLimitWindow))
		}
		can := func(permission string) func(http.Handler) http.Handler {
			if rt.Auth == nil {
				return func(next http.Handler) http.Handler { return next }
			}
			return rt.Auth.RequirePermission(permission)
		}

		r.Route("/expenses", func(r chi.Router) {
			if h := rt.Expenses; h != nil {
				r.With(can(PermViewReports)).Get("/", h.GetExpenses)
				r.With(can(PermViewReports)).Get("/one", h.GetExpense)
				r.With(can(PermCreateExpense)).Post("/", h.CreateExpense)
				r.With(can(PermUpdateExpense)).Put("/", h.UpdateExpense)
				r.With(can(PermDeleteExpense)).Post("/delete", h.DeleteExpense)
				r.With(can(PermDeleteExpense)).Post("/restore", h.RestoreExpense)
			}
			if h := rt.Attachments; h != nil {
				r.With(can(PermUpdateExpense)).Post("/attachments", h.UploadAttachments)
				r.With(can(PermUpdateExpense)).Post("/attachments/delete", h.DeleteAttachment)
			}
			if h := rt.Reports; h != nil {
				r.With(can(PermViewReports)).Get("/report", h.GetReport)
				r.With(can(PermViewReports)).Get("/export", h.ExportReport)
			}
			mountRemarks(r, rt.ExpenseRemarks, can)
		})

		mountRepairs(r, "/toolrepairs", rt.ToolRepairs, rt.ToolRepairRemarks, can)
		mountRepairs(r, "/tyrerepairs", rt.TyreRepairs, rt.TyreRepairRemarks, can)
	})

	return r
}

func mountRepairs(r chi.Router, pattern string, h *RepairHandler, remarks *RemarkHandler, can func(string) func(http.Handler) http.Handler) {
	if h == nil {
		return
	}
	r.Route(pattern, func(r chi.Router) {
		r.With(can(PermViewReports)).Get("/", h.GetRepairs)
		r.With(can(PermViewReports)).Get("/one", h.GetRepair)
		r.With(can(PermCreateRepair)).Post("/", h.CreateRepair)
		r.With(can(PermUpdateRepair)).Put("/", h.UpdateRepair)
		r.With(can(PermDeleteRepair)).Post("/delete", h.DeleteRepair)
		mountRemarks(r, remarks, can)
	})
}

func mountRemarks(r chi.Router, h *RemarkHandler, can func(string) func(http.Handler) http.Handler) {
	if h == nil {
		return
	}
	r.With(can(PermViewReports)).Get("/remarks", h.GetRemarks)
	r.With(can(PermAddRemark)).Post("/remarks", h.AddRemark)
	r.With(can(PermAddRemark)).Put("/remarks", h.EditRemark)
	r.With(can(PermAddRemark)).Post("/remarks/delete", h.DeleteRemark)
}
