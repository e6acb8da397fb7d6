package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nimbusworks/tenant-orchestrator/domains/tenants/be/service"
	"github.com/nimbusworks/tenant-orchestrator/platform/go/logging"
)

const (
	problemTypeValidation = "https://nimbusworks.io/problems/validation-error"
	problemTypeNotFound   = "https://nimbusworks.io/problems/not-found"
	problemTypeInternal   = "https://nimbusworks.io/problems/internal-error"
)

// Problem is an RFC 7807 response body.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Tenant is the wire representation of a registry record.
type Tenant struct {
	TenantID      string     `json:"tenantId"`
	CompanyName   string     `json:"companyName"`
	AdminEmail    string     `json:"adminEmail"`
	Plan          string     `json:"plan"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	FailedStage   *string    `json:"failedStage,omitempty"`
	LastError     *string    `json:"lastError,omitempty"`
	IdentityRef   *string    `json:"identityRef,omitempty"`
	ProvisionedAt *time.Time `json:"lastProvisionedAt,omitempty"`
}

// Handler serves the read side of the tenant registry.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the registry endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/tenants", h.list)
	r.Get("/tenants/{tenantId}", h.get)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	opts := service.ListOptions{}
	if v := r.URL.Query().Get("page"); v != "" {
		opts.Page, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("pageSize"); v != "" {
		opts.PageSize, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status := service.StatusFromString(v)
		if string(status) != v {
			writeProblem(w, Problem{Type: problemTypeValidation, Title: "Invalid status filter", Status: http.StatusBadRequest, Detail: "unknown status " + v})
			return
		}
		opts.Status = &status
	}

	result, err := h.svc.List(r.Context(), opts)
	if err != nil {
		logging.FromRequest(r, h.logger).Error("list tenants", zap.Error(err))
		writeProblem(w, Problem{Type: problemTypeInternal, Title: "Internal error", Status: http.StatusInternalServerError})
		return
	}

	items := make([]Tenant, 0, len(result.Tenants))
	for _, t := range result.Tenants {
		items = append(items, toAPITenant(t))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"page":       result.Page,
		"pageSize":   result.PageSize,
		"totalItems": result.TotalItems,
		"totalPages": result.TotalPages,
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tenantId")
	t, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeProblem(w, Problem{Type: problemTypeNotFound, Title: "Tenant not found", Status: http.StatusNotFound, Detail: id})
			return
		}
		logging.FromRequest(r, h.logger).Error("get tenant", zap.String("tenant_id", id), zap.Error(err))
		writeProblem(w, Problem{Type: problemTypeInternal, Title: "Internal error", Status: http.StatusInternalServerError})
		return
	}
	writeJSON(w, http.StatusOK, toAPITenant(t))
}

func toAPITenant(t service.Tenant) Tenant {
	return Tenant{
		TenantID:      t.ID,
		CompanyName:   t.CompanyName,
		AdminEmail:    t.AdminEmail,
		Plan:          string(t.Plan),
		Status:        string(t.Status),
		CreatedAt:     t.CreatedAt,
		FailedStage:   t.Provisioning.FailedStage,
		LastError:     t.Provisioning.LastError,
		IdentityRef:   t.Provisioning.IdentityRef,
		ProvisionedAt: t.Provisioning.LastProvisionedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
