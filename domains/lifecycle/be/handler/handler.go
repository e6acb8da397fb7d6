package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	deployservice "github.com/nimbusworks/tenant-orchestrator/domains/deployments/be/service"
	"github.com/nimbusworks/tenant-orchestrator/domains/lifecycle/be/service"
	tenantsservice "github.com/nimbusworks/tenant-orchestrator/domains/tenants/be/service"
	"github.com/nimbusworks/tenant-orchestrator/platform/go/logging"
)

const (
	problemTypeValidation = "https://nimbusworks.io/problems/validation-error"
	problemTypeNotFound   = "https://nimbusworks.io/problems/not-found"
	problemTypeConflict   = "https://nimbusworks.io/problems/conflict"
	problemTypeInternal   = "https://nimbusworks.io/problems/internal-error"
)

// Problem is an RFC 7807 response body.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// OnboardRequest is the signup payload.
type OnboardRequest struct {
	CompanyName string `json:"companyName"`
	AdminEmail  string `json:"adminEmail"`
	Plan        string `json:"plan"`
}

// StageStatus reports one pipeline stage in a job response.
type StageStatus struct {
	Stage   string `json:"stage"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JobResponse is the terminal outcome of one pipeline invocation.
type JobResponse struct {
	JobID          string            `json:"jobId"`
	TenantID       string            `json:"tenantId"`
	Status         string            `json:"status"`
	Stages         []StageStatus     `json:"stages,omitempty"`
	Deployments    map[string]string `json:"deployments,omitempty"`
	FailedServices []string          `json:"failedServices,omitempty"`
}

// Handler exposes the lifecycle pipelines over HTTP. Pipelines run
// synchronously: the response carries the job's terminal status.
type Handler struct {
	orch   *service.Orchestrator
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(orch *service.Orchestrator, logger *zap.Logger) *Handler {
	if orch == nil {
		panic("orchestrator is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{orch: orch, logger: logger}
}

// Routes mounts the lifecycle endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/tenants/onboard", h.onboard)
	r.Post("/tenants/{tenantId}/deprovision", h.deprovision)
	r.Post("/tenants/{tenantId}/rollback", h.rollback)
	r.Post("/tenants/{tenantId}/services/{service}/redeploy", h.redeploy)
}

func (h *Handler) onboard(w http.ResponseWriter, r *http.Request) {
	var req OnboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, Problem{Type: problemTypeValidation, Title: "Invalid request body", Status: http.StatusBadRequest, Detail: err.Error()})
		return
	}

	result, err := h.orch.Onboard(r.Context(), service.OnboardParams{
		CompanyName: req.CompanyName,
		AdminEmail:  req.AdminEmail,
		Plan:        tenantsservice.Plan(req.Plan),
	})
	if err != nil {
		var stageErr *service.StageError
		switch {
		case errors.Is(err, service.ErrValidation):
			writeProblem(w, Problem{Type: problemTypeValidation, Title: "Validation error", Status: http.StatusBadRequest, Detail: err.Error()})
		case errors.Is(err, service.ErrConflict):
			writeProblem(w, Problem{Type: problemTypeConflict, Title: "Tenant already exists", Status: http.StatusConflict, Detail: err.Error()})
		case errors.As(err, &stageErr):
			// Terminal failed status still carries the job detail.
			writeJSON(w, http.StatusUnprocessableEntity, toJobResponse(result.TenantID, result.JobID.String(), string(result.Status), result.Stages, result.Deployments, nil))
		default:
			logging.FromRequest(r, h.logger).Error("onboard", zap.Error(err))
			writeProblem(w, Problem{Type: problemTypeInternal, Title: "Internal error", Status: http.StatusInternalServerError})
		}
		return
	}

	var failed []string
	if result.Partial != nil {
		failed = result.Partial.Failed
	}
	writeJSON(w, http.StatusCreated, toJobResponse(result.TenantID, result.JobID.String(), string(result.Status), result.Stages, result.Deployments, failed))
}

func (h *Handler) deprovision(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tenantId")

	result, err := h.orch.Deprovision(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			writeProblem(w, Problem{Type: problemTypeNotFound, Title: "Tenant not found", Status: http.StatusNotFound, Detail: id})
		case errors.Is(err, service.ErrInvalidState):
			writeProblem(w, Problem{Type: problemTypeConflict, Title: "Invalid tenant state", Status: http.StatusConflict, Detail: err.Error()})
		default:
			// Partial deprovisioning: surface the terminal failed job.
			writeJSON(w, http.StatusUnprocessableEntity, toJobResponse(result.TenantID, result.JobID.String(), string(result.Status), result.Stages, nil, nil))
		}
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(result.TenantID, result.JobID.String(), string(result.Status), result.Stages, nil, nil))
}

func (h *Handler) rollback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tenantId")

	if err := h.orch.Rollback(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			writeProblem(w, Problem{Type: problemTypeNotFound, Title: "Tenant not found", Status: http.StatusNotFound, Detail: id})
		case errors.Is(err, service.ErrInvalidState):
			writeProblem(w, Problem{Type: problemTypeConflict, Title: "Invalid tenant state", Status: http.StatusConflict, Detail: err.Error()})
		default:
			logging.FromRequest(r, h.logger).Error("rollback", zap.String("tenant_id", id), zap.Error(err))
			writeProblem(w, Problem{Type: problemTypeInternal, Title: "Rollback failed", Status: http.StatusInternalServerError, Detail: err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"tenantId": id, "status": "deleted"})
}

func (h *Handler) redeploy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tenantId")
	svcName := chi.URLParam(r, "service")

	res, err := h.orch.RedeployService(r.Context(), id, svcName)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			writeProblem(w, Problem{Type: problemTypeNotFound, Title: "Tenant not found", Status: http.StatusNotFound, Detail: id})
		case errors.Is(err, service.ErrInvalidState):
			writeProblem(w, Problem{Type: problemTypeConflict, Title: "Invalid tenant state", Status: http.StatusConflict, Detail: err.Error()})
		case errors.Is(err, deployservice.ErrUnknownService):
			writeProblem(w, Problem{Type: problemTypeNotFound, Title: "Unknown service", Status: http.StatusNotFound, Detail: svcName})
		default:
			logging.FromRequest(r, h.logger).Error("redeploy", zap.String("tenant_id", id), zap.String("service", svcName), zap.Error(err))
			writeProblem(w, Problem{Type: problemTypeInternal, Title: "Internal error", Status: http.StatusInternalServerError})
		}
		return
	}

	body := map[string]string{"tenantId": id, "service": res.Service, "status": string(res.Status)}
	if res.Err != nil {
		body["error"] = res.Err.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func toJobResponse(tenantID, jobID, status string, stages []service.StageResult, deployments map[string]deployservice.Result, failed []string) JobResponse {
	resp := JobResponse{JobID: jobID, TenantID: tenantID, Status: status, FailedServices: failed}
	for _, s := range stages {
		st := StageStatus{Stage: s.Stage, Skipped: s.Skipped}
		if s.Err != nil {
			st.Error = s.Err.Error()
		}
		resp.Stages = append(resp.Stages, st)
	}
	if len(deployments) > 0 {
		resp.Deployments = make(map[string]string, len(deployments))
		for name, res := range deployments {
			resp.Deployments[name] = string(res.Status)
		}
	}
	return resp
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
