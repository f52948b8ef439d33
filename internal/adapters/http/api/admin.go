package api

import (
	"context"
	"net/http"

	service "github.com/okian/ladder/internal/app"
)

// AdminHandler exposes the recovery operations to operators.
type AdminHandler struct {
	deps Recovery
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps Recovery) *AdminHandler {
	return &AdminHandler{deps: deps}
}

type recoveryStatusResponse struct {
	NeedsRecovery bool `json:"needs_recovery"`
}

type recoveryResponse struct {
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Message   string `json:"message,omitempty"`
}

// HandleNeedsRecovery handles GET /api/admin/recovery.
func (h *AdminHandler) HandleNeedsRecovery(w http.ResponseWriter, r *http.Request) {
	needed, err := h.deps.NeedsRecovery(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recoveryStatusResponse{NeedsRecovery: needed})
}

// HandleRebuild handles POST /api/admin/rebuild. The run outlives the request
// so a disconnecting client cannot abort a bulk load halfway; the service
// still bounds it with the lock TTL.
func (h *AdminHandler) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.Rebuild(context.WithoutCancel(r.Context()))
	writeRecovery(w, res, err)
}

// HandleSync handles POST /api/admin/sync. Like rebuild it is detached from
// the request's cancellation.
func (h *AdminHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.Sync(context.WithoutCancel(r.Context()))
	writeRecovery(w, res, err)
}

// HandleUnlock handles DELETE /api/admin/lock.
func (h *AdminHandler) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.ForceUnlock(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeRecovery(w http.ResponseWriter, res service.RecoveryResult, err error) {
	switch {
	case err != nil:
		writeServiceError(w, err)
	case res.Contended:
		writeJSON(w, http.StatusConflict, recoveryResponse{Message: "recovery lock held elsewhere"})
	default:
		writeJSON(w, http.StatusOK, recoveryResponse{Processed: res.Processed, Failed: res.Failed})
	}
}
