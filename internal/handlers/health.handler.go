package handlers

import (
	"github.com/fasthttp/router"
	xhttp "github.com/nimasrn/cash-ledger/pkg/http"
	"github.com/nimasrn/cash-ledger/pkg/logger"
)

type HealthService interface {
	Get() error
}
type HealthHandler struct {
	svc HealthService
}

func RegisterHealthRoutes(e *router.Group, h *HealthHandler) {
	e.GET("/health", h.GetHealth)
}

func NewHealthHandler(svc HealthService) *HealthHandler {
	return &HealthHandler{
		svc: svc,
	}
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	if err := h.svc.Get(); err != nil {
		logger.Warn("health check failed", "error", err)
		writeError(ctx, xhttp.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeSuccess(ctx, xhttp.StatusOK, "ok", nil)
}
