package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/allisson/dormkeys/internal/httputil"
	"github.com/allisson/dormkeys/internal/keymgmt/http/dto"
	keyUseCase "github.com/allisson/dormkeys/internal/keymgmt/usecase"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 1000
)

// AuditLogHandler exposes the caller's own audit trail.
type AuditLogHandler struct {
	auditLogUseCase keyUseCase.AuditLogUseCase
	logger          *slog.Logger
}

// NewAuditLogHandler creates a new audit log handler.
func NewAuditLogHandler(auditLogUseCase keyUseCase.AuditLogUseCase, logger *slog.Logger) *AuditLogHandler {
	return &AuditLogHandler{
		auditLogUseCase: auditLogUseCase,
		logger:          logger,
	}
}

// ListHandler returns the newest audit rows of the caller.
// GET /v1/audit-logs?limit=50 - limit must be within [1, 1000].
func (h *AuditLogHandler) ListHandler(c *gin.Context) {
	userID, ok := requireUser(c, h.logger)
	if !ok {
		return
	}

	limit, err := httputil.ParseLimit(c, defaultAuditLimit, maxAuditLimit)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	logs, err := h.auditLogUseCase.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapListAuditLogsResponse(logs))
}
