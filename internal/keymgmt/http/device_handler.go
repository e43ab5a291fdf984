package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	validation "github.com/jellydator/validation"

	"github.com/allisson/dormkeys/internal/httputil"
	"github.com/allisson/dormkeys/internal/keymgmt/http/dto"
	keyUseCase "github.com/allisson/dormkeys/internal/keymgmt/usecase"
	customValidation "github.com/allisson/dormkeys/internal/validation"
)

// DeviceHandler handles HTTP requests for hardware bindings.
type DeviceHandler struct {
	deviceUseCase keyUseCase.DeviceUseCase
	logger        *slog.Logger
}

// NewDeviceHandler creates a new device handler.
func NewDeviceHandler(deviceUseCase keyUseCase.DeviceUseCase, logger *slog.Logger) *DeviceHandler {
	return &DeviceHandler{
		deviceUseCase: deviceUseCase,
		logger:        logger,
	}
}

// RegisterHandler binds the calling device or reinforces an existing binding.
// POST /v1/devices - Returns 201 Created for a new binding, 200 OK otherwise.
func (h *DeviceHandler) RegisterHandler(c *gin.Context) {
	userID, ok := requireUser(c, h.logger)
	if !ok {
		return
	}

	req, ok := h.bindDevice(c)
	if !ok {
		return
	}

	out, err := h.deviceUseCase.Register(
		c.Request.Context(),
		userID,
		req.HardwareInfo.ToDomain(c.ClientIP()),
		httputil.RequestInfo(c),
	)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	status := http.StatusOK
	if out.IsNewBinding {
		status = http.StatusCreated
	}
	c.JSON(status, dto.MapRegisterDeviceResponse(out))
}

// VerifyHandler checks the calling device against its binding.
// POST /v1/devices/verify - Returns 200 OK, or 403 with the rejection reason.
func (h *DeviceHandler) VerifyHandler(c *gin.Context) {
	userID, ok := requireUser(c, h.logger)
	if !ok {
		return
	}

	req, ok := h.bindDevice(c)
	if !ok {
		return
	}

	err := h.deviceUseCase.Verify(
		c.Request.Context(),
		userID,
		req.HardwareInfo.ToDomain(c.ClientIP()),
		httputil.RequestInfo(c),
	)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListHandler returns the caller's trusted devices.
// GET /v1/devices - Returns 200 OK, most recently seen first.
func (h *DeviceHandler) ListHandler(c *gin.Context) {
	userID, ok := requireUser(c, h.logger)
	if !ok {
		return
	}

	bindings, err := h.deviceUseCase.ListTrusted(c.Request.Context(), userID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapListDevicesResponse(bindings))
}

// RevokeHandler disables a binding.
// DELETE /v1/devices/:fingerprint - Returns 204 No Content, or 404 for an unknown device.
func (h *DeviceHandler) RevokeHandler(c *gin.Context) {
	userID, ok := requireUser(c, h.logger)
	if !ok {
		return
	}

	fingerprint := c.Param("fingerprint")
	if err := validation.Validate(fingerprint, validation.Required, customValidation.Fingerprint); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	if err := h.deviceUseCase.Revoke(c.Request.Context(), userID, fingerprint, httputil.RequestInfo(c)); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *DeviceHandler) bindDevice(c *gin.Context) (*dto.DeviceRequest, bool) {
	var req dto.DeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return nil, false
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return nil, false
	}
	return &req, true
}
