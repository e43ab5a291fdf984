// Package http provides HTTP handlers for master keys, device bindings and the
// audit trail. Every route expects the user id set by httputil.UserIdentityMiddleware.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	cryptoDomain "github.com/allisson/dormkeys/internal/crypto/domain"
	apperrors "github.com/allisson/dormkeys/internal/errors"
	"github.com/allisson/dormkeys/internal/httputil"
	keyDomain "github.com/allisson/dormkeys/internal/keymgmt/domain"
	"github.com/allisson/dormkeys/internal/keymgmt/http/dto"
	keyUseCase "github.com/allisson/dormkeys/internal/keymgmt/usecase"
	customValidation "github.com/allisson/dormkeys/internal/validation"
)

// KeyHandler handles HTTP requests for the master key lifecycle.
type KeyHandler struct {
	masterKeyUseCase keyUseCase.MasterKeyUseCase
	logger           *slog.Logger
}

// NewKeyHandler creates a new key handler.
func NewKeyHandler(masterKeyUseCase keyUseCase.MasterKeyUseCase, logger *slog.Logger) *KeyHandler {
	return &KeyHandler{
		masterKeyUseCase: masterKeyUseCase,
		logger:           logger,
	}
}

// GenerateHandler provisions the caller's first master key.
// POST /v1/keys - Returns 201 Created with the Base64 raw key, shown only once.
func (h *KeyHandler) GenerateHandler(c *gin.Context) {
	userID, ok := requireUser(c, h.logger)
	if !ok {
		return
	}

	var req dto.GenerateKeyRequest
	if !bindOptionalJSON(c, &req, h.logger) {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	out, err := h.masterKeyUseCase.Generate(c.Request.Context(), &keyDomain.GenerateKeyInput{
		UserID:       userID,
		KeyType:      req.KeyType,
		HardwareInfo: req.HardwareInfo.ToDomain(c.ClientIP()),
		Request:      httputil.RequestInfo(c),
	})
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	defer cryptoDomain.Zero(out.RawKey)

	c.JSON(http.StatusCreated, dto.MapGenerateKeyResponse(out))
}

// VerifyHandler checks a key proof against the active key.
// POST /v1/keys/verify - Returns 200 OK, or 401 when the proof does not match.
func (h *KeyHandler) VerifyHandler(c *gin.Context) {
	userID, ok := requireUser(c, h.logger)
	if !ok {
		return
	}

	var req dto.VerifyKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	proof, err := req.DecodeKeyProof()
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}
	defer cryptoDomain.Zero(proof)

	out, err := h.masterKeyUseCase.Verify(c.Request.Context(), &keyDomain.VerifyKeyInput{
		UserID:       userID,
		KeyType:      req.KeyType,
		KeyProof:     proof,
		HardwareInfo: req.HardwareInfo.ToDomain(c.ClientIP()),
		Request:      httputil.RequestInfo(c),
	})
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapVerifyKeyResponse(out))
}

// RotateHandler supersedes the active key with a new version.
// POST /v1/keys/rotate - Returns 200 OK with the new raw key, shown only once.
func (h *KeyHandler) RotateHandler(c *gin.Context) {
	userID, ok := requireUser(c, h.logger)
	if !ok {
		return
	}

	var req dto.RotateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	out, err := h.masterKeyUseCase.Rotate(c.Request.Context(), &keyDomain.RotateKeyInput{
		UserID:  userID,
		KeyType: req.KeyType,
		Reason:  req.Reason,
		Request: httputil.RequestInfo(c),
	})
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	defer cryptoDomain.Zero(out.RawKey)

	c.JSON(http.StatusOK, dto.MapRotateKeyResponse(out))
}

// RevokeHandler disables the active key.
// POST /v1/keys/revoke - Returns 204 No Content.
func (h *KeyHandler) RevokeHandler(c *gin.Context) {
	userID, ok := requireUser(c, h.logger)
	if !ok {
		return
	}

	var req dto.RevokeKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	err := h.masterKeyUseCase.Revoke(c.Request.Context(), &keyDomain.RevokeKeyInput{
		UserID:  userID,
		KeyType: req.KeyType,
		Reason:  req.Reason,
		Request: httputil.RequestInfo(c),
	})
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.Status(http.StatusNoContent)
}

// LatestHandler identifies the active key without returning it.
// GET /v1/keys/latest?key_type= - Returns 200 OK, or 412 when the user has no active key.
func (h *KeyHandler) LatestHandler(c *gin.Context) {
	userID, ok := requireUser(c, h.logger)
	if !ok {
		return
	}

	material, err := h.masterKeyUseCase.GetLatest(c.Request.Context(), userID, c.Query("key_type"))
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	cryptoDomain.Zero(material.Key)

	c.JSON(http.StatusOK, dto.LatestKeyResponse{
		KeyID:      material.KeyID.String(),
		KeyVersion: material.Version,
	})
}

// requireUser reads the authenticated user or answers 401.
func requireUser(c *gin.Context, logger *slog.Logger) (string, bool) {
	userID, ok := httputil.GetUserID(c)
	if !ok {
		httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, logger)
	}
	return userID, ok
}

// bindOptionalJSON binds the body when one was sent.
func bindOptionalJSON(c *gin.Context, dst any, logger *slog.Logger) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		httputil.HandleBadRequestGin(c, err, logger)
		return false
	}
	return true
}
