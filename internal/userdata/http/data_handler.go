// Package http provides HTTP handlers for encrypted user data. Records are sealed
// with the caller's current master key, which is resolved per request and zeroed
// before the response is written.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	cryptoDomain "github.com/allisson/dormkeys/internal/crypto/domain"
	apperrors "github.com/allisson/dormkeys/internal/errors"
	"github.com/allisson/dormkeys/internal/httputil"
	keyDomain "github.com/allisson/dormkeys/internal/keymgmt/domain"
	"github.com/allisson/dormkeys/internal/userdata/domain"
	"github.com/allisson/dormkeys/internal/userdata/http/dto"
	dataUseCase "github.com/allisson/dormkeys/internal/userdata/usecase"
	customValidation "github.com/allisson/dormkeys/internal/validation"
)

// MasterKeyProvider returns the caller's current master key.
type MasterKeyProvider interface {
	GetLatest(ctx context.Context, userID, keyType string) (*keyDomain.MasterKeyMaterial, error)
}

// DataHandler handles HTTP requests for encrypted user data.
type DataHandler struct {
	dataUseCase dataUseCase.DataEncryptionUseCase
	masterKeys  MasterKeyProvider
	logger      *slog.Logger
}

// NewDataHandler creates a new data handler.
func NewDataHandler(
	dataUseCase dataUseCase.DataEncryptionUseCase,
	masterKeys MasterKeyProvider,
	logger *slog.Logger,
) *DataHandler {
	return &DataHandler{
		dataUseCase: dataUseCase,
		masterKeys:  masterKeys,
		logger:      logger,
	}
}

// SaveHandler encrypts a JSON document under the caller's current master key.
// PUT /v1/data/:dataType/:dataId - Returns 200 OK with the data hash.
func (h *DataHandler) SaveHandler(c *gin.Context) {
	userID, loc, ok := h.location(c, true)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, dto.MaxPayloadBytes+64*1024)

	var req dto.SaveDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	masterKey, ok := h.latestKey(c, userID)
	if !ok {
		return
	}
	defer cryptoDomain.Zero(masterKey.Key)

	out, err := h.dataUseCase.EncryptAndSave(c.Request.Context(), &domain.EncryptInput{
		UserID:   userID,
		DataType: loc.DataType,
		DataID:   loc.DataID,
		Data:     req.Data,
		Metadata: req.Metadata,
	}, masterKey)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.SaveDataResponse{
		DataHash:         out.DataHash,
		MasterKeyVersion: out.MasterKeyVersion,
	})
}

// GetHandler opens one record.
// GET /v1/data/:dataType/:dataId - Returns 200 OK with the plaintext document.
func (h *DataHandler) GetHandler(c *gin.Context) {
	userID, loc, ok := h.location(c, true)
	if !ok {
		return
	}
	h.read(c, userID, loc)
}

// ListHandler opens every record of a type, or only the most recently updated
// one when latest=true.
// GET /v1/data/:dataType?latest=true - Records that fail to open are listed under "failed".
func (h *DataHandler) ListHandler(c *gin.Context) {
	userID, loc, ok := h.location(c, false)
	if !ok {
		return
	}

	if c.Query("latest") == "true" {
		h.read(c, userID, loc)
		return
	}

	masterKey, ok := h.latestKey(c, userID)
	if !ok {
		return
	}
	defer cryptoDomain.Zero(masterKey.Key)

	out, err := h.dataUseCase.DecryptBatch(c.Request.Context(), userID, loc.DataType, masterKey)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapBatchResponse(out, httputil.ErrorCode))
}

// DeleteHandler removes a record. Deleting a missing record is not an error.
// DELETE /v1/data/:dataType/:dataId - Returns 200 OK with {"deleted": bool}.
func (h *DataHandler) DeleteHandler(c *gin.Context) {
	userID, loc, ok := h.location(c, true)
	if !ok {
		return
	}

	deleted, err := h.dataUseCase.Delete(c.Request.Context(), userID, loc.DataType, loc.DataID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.DeleteDataResponse{Deleted: deleted})
}

// StatsHandler counts the caller's records per data type.
// GET /v1/data-stats - Returns 200 OK.
func (h *DataHandler) StatsHandler(c *gin.Context) {
	userID, ok := httputil.GetUserID(c)
	if !ok {
		httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, h.logger)
		return
	}

	counts, err := h.dataUseCase.GetStats(c.Request.Context(), userID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapStatsResponse(counts))
}

func (h *DataHandler) read(c *gin.Context, userID string, loc dto.DataLocation) {
	masterKey, ok := h.latestKey(c, userID)
	if !ok {
		return
	}
	defer cryptoDomain.Zero(masterKey.Key)

	data, err := h.dataUseCase.DecryptAndRead(c.Request.Context(), userID, loc.DataType, loc.DataID, masterKey)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapDataResponse(data))
}

// location reads the user and the path parameters. withID requires :dataId.
func (h *DataHandler) location(c *gin.Context, withID bool) (string, dto.DataLocation, bool) {
	userID, ok := httputil.GetUserID(c)
	if !ok {
		httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, h.logger)
		return "", dto.DataLocation{}, false
	}

	loc := dto.DataLocation{DataType: c.Param("dataType")}
	if withID {
		loc.DataID = c.Param("dataId")
		if loc.DataID == "" {
			httputil.HandleValidationErrorGin(c, domain.ErrInvalidDataID, h.logger)
			return "", dto.DataLocation{}, false
		}
	}
	if err := loc.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return "", dto.DataLocation{}, false
	}
	return userID, loc, true
}

func (h *DataHandler) latestKey(c *gin.Context, userID string) (*keyDomain.MasterKeyMaterial, bool) {
	masterKey, err := h.masterKeys.GetLatest(c.Request.Context(), userID, keyDomain.DefaultKeyType)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return nil, false
	}
	return masterKey, true
}
