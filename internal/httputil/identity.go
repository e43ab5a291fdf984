package httputil

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"

	apperrors "github.com/allisson/dormkeys/internal/errors"
	keyDomain "github.com/allisson/dormkeys/internal/keymgmt/domain"
)

// Headers set by the upstream gateway.
const (
	UserIDHeader            = "X-User-ID"
	DeviceFingerprintHeader = "X-Device-Fingerprint"
)

const userIDKey = "dormkeys.user_id"

const maxUserIDLength = 64

var errMissingUserID = apperrors.Wrap(apperrors.ErrUnauthorized, "missing "+UserIDHeader+" header")

// UserIdentityMiddleware trusts the user id asserted by the gateway and rejects
// requests that carry none.
func UserIdentityMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if userID == "" {
			HandleErrorGin(c, errMissingUserID, logger)
			return
		}
		if len(userID) > maxUserIDLength {
			HandleValidationErrorGin(c, errors.New("user id must be at most 64 characters"), logger)
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// GetUserID returns the user id stored by UserIdentityMiddleware.
func GetUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(userIDKey)
	return userID, userID != ""
}

// RequestInfo collects the caller attributes recorded on audit rows.
func RequestInfo(c *gin.Context) keyDomain.RequestInfo {
	return keyDomain.RequestInfo{
		RequestID:         requestid.Get(c),
		IPAddress:         c.ClientIP(),
		UserAgent:         c.Request.UserAgent(),
		DeviceFingerprint: c.GetHeader(DeviceFingerprintHeader),
	}
}
