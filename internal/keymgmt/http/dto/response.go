package dto

import (
	"encoding/base64"
	"time"

	keyDomain "github.com/allisson/dormkeys/internal/keymgmt/domain"
	"github.com/allisson/dormkeys/internal/metadata"
)

// GenerateKeyResponse returns the raw secret exactly once.
// SECURITY: RawKey must only travel over TLS and is never retrievable again.
type GenerateKeyResponse struct {
	KeyID      string    `json:"key_id"`
	KeyVersion int       `json:"key_version"`
	RawKey     string    `json:"raw_key"`
	CreatedAt  time.Time `json:"created_at"`
}

// MapGenerateKeyResponse encodes the raw key as Base64.
func MapGenerateKeyResponse(out *keyDomain.GenerateKeyOutput) GenerateKeyResponse {
	return GenerateKeyResponse{
		KeyID:      out.KeyID.String(),
		KeyVersion: out.KeyVersion,
		RawKey:     base64.StdEncoding.EncodeToString(out.RawKey),
		CreatedAt:  out.CreatedAt,
	}
}

// VerifyKeyResponse describes the key a proof matched.
type VerifyKeyResponse struct {
	Success       bool   `json:"success"`
	KeyID         string `json:"key_id"`
	KeyVersion    int    `json:"key_version"`
	RotationCount int    `json:"rotation_count"`
}

func MapVerifyKeyResponse(out *keyDomain.VerifyKeyOutput) VerifyKeyResponse {
	return VerifyKeyResponse{
		Success:       out.Success,
		KeyID:         out.KeyID.String(),
		KeyVersion:    out.KeyVersion,
		RotationCount: out.RotationCount,
	}
}

// RotateKeyResponse returns the new secret once, together with its verifier.
type RotateKeyResponse struct {
	KeyID         string `json:"key_id"`
	KeyVersion    int    `json:"key_version"`
	PreviousKeyID string `json:"previous_key_id"`
	RawKey        string `json:"raw_key"`
	EncryptedKey  string `json:"encrypted_key"`
}

func MapRotateKeyResponse(out *keyDomain.RotateKeyOutput) RotateKeyResponse {
	return RotateKeyResponse{
		KeyID:         out.KeyID.String(),
		KeyVersion:    out.KeyVersion,
		PreviousKeyID: out.PreviousKeyID.String(),
		RawKey:        base64.StdEncoding.EncodeToString(out.RawKey),
		EncryptedKey:  out.EncryptedKey,
	}
}

// LatestKeyResponse identifies the active key without exposing it.
type LatestKeyResponse struct {
	KeyID      string `json:"key_id"`
	KeyVersion int    `json:"key_version"`
}

// RegisterDeviceResponse is the result of a device registration.
type RegisterDeviceResponse struct {
	Success           bool    `json:"success"`
	DeviceFingerprint string  `json:"device_fingerprint"`
	TrustScore        float64 `json:"trust_score"`
	IsNewBinding      bool    `json:"is_new_binding"`
}

func MapRegisterDeviceResponse(out *keyDomain.RegisterDeviceOutput) RegisterDeviceResponse {
	return RegisterDeviceResponse{
		Success:           out.Success,
		DeviceFingerprint: out.DeviceFingerprint,
		TrustScore:        out.TrustScore.Float(),
		IsNewBinding:      out.IsNewBinding,
	}
}

// DeviceResponse is a trusted device binding.
type DeviceResponse struct {
	DeviceFingerprint string    `json:"device_fingerprint"`
	DeviceName        string    `json:"device_name"`
	BrowserInfo       string    `json:"browser_info"`
	ScreenInfo        string    `json:"screen_info"`
	Timezone          string    `json:"timezone"`
	Language          string    `json:"language"`
	FirstSeen         time.Time `json:"first_seen"`
	LastSeen          time.Time `json:"last_seen"`
	TrustScore        float64   `json:"trust_score"`
}

// ListDevicesResponse wraps the trusted devices of the caller.
type ListDevicesResponse struct {
	Data []DeviceResponse `json:"data"`
}

func MapListDevicesResponse(bindings []*keyDomain.HardwareBinding) ListDevicesResponse {
	data := make([]DeviceResponse, 0, len(bindings))
	for _, b := range bindings {
		data = append(data, DeviceResponse{
			DeviceFingerprint: b.DeviceFingerprint,
			DeviceName:        b.DeviceName,
			BrowserInfo:       b.BrowserInfo,
			ScreenInfo:        b.ScreenInfo,
			Timezone:          b.Timezone,
			Language:          b.Language,
			FirstSeen:         b.FirstSeen,
			LastSeen:          b.LastSeen,
			TrustScore:        b.TrustScore.Float(),
		})
	}
	return ListDevicesResponse{Data: data}
}

// AuditLogResponse is one audit row as seen by its owner.
type AuditLogResponse struct {
	ID                string       `json:"id"`
	KeyID             *string      `json:"key_id"`
	Action            string       `json:"action"`
	IPAddress         string       `json:"ip_address,omitempty"`
	UserAgent         string       `json:"user_agent,omitempty"`
	DeviceFingerprint string       `json:"device_fingerprint,omitempty"`
	Success           bool         `json:"success"`
	ErrorMessage      string       `json:"error_message,omitempty"`
	Metadata          metadata.Map `json:"metadata,omitempty"`
	Signed            bool         `json:"signed"`
	CreatedAt         time.Time    `json:"created_at"`
}

// ListAuditLogsResponse wraps audit rows, newest first.
type ListAuditLogsResponse struct {
	Data []AuditLogResponse `json:"data"`
}

func MapListAuditLogsResponse(logs []*keyDomain.AuditLog) ListAuditLogsResponse {
	data := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		var keyID *string
		if l.KeyID != nil {
			s := l.KeyID.String()
			keyID = &s
		}
		data = append(data, AuditLogResponse{
			ID:                l.ID.String(),
			KeyID:             keyID,
			Action:            string(l.Action),
			IPAddress:         l.IPAddress,
			UserAgent:         l.UserAgent,
			DeviceFingerprint: l.DeviceFingerprint,
			Success:           l.Success,
			ErrorMessage:      l.ErrorMessage,
			Metadata:          l.Metadata,
			Signed:            l.IsSigned(),
			CreatedAt:         l.CreatedAt,
		})
	}
	return ListAuditLogsResponse{Data: data}
}
