// Package dto provides data transfer objects for the key management HTTP API.
package dto

import (
	"encoding/base64"

	validation "github.com/jellydator/validation"

	keyDomain "github.com/allisson/dormkeys/internal/keymgmt/domain"
	customValidation "github.com/allisson/dormkeys/internal/validation"
)

const (
	maxPlugins      = 64
	maxSignalLength = 512
	maxReasonLength = 255
)

// HardwareInfoRequest carries the device signals collected by the client.
type HardwareInfoRequest struct {
	UserAgent        string   `json:"user_agent"`
	Platform         string   `json:"platform"`
	Cores            int      `json:"cores"`
	Memory           float64  `json:"memory"`
	ScreenResolution string   `json:"screen_resolution"`
	Timezone         string   `json:"timezone"`
	Language         string   `json:"language"`
	Plugins          []string `json:"plugins"`
	CanvasHash       string   `json:"canvas_hash"`
	WebGLHash        string   `json:"webgl_hash"`
	DeviceName       string   `json:"device_name"`
}

// Validate bounds every signal so a client cannot inflate stored rows.
func (r *HardwareInfoRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.UserAgent, validation.Length(0, maxSignalLength)),
		validation.Field(&r.Platform, validation.Length(0, 128)),
		validation.Field(&r.Cores, validation.Min(0), validation.Max(4096)),
		validation.Field(&r.Memory, validation.Min(0.0), validation.Max(1e6)),
		validation.Field(&r.ScreenResolution, validation.Length(0, 64)),
		validation.Field(&r.Timezone, validation.Length(0, 64)),
		validation.Field(&r.Language, validation.Length(0, 35)),
		validation.Field(&r.Plugins,
			validation.Length(0, maxPlugins),
			validation.Each(validation.Length(0, 255)),
		),
		validation.Field(&r.CanvasHash, validation.Length(0, 128)),
		validation.Field(&r.WebGLHash, validation.Length(0, 128)),
		validation.Field(&r.DeviceName, validation.Length(0, 255)),
	)
}

// ToDomain converts the request; a nil request yields nil.
func (r *HardwareInfoRequest) ToDomain(ipAddress string) *keyDomain.HardwareInfo {
	if r == nil {
		return nil
	}

	info := &keyDomain.HardwareInfo{
		UserAgent:        r.UserAgent,
		Platform:         r.Platform,
		Cores:            r.Cores,
		Memory:           r.Memory,
		ScreenResolution: r.ScreenResolution,
		Timezone:         r.Timezone,
		Language:         r.Language,
		Plugins:          r.Plugins,
		DeviceName:       r.DeviceName,
		IPAddress:        ipAddress,
	}
	if r.CanvasHash != "" {
		info.CanvasFingerprint = &keyDomain.RenderHash{Hash: r.CanvasHash}
	}
	if r.WebGLHash != "" {
		info.WebGLFingerprint = &keyDomain.RenderHash{Hash: r.WebGLHash}
	}
	return info
}

// GenerateKeyRequest provisions the first master key of the caller.
type GenerateKeyRequest struct {
	KeyType      string               `json:"key_type"`
	HardwareInfo *HardwareInfoRequest `json:"hardware_info"`
}

// Validate checks if the generate key request is valid.
func (r *GenerateKeyRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.KeyType, validation.Length(0, 50), customValidation.Slug),
		validation.Field(&r.HardwareInfo),
	)
}

// VerifyKeyRequest presents a Base64 key proof.
type VerifyKeyRequest struct {
	KeyType      string               `json:"key_type"`
	KeyProof     string               `json:"key_proof"`
	HardwareInfo *HardwareInfoRequest `json:"hardware_info"`
}

// Validate checks if the verify key request is valid.
func (r *VerifyKeyRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.KeyType, validation.Length(0, 50), customValidation.Slug),
		validation.Field(&r.KeyProof, validation.Required, customValidation.Base64),
		validation.Field(&r.HardwareInfo),
	)
}

// DecodeKeyProof returns the raw proof bytes. Call after Validate.
func (r *VerifyKeyRequest) DecodeKeyProof() ([]byte, error) {
	return base64.StdEncoding.DecodeString(r.KeyProof)
}

// RotateKeyRequest supersedes the active key.
type RotateKeyRequest struct {
	KeyType string `json:"key_type"`
	Reason  string `json:"reason"`
}

// Validate checks if the rotate key request is valid.
func (r *RotateKeyRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.KeyType, validation.Length(0, 50), customValidation.Slug),
		validation.Field(&r.Reason,
			validation.Required,
			customValidation.NotBlank,
			validation.Length(1, maxReasonLength),
		),
	)
}

// RevokeKeyRequest disables the active key.
type RevokeKeyRequest struct {
	KeyType string `json:"key_type"`
	Reason  string `json:"reason"`
}

// Validate checks if the revoke key request is valid.
func (r *RevokeKeyRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.KeyType, validation.Length(0, 50), customValidation.Slug),
		validation.Field(&r.Reason,
			validation.Required,
			customValidation.NotBlank,
			validation.Length(1, maxReasonLength),
		),
	)
}

// DeviceRequest carries the signals of the device being registered or verified.
type DeviceRequest struct {
	HardwareInfo *HardwareInfoRequest `json:"hardware_info"`
}

// Validate checks if the device request is valid.
func (r *DeviceRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.HardwareInfo, validation.Required),
	)
}
