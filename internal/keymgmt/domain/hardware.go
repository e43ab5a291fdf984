package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HardwareInfo is the set of device signals collected by the client.
type HardwareInfo struct {
	UserAgent         string      `json:"userAgent"`
	Platform          string      `json:"platform"`
	Cores             int         `json:"cores"`
	Memory            float64     `json:"memory"`
	ScreenResolution  string      `json:"screenResolution"`
	Timezone          string      `json:"timezone"`
	Language          string      `json:"language"`
	Plugins           []string    `json:"plugins"`
	CanvasFingerprint *RenderHash `json:"canvasFingerprint"`
	WebGLFingerprint  *RenderHash `json:"webglFingerprint"`
	DeviceName        string      `json:"deviceName"`
	IPAddress         string      `json:"ipAddress"`
}

// RenderHash is the digest of a canvas or WebGL rendering.
type RenderHash struct {
	Hash string `json:"hash"`
}

// TrustScore is a device trust value in hundredths, always within [0, 100].
// Integer steps keep repeated increments exact where floats would drift.
type TrustScore int

const (
	MinTrustScore       TrustScore = 0
	MaxTrustScore       TrustScore = 100
	InitialTrustScore   TrustScore = 80
	TrustScoreIncrement TrustScore = 5
	LowTrustThreshold   TrustScore = 50
)

// ClampTrustScore bounds s to [0, 100].
func ClampTrustScore(s TrustScore) TrustScore {
	return min(max(s, MinTrustScore), MaxTrustScore)
}

// TrustScoreFromFloat converts a stored [0,1] value, rounding to hundredths.
func TrustScoreFromFloat(f float64) TrustScore {
	return ClampTrustScore(TrustScore(math.Round(f * 100)))
}

// Add returns s+delta clamped to the valid range.
func (s TrustScore) Add(delta TrustScore) TrustScore {
	return ClampTrustScore(s + delta)
}

// Float returns the score in [0,1].
func (s TrustScore) Float() float64 {
	return float64(s) / 100
}

// IsLow reports whether the score is below the verification threshold.
func (s TrustScore) IsLow() bool {
	return s < LowTrustThreshold
}

// String formats the score like the NUMERIC(3,2) column, e.g. "0.85".
func (s TrustScore) String() string {
	return fmt.Sprintf("%d.%02d", int(s)/100, int(s)%100)
}

// HardwareBinding ties a device fingerprint to a user.
type HardwareBinding struct {
	ID                uuid.UUID
	UserID            string
	DeviceFingerprint string
	DeviceName        string
	BrowserInfo       string
	ScreenInfo        string
	Timezone          string
	Language          string
	FirstSeen         time.Time
	LastSeen          time.Time
	TrustScore        TrustScore
	IsActive          bool
}

// NewHardwareBinding builds the binding created on first registration.
func NewHardwareBinding(userID, fingerprint string, info *HardwareInfo, now time.Time) *HardwareBinding {
	return &HardwareBinding{
		ID:                uuid.Must(uuid.NewV7()),
		UserID:            userID,
		DeviceFingerprint: fingerprint,
		DeviceName:        deviceName(info),
		BrowserInfo:       browserInfo(info),
		ScreenInfo:        info.ScreenResolution,
		Timezone:          info.Timezone,
		Language:          info.Language,
		FirstSeen:         now,
		LastSeen:          now,
		TrustScore:        InitialTrustScore,
		IsActive:          true,
	}
}

// Reinforced returns a copy of b after a repeat registration: trust raised by one
// increment, descriptors refreshed, reactivated.
func (b HardwareBinding) Reinforced(info *HardwareInfo, now time.Time) *HardwareBinding {
	b.TrustScore = b.TrustScore.Add(TrustScoreIncrement)
	b.LastSeen = now
	b.IsActive = true
	b.DeviceName = deviceName(info)
	b.BrowserInfo = browserInfo(info)
	b.ScreenInfo = info.ScreenResolution
	b.Timezone = info.Timezone
	b.Language = info.Language
	return &b
}

func deviceName(info *HardwareInfo) string {
	if name := strings.TrimSpace(info.DeviceName); name != "" {
		return name
	}
	if info.Platform != "" {
		return info.Platform + " device"
	}
	return "Unknown device"
}

func browserInfo(info *HardwareInfo) string {
	if info.Platform == "" {
		return info.UserAgent
	}
	return info.UserAgent + " (" + info.Platform + ")"
}

// RegisterDeviceOutput is the result of a registration.
type RegisterDeviceOutput struct {
	Success           bool
	DeviceFingerprint string
	TrustScore        TrustScore
	IsNewBinding      bool
}
