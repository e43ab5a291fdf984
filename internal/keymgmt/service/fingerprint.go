package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/allisson/dormkeys/internal/keymgmt/domain"
)

// maxFingerprintPlugins bounds how many plugin names take part in the fingerprint.
const maxFingerprintPlugins = 5

// fingerprintInput fixes the field order of the canonical document.
// DeviceName and IPAddress are left out: both change without the device changing.
type fingerprintInput struct {
	UserAgent        string   `json:"userAgent"`
	Platform         string   `json:"platform"`
	Cores            int      `json:"cores"`
	Memory           float64  `json:"memory"`
	ScreenResolution string   `json:"screenResolution"`
	Timezone         string   `json:"timezone"`
	Language         string   `json:"language"`
	Plugins          []string `json:"plugins"`
	Canvas           string   `json:"canvas"`
	WebGL            string   `json:"webgl"`
}

// Fingerprint returns the hex SHA-256 of the canonical JSON of info.
// Missing signals encode as zero values, so equal inputs always hash equally.
func Fingerprint(info *domain.HardwareInfo) string {
	in := fingerprintInput{Plugins: []string{}}
	if info != nil {
		in.UserAgent = info.UserAgent
		in.Platform = info.Platform
		in.Cores = info.Cores
		in.Memory = info.Memory
		in.ScreenResolution = info.ScreenResolution
		in.Timezone = info.Timezone
		in.Language = info.Language
		if n := min(len(info.Plugins), maxFingerprintPlugins); n > 0 {
			in.Plugins = append(in.Plugins, info.Plugins[:n]...)
		}
		if info.CanvasFingerprint != nil {
			in.Canvas = info.CanvasFingerprint.Hash
		}
		if info.WebGLFingerprint != nil {
			in.WebGL = info.WebGLFingerprint.Hash
		}
	}

	// NaN or Inf memory is the only input JSON cannot encode.
	doc, err := json.Marshal(in)
	if err != nil {
		in.Memory = 0
		doc, _ = json.Marshal(in)
	}

	sum := sha256.Sum256(doc)
	return hex.EncodeToString(sum[:])
}
