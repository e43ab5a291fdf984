package dto

import (
	"encoding/json"
	"time"

	"github.com/allisson/dormkeys/internal/metadata"
	"github.com/allisson/dormkeys/internal/userdata/domain"
)

// SaveDataResponse describes a stored record.
type SaveDataResponse struct {
	DataHash         string `json:"data_hash"`
	MasterKeyVersion int    `json:"master_key_version"`
}

// DataResponse is an opened record.
// SECURITY: Data is plaintext and must only travel over TLS.
type DataResponse struct {
	DataID           string          `json:"data_id"`
	Data             json.RawMessage `json:"data"`
	Metadata         metadata.Map    `json:"metadata,omitempty"`
	MasterKeyVersion int             `json:"master_key_version"`
	UpdatedAt        time.Time       `json:"updated_at"`
	DecryptedAt      time.Time       `json:"decrypted_at"`
}

func MapDataResponse(d *domain.DecryptedData) DataResponse {
	return DataResponse{
		DataID:           d.DataID,
		Data:             d.Data,
		Metadata:         d.Metadata,
		MasterKeyVersion: d.MasterKeyVersion,
		UpdatedAt:        d.UpdatedAt,
		DecryptedAt:      d.DecryptedAt,
	}
}

// FailedItemResponse names a record a batch read could not open.
type FailedItemResponse struct {
	DataID string `json:"data_id"`
	Error  string `json:"error"`
}

// BatchResponse lists the opened records of a type and the ones that failed.
type BatchResponse struct {
	Data   []DataResponse       `json:"data"`
	Failed []FailedItemResponse `json:"failed"`
}

// MapBatchResponse converts a batch result. errorCode turns a failure into a
// client-safe code.
func MapBatchResponse(out *domain.BatchOutput, errorCode func(error) string) BatchResponse {
	resp := BatchResponse{
		Data:   make([]DataResponse, 0, len(out.Items)),
		Failed: make([]FailedItemResponse, 0, len(out.Failed)),
	}
	for _, item := range out.Items {
		resp.Data = append(resp.Data, MapDataResponse(item))
	}
	for _, f := range out.Failed {
		resp.Failed = append(resp.Failed, FailedItemResponse{DataID: f.DataID, Error: errorCode(f.Err)})
	}
	return resp
}

// DeleteDataResponse reports whether a record existed.
type DeleteDataResponse struct {
	Deleted bool `json:"deleted"`
}

// StatsResponse counts the caller's records per data type.
type StatsResponse struct {
	Stats map[string]int64 `json:"stats"`
	Total int64            `json:"total"`
}

func MapStatsResponse(counts map[string]int64) StatsResponse {
	if counts == nil {
		counts = map[string]int64{}
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return StatsResponse{Stats: counts, Total: total}
}
