// Package dto provides data transfer objects for the encrypted user data HTTP API.
package dto

import (
	"bytes"
	"encoding/json"
	"errors"

	validation "github.com/jellydator/validation"

	"github.com/allisson/dormkeys/internal/metadata"
	customValidation "github.com/allisson/dormkeys/internal/validation"
)

// MaxPayloadBytes bounds the JSON document stored in one record.
const MaxPayloadBytes = 1 << 20

var errEmptyPayload = errors.New("must be a JSON value other than null")

// SaveDataRequest carries the JSON document to encrypt.
type SaveDataRequest struct {
	Data     json.RawMessage `json:"data"`
	Metadata metadata.Map    `json:"metadata"`
}

// Validate checks if the save data request is valid.
func (r *SaveDataRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Data, validation.By(func(any) error {
			trimmed := bytes.TrimSpace(r.Data)
			if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
				return errEmptyPayload
			}
			if len(trimmed) > MaxPayloadBytes {
				return errors.New("must be at most 1 MiB")
			}
			return nil
		})),
		validation.Field(&r.Metadata),
	)
}

// DataLocation names a record through its path parameters.
type DataLocation struct {
	DataType string `json:"data_type"`
	DataID   string `json:"data_id"`
}

// Validate keeps both segments path safe. DataID may be empty for type-wide routes.
func (l DataLocation) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.DataType, validation.Required, validation.Length(1, 64), customValidation.Slug),
		validation.Field(&l.DataID, validation.Length(1, 128), customValidation.Slug),
	)
}
