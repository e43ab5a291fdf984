package domain

import (
	"github.com/allisson/dormkeys/internal/errors"
)

// Key management errors.
var (
	// ErrNoActiveKey indicates the user has no active key of the requested type.
	ErrNoActiveKey = errors.Wrap(errors.ErrPreconditionFailed, "no active master key")

	// ErrMasterKeyNotFound indicates a key version does not exist.
	ErrMasterKeyNotFound = errors.Wrap(errors.ErrNotFound, "master key not found")

	// ErrActiveKeyExists indicates a generate call for a user that already has an active key.
	ErrActiveKeyExists = errors.Wrap(errors.ErrConflict, "an active master key already exists")

	// ErrRotationConflict indicates a concurrent rotation already superseded the key.
	ErrRotationConflict = errors.Wrap(errors.ErrConflict, "master key was rotated concurrently")

	// ErrKeyRevoked indicates the requested key version was revoked and cannot be used.
	ErrKeyRevoked = errors.Wrap(errors.ErrForbidden, "master key revoked")

	// ErrInvalidUserID indicates an empty or oversized user id.
	ErrInvalidUserID = errors.Wrap(errors.ErrInvalidInput, "user id must be 1..64 characters")

	// ErrBindingNotFound indicates no binding exists for the fingerprint.
	ErrBindingNotFound = errors.Wrap(errors.ErrNotFound, "hardware binding not found")

	// ErrSignatureInvalid indicates an audit row failed signature verification.
	ErrSignatureInvalid = errors.New("audit log signature invalid")
)

// DeviceRejectReason is the machine-readable reason of a device policy failure.
type DeviceRejectReason string

const (
	ReasonUnknownDevice  DeviceRejectReason = "unknown_device"
	ReasonDeviceDisabled DeviceRejectReason = "device_disabled"
	ReasonLowTrust       DeviceRejectReason = "low_trust"
)

// DeviceError is a hardware-binding policy failure. It matches ErrForbidden.
type DeviceError struct {
	Reason  DeviceRejectReason
	Message string
}

func (e *DeviceError) Error() string {
	return string(e.Reason) + ": " + e.Message
}

func (e *DeviceError) Unwrap() error {
	return errors.ErrForbidden
}

// Device policy failures, each with its remediation message.
var (
	ErrUnknownDevice = &DeviceError{
		Reason:  ReasonUnknownDevice,
		Message: "this device is not registered for the account; register it to continue",
	}
	ErrDeviceDisabled = &DeviceError{
		Reason:  ReasonDeviceDisabled,
		Message: "this device has been disabled; contact an administrator or register it again",
	}
	ErrLowTrust = &DeviceError{
		Reason:  ReasonLowTrust,
		Message: "this device is not trusted enough yet; complete step-up verification",
	}
)
