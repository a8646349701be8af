package media

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies a device failure by origin, mirroring the browser
// getUserMedia error names the dashboard already understands.
type Code string

const (
	// CodeNotAllowed — the user or OS denied access to the device.
	CodeNotAllowed Code = "not_allowed"
	// CodeNotFound — no matching device is present.
	CodeNotFound Code = "not_found"
	// CodeNotReadable — the device exists but is held by another process.
	CodeNotReadable Code = "not_readable"
	// CodeOverconstrained — the device cannot satisfy the requested
	// constraints (e.g. unsupported sample rate or resolution).
	CodeOverconstrained Code = "overconstrained"
	// CodeNoTracks — acquisition returned a stream with zero tracks.
	CodeNoTracks Code = "no_tracks"
	// CodeRecorderStart — the stream was acquired but the recorder could
	// not start on it.
	CodeRecorderStart Code = "recorder_start"
)

// DeviceError is a classified device failure. All fatal acquisition and
// recorder errors bubble to the session controller as a *DeviceError.
type DeviceError struct {
	Code       Code
	Capability Capability
	Err        error
}

func (e *DeviceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s", e.Capability, e.Code)
	}
	return fmt.Sprintf("%s %s: %v", e.Capability, e.Code, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Guidance returns user-facing text explaining how to fix the failure.
// Browser- or OS-specific navigation is deliberately left to the dashboard.
func (e *DeviceError) Guidance() string {
	device := string(e.Capability)
	switch e.Code {
	case CodeNotAllowed:
		return fmt.Sprintf("Access to the %s was denied. Grant %s access and try again.", device, device)
	case CodeNotFound:
		return fmt.Sprintf("No %s was found. Connect a %s and try again.", device, device)
	case CodeNotReadable:
		return fmt.Sprintf("The %s is in use. Close other applications using the %s and try again.", device, device)
	case CodeOverconstrained:
		return fmt.Sprintf("The %s does not support the requested capture settings.", device)
	case CodeNoTracks:
		return fmt.Sprintf("The %s produced no usable capture tracks.", device)
	case CodeRecorderStart:
		return "Recording could not be started. Try again."
	default:
		return fmt.Sprintf("The %s could not be started.", device)
	}
}

// NewDeviceError wraps err with a classification.
func NewDeviceError(code Code, capability Capability, err error) *DeviceError {
	return &DeviceError{Code: code, Capability: capability, Err: err}
}

// AsDeviceError unwraps err to a *DeviceError if one is in the chain.
func AsDeviceError(err error) (*DeviceError, bool) {
	var de *DeviceError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// Classify maps a raw device-layer error onto the taxonomy. Errors that
// already carry a classification pass through unchanged.
func Classify(capability Capability, err error) *DeviceError {
	if de, ok := AsDeviceError(err); ok {
		return de
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied"), strings.Contains(msg, "not allowed"), strings.Contains(msg, "operation not permitted"):
		return NewDeviceError(CodeNotAllowed, capability, err)
	case strings.Contains(msg, "no such device"), strings.Contains(msg, "no such file"), strings.Contains(msg, "no default"), strings.Contains(msg, "device unavailable"):
		return NewDeviceError(CodeNotFound, capability, err)
	case strings.Contains(msg, "busy"), strings.Contains(msg, "in use"), strings.Contains(msg, "cannot read"):
		return NewDeviceError(CodeNotReadable, capability, err)
	case strings.Contains(msg, "sample rate"), strings.Contains(msg, "invalid"), strings.Contains(msg, "unsupported"):
		return NewDeviceError(CodeOverconstrained, capability, err)
	default:
		return NewDeviceError(CodeNotReadable, capability, err)
	}
}
