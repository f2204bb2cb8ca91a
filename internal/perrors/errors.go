// Package perrors defines the typed error kinds shared across padswitch's
// components, mirroring the original Tauri app's PadSwitchError enum
// (original_source/src-tauri/src/error.rs) in idiomatic Go form.
package perrors

import "fmt"

// Kind classifies a padswitch error so callers can branch on failure mode
// (e.g. surface "install HidHide" vs. "run as administrator") without
// string-matching messages.
type Kind int

const (
	KindDriverNotInstalled Kind = iota
	KindDeviceNotFound
	KindHidingDriver
	KindVirtualBus
	KindForwarding
	KindConfig
	KindPlatformNotSupported
	KindIO
	KindSerialization
	KindPlatform
)

func (k Kind) String() string {
	switch k {
	case KindDriverNotInstalled:
		return "DriverNotInstalled"
	case KindDeviceNotFound:
		return "DeviceNotFound"
	case KindHidingDriver:
		return "HidingDriver"
	case KindVirtualBus:
		return "VirtualBus"
	case KindForwarding:
		return "Forwarding"
	case KindConfig:
		return "Config"
	case KindPlatformNotSupported:
		return "PlatformNotSupported"
	case KindIO:
		return "Io"
	case KindSerialization:
		return "Serialization"
	case KindPlatform:
		return "Platform"
	default:
		return "Unknown"
	}
}

// Error is a padswitch error carrying a Kind plus a human-readable message,
// and optionally wrapping an underlying cause for errors.Unwrap/Is/As.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error that wraps cause. cause may be nil when the
// caller detected the condition itself rather than catching an underlying
// OS error (e.g. Platform's not-elevated branch); Error() handles a nil
// Cause without dereferencing it.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var pe *Error
	if e, ok := err.(*Error); ok {
		pe = e
	} else {
		return false
	}
	return pe.Kind == kind
}

// DriverNotInstalled, DeviceNotFound, ... are convenience constructors
// matching the original enum's variant names 1:1.

// DriverNotInstalled, DeviceNotFound, PlatformNotSupported, and Config take
// no cause: they report a condition the caller detected itself, not an
// underlying OS error. HidingDriver, VirtualBus, Forwarding, and Platform
// wrap whatever syscall or IOCTL failure triggered them; pass a nil cause
// when there is none.
func DriverNotInstalled(msg string) *Error { return New(KindDriverNotInstalled, msg) }
func DeviceNotFound(id string) *Error      { return New(KindDeviceNotFound, id) }
func Config(msg string) *Error             { return New(KindConfig, msg) }
func PlatformNotSupported(platform string) *Error {
	return New(KindPlatformNotSupported, platform)
}

func HidingDriver(msg string, cause error) *Error { return Wrap(KindHidingDriver, msg, cause) }
func VirtualBus(msg string, cause error) *Error   { return Wrap(KindVirtualBus, msg, cause) }
func Forwarding(msg string, cause error) *Error   { return Wrap(KindForwarding, msg, cause) }
func Platform(msg string, cause error) *Error     { return Wrap(KindPlatform, msg, cause) }

func IO(msg string, cause error) *Error            { return Wrap(KindIO, msg, cause) }
func Serialization(msg string, cause error) *Error { return Wrap(KindSerialization, msg, cause) }
