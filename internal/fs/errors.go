package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"
)

// ErrorKind is the failure taxonomy surfaced to consumers.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	NotFound
	Unauthorized
	DeviceUnavailable
	Timeout
	UnsupportedPath
	PartialEnumeration
	Cancelled
	// Transient covers "in progress" / busy failures of the bulk strategy.
	// It is never surfaced; it only triggers the item-strategy fallback.
	Transient
	Unknown
)

func (k ErrorKind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case Unauthorized:
		return "access denied"
	case DeviceUnavailable:
		return "device unavailable"
	case Timeout:
		return "timeout"
	case UnsupportedPath:
		return "unsupported path"
	case PartialEnumeration:
		return "partial enumeration"
	case Cancelled:
		return "cancelled"
	case Transient:
		return "transient"
	case Unknown:
		return "unknown"
	default:
		return "none"
	}
}

// Sentinel errors, one per kind, so callers can use errors.Is.
var (
	ErrNotFound           = errors.New("path not found")
	ErrUnauthorized       = errors.New("access denied")
	ErrDeviceUnavailable  = errors.New("device unavailable")
	ErrTimeout            = errors.New("open timed out")
	ErrUnsupportedPath    = errors.New("unsupported path")
	ErrPartialEnumeration = errors.New("enumeration ended early")
	ErrCancelled          = errors.New("enumeration cancelled")
	ErrTransient          = errors.New("temporarily unavailable")
)

func sentinel(k ErrorKind) error {
	switch k {
	case NotFound:
		return ErrNotFound
	case Unauthorized:
		return ErrUnauthorized
	case DeviceUnavailable:
		return ErrDeviceUnavailable
	case Timeout:
		return ErrTimeout
	case UnsupportedPath:
		return ErrUnsupportedPath
	case PartialEnumeration:
		return ErrPartialEnumeration
	case Cancelled:
		return ErrCancelled
	case Transient:
		return ErrTransient
	}
	return nil
}

// EnumError is an enumeration failure for a path.
type EnumError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *EnumError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Kind)
}

func (e *EnumError) Unwrap() error { return e.Err }

// Is matches the kind's sentinel error.
func (e *EnumError) Is(target error) bool {
	s := sentinel(e.Kind)
	return s != nil && target == s
}

// NewError builds an EnumError of the given kind.
func NewError(kind ErrorKind, path string, err error) *EnumError {
	return &EnumError{Kind: kind, Path: path, Err: err}
}

// KindOf extracts the ErrorKind from any error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var ee *EnumError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return classify(err)
}

// MapError wraps a raw OS or provider error into an EnumError for path.
// An error that already is an EnumError is returned unchanged.
func MapError(path string, err error) error {
	if err == nil {
		return nil
	}
	var ee *EnumError
	if errors.As(err, &ee) {
		return err
	}
	return &EnumError{Kind: classify(err), Path: path, Err: err}
}

func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, context.Canceled):
		return Cancelled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return Timeout
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOTDIR):
		return NotFound
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return Unauthorized
	case errors.Is(err, syscall.ENODEV), errors.Is(err, syscall.ENXIO), errors.Is(err, syscall.EIO):
		return DeviceUnavailable
	case errors.Is(err, syscall.EBUSY), errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR):
		return Transient
	case errors.Is(err, ErrUnsupportedPath):
		return UnsupportedPath
	}
	return Unknown
}

// IsFallbackable reports whether a bulk-strategy failure of this kind should
// be retried once with the item strategy.
func IsFallbackable(k ErrorKind) bool {
	switch k {
	case Unauthorized, Transient, Timeout, Unknown:
		return true
	}
	return false
}
