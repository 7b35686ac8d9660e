package capture

import (
	"errors"
	"syscall"
)

// Error kinds from spec.md §7. The surface is an errno, not a rich error
// type: callers (ringtapctl, the socket-option dispatcher) compare against
// these with errors.Is.
var (
	// ErrInvalid is returned for a malformed option payload, an unknown
	// bloom rule tag, or a byte-code program that fails validation.
	ErrInvalid = syscall.EINVAL
	// ErrPermission is returned when an operation requires administrator
	// capability the caller does not have.
	ErrPermission = syscall.EPERM
	// ErrNoMemory is returned when a build/bind/bitmask allocation fails.
	ErrNoMemory = syscall.ENOMEM
	// ErrNoDevice is returned when a bind or reflector target does not
	// resolve to a known device.
	ErrNoDevice = syscall.ENODEV
)

// IsInvalid reports whether err is, or wraps, ErrInvalid.
func IsInvalid(err error) bool { return errors.Is(err, ErrInvalid) }
