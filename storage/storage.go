// Package storage is the polymorphic storage driver layer: a Driver
// interface over {Mount, Umount, Root}, with a NullDriver placeholder
// and an OverlayDriver that composes N read-only layers with a
// writable upper into a single merged mount.
package storage

import "errors"

// Sentinel errors. ErrNotImplemented, ErrAlreadyMounted and
// ErrNotMounted are returned unwrapped; ErrTargetExists is returned
// wrapped with the offending entry, so match it with errors.Is.
var (
	ErrNotImplemented = errors.New("storage: operation not implemented")
	ErrAlreadyMounted = errors.New("storage: driver already mounted")
	ErrNotMounted     = errors.New("storage: driver not mounted")
	ErrTargetExists   = errors.New("storage: target directory already exists")
)

// Driver is the capability set every storage backend implements.
type Driver interface {
	// Mount materializes the backend's merged view of the filesystem.
	Mount() error
	// Umount tears the mount down. Must be safe to call from either
	// the process that called Mount (the container child) or from a
	// process holding a copy of the driver that never observed the
	// mount (the supervisor, after the child has exited).
	Umount() error
	// Root returns the path to the mounted root. Fails if unmounted.
	Root() (string, error)
}

// NullDriver is a placeholder backend: every operation fails. It is
// used as a construction-time placeholder and in tests that exercise
// the supervisor handle or the runtime's event loop without a real
// root filesystem. A started container cannot boot on it: the
// runtime's bootstrap fails at the driver's Mount.
type NullDriver struct{}

func (NullDriver) Mount() error          { return ErrNotImplemented }
func (NullDriver) Umount() error         { return ErrNotImplemented }
func (NullDriver) Root() (string, error) { return "", ErrNotImplemented }

var _ Driver = NullDriver{}
