package storage

import (
	"fmt"
	"strings"
)

// Environment variable names used to carry a Driver's configuration
// across the supervisor/runtime process boundary: the re-exec'd child
// has a fresh address space, so the handful of strings that describe
// the driver travel in its environment instead.
const (
	EnvDriverKind    = "LIBCONTAINER_DRIVER"
	EnvOverlayLayers = "LIBCONTAINER_OVERLAY_LAYERS"
	EnvOverlayTarget = "LIBCONTAINER_OVERLAY_TARGET"

	driverKindNull    = "null"
	driverKindOverlay = "overlay"
)

// EncodeEnv returns the KEY=VALUE strings needed to reconstruct d in
// another process.
func EncodeEnv(d Driver) []string {
	switch v := d.(type) {
	case *OverlayDriver:
		return []string{
			EnvDriverKind + "=" + driverKindOverlay,
			EnvOverlayLayers + "=" + strings.Join(v.Layers, ":"),
			EnvOverlayTarget + "=" + v.Target,
		}
	default:
		return []string{EnvDriverKind + "=" + driverKindNull}
	}
}

// DecodeEnv reconstructs the Driver that EncodeEnv described, given a
// lookup function over the child's environment (typically os.Getenv).
func DecodeEnv(lookup func(string) string) (Driver, error) {
	switch lookup(EnvDriverKind) {
	case driverKindOverlay:
		target := lookup(EnvOverlayTarget)
		if target == "" {
			return nil, fmt.Errorf("storage: %s set but %s is empty", EnvDriverKind, EnvOverlayTarget)
		}
		layers := strings.Split(lookup(EnvOverlayLayers), ":")
		return NewOverlayDriver(layers, target), nil
	case driverKindNull, "":
		return NullDriver{}, nil
	default:
		return nil, fmt.Errorf("storage: unknown driver kind %q", lookup(EnvDriverKind))
	}
}
