package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

const (
	mergeDir = "merge"
	upperDir = "upper"
	workDir  = "workdir"
)

// OverlayDriver composes an ordered list of read-only lower layers
// (Layers[0] is topmost) with a writable upper layer into a single
// kernel overlay mount under Target: lowerdir is the joined layer
// list, upperdir and workdir live under Target, and the merged view
// appears at Target/merge.
type OverlayDriver struct {
	Layers []string
	Target string

	mounted bool
}

var _ Driver = (*OverlayDriver)(nil)

// NewOverlayDriver builds a driver over layers (topmost first) merged
// at target.
func NewOverlayDriver(layers []string, target string) *OverlayDriver {
	return &OverlayDriver{Layers: layers, Target: target}
}

func (o *OverlayDriver) mergePath() string { return filepath.Join(o.Target, mergeDir) }
func (o *OverlayDriver) upperPath() string { return filepath.Join(o.Target, upperDir) }
func (o *OverlayDriver) workPath() string  { return filepath.Join(o.Target, workDir) }

// Mount creates Target and its three subdirectories if missing
// (idempotent over the directory tree: mounting twice over an
// already-populated, empty Target succeeds), then performs the kernel
// overlay mount (not idempotent: a second Mount while already mounted
// fails with ErrAlreadyMounted).
func (o *OverlayDriver) Mount() error {
	if o.mounted {
		return ErrAlreadyMounted
	}
	if err := o.ensureLayout(); err != nil {
		return err
	}

	data := fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s",
		strings.Join(o.Layers, ":"), o.upperPath(), o.workPath())

	if err := unix.Mount("overlay", o.mergePath(), "overlay", unix.MS_NOSUID, data); err != nil {
		return fmt.Errorf("storage: mount overlay at %s: %w", o.mergePath(), err)
	}
	o.mounted = true
	return nil
}

// ensureLayout creates Target and its three subdirectories when
// missing. It is not an error for them to already exist and be empty;
// this only errs if Target exists but is populated with something
// other than the three expected subdirectories.
func (o *OverlayDriver) ensureLayout() error {
	info, err := os.Stat(o.Target)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(o.Target, 0o755); err != nil {
			return fmt.Errorf("storage: create target %s: %w", o.Target, err)
		}
	case err != nil:
		return fmt.Errorf("storage: stat target %s: %w", o.Target, err)
	case !info.IsDir():
		return fmt.Errorf("storage: target %s is not a directory", o.Target)
	default:
		if err := o.checkLenientLayout(); err != nil {
			return err
		}
	}

	for _, dir := range []string{o.mergePath(), o.upperPath(), o.workPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("storage: create %s: %w", dir, err)
		}
	}
	return nil
}

// checkLenientLayout tolerates an existing Target as long as it
// contains only the three expected subdirectories, so a target left
// behind by a previous run (upper layer data included) can be reused.
func (o *OverlayDriver) checkLenientLayout() error {
	entries, err := os.ReadDir(o.Target)
	if err != nil {
		return fmt.Errorf("storage: read target %s: %w", o.Target, err)
	}
	allowed := map[string]bool{mergeDir: true, upperDir: true, workDir: true}
	for _, e := range entries {
		if !allowed[e.Name()] {
			return fmt.Errorf("%w: %s contains unexpected entry %q", ErrTargetExists, o.Target, e.Name())
		}
	}
	return nil
}

// Umount is directional. Called from inside the container (the
// supervisor handed mount ownership to the child across the re-exec),
// o.mounted is true and this performs a lazy detach of the merge
// mountpoint. Called from the host after the container has already
// exited, the driver value the supervisor holds never observed the
// mount (it happened in a different process), so this falls back to a
// direct MNT_DETACH unmount of Target/merge and treats failure as a
// no-op.
func (o *OverlayDriver) Umount() error {
	if err := unix.Unmount(o.mergePath(), unix.MNT_DETACH); err != nil {
		if o.mounted {
			return fmt.Errorf("storage: unmount %s: %w", o.mergePath(), err)
		}
		// Host-side fallback call with no mount to undo is a no-op.
	}
	o.mounted = false
	return nil
}

// Root returns Target/merge iff currently mounted.
func (o *OverlayDriver) Root() (string, error) {
	if !o.mounted {
		return "", ErrNotMounted
	}
	return o.mergePath(), nil
}
