package storage

import (
	"os"
	"path/filepath"
	"testing"
)

// TestOverlayDriverMountUmount exercises the real kernel overlay mount
// and is only meaningful with CAP_SYS_ADMIN (or inside a user
// namespace that permits it).
func TestOverlayDriverMountUmount(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping privileged mount test in short mode")
	}

	lower := t.TempDir()
	if err := os.WriteFile(filepath.Join(lower, "marker"), []byte("lower"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	target := t.TempDir()

	o := NewOverlayDriver([]string{lower}, target)
	if err := o.Mount(); err != nil {
		t.Fatalf("Mount: %v (requires CAP_SYS_ADMIN)", err)
	}
	defer o.Umount()

	root, err := o.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "marker")); err != nil {
		t.Errorf("expected lower layer's marker file to appear in the merged root: %v", err)
	}

	if err := o.Mount(); err != ErrAlreadyMounted {
		t.Errorf("second Mount() = %v, want %v", err, ErrAlreadyMounted)
	}

	if err := o.Umount(); err != nil {
		t.Fatalf("Umount: %v", err)
	}
}

func TestOverlayDriverRootBeforeMount(t *testing.T) {
	o := NewOverlayDriver([]string{"/tmp/lower"}, "/tmp/target")
	if _, err := o.Root(); err != ErrNotMounted {
		t.Fatalf("Root() before Mount: got err %v, want %v", err, ErrNotMounted)
	}
}

func TestOverlayDriverEnsureLayoutCreatesSubdirs(t *testing.T) {
	target := t.TempDir()
	o := NewOverlayDriver([]string{"/tmp/lower"}, target)

	if err := o.ensureLayout(); err != nil {
		t.Fatalf("ensureLayout: %v", err)
	}

	for _, dir := range []string{mergeDir, upperDir, workDir} {
		if info, err := os.Stat(filepath.Join(target, dir)); err != nil || !info.IsDir() {
			t.Errorf("expected directory %s to exist, err=%v", dir, err)
		}
	}
}

func TestOverlayDriverEnsureLayoutIdempotent(t *testing.T) {
	target := t.TempDir()
	o := NewOverlayDriver([]string{"/tmp/lower"}, target)

	if err := o.ensureLayout(); err != nil {
		t.Fatalf("first ensureLayout: %v", err)
	}
	if err := o.ensureLayout(); err != nil {
		t.Fatalf("second ensureLayout (should be idempotent): %v", err)
	}
}

func TestOverlayDriverEnsureLayoutRejectsUnexpectedEntries(t *testing.T) {
	target := t.TempDir()
	if err := os.WriteFile(filepath.Join(target, "surprise"), []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	o := NewOverlayDriver([]string{"/tmp/lower"}, target)
	err := o.ensureLayout()
	if err == nil {
		t.Fatal("expected ensureLayout to reject a target with unexpected entries")
	}
}

func TestOverlayDriverPaths(t *testing.T) {
	o := NewOverlayDriver(nil, "/srv/containers/abc")
	if got, want := o.mergePath(), "/srv/containers/abc/merge"; got != want {
		t.Errorf("mergePath = %s, want %s", got, want)
	}
	if got, want := o.upperPath(), "/srv/containers/abc/upper"; got != want {
		t.Errorf("upperPath = %s, want %s", got, want)
	}
	if got, want := o.workPath(), "/srv/containers/abc/workdir"; got != want {
		t.Errorf("workPath = %s, want %s", got, want)
	}
}

func TestNullDriver(t *testing.T) {
	var d Driver = NullDriver{}
	if err := d.Mount(); err != ErrNotImplemented {
		t.Errorf("Mount() = %v, want %v", err, ErrNotImplemented)
	}
	if err := d.Umount(); err != ErrNotImplemented {
		t.Errorf("Umount() = %v, want %v", err, ErrNotImplemented)
	}
	if _, err := d.Root(); err != ErrNotImplemented {
		t.Errorf("Root() = %v, want %v", err, ErrNotImplemented)
	}
}
