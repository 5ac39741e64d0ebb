package rootfs

import "testing"

func TestStandardDevicesTable(t *testing.T) {
	want := map[string][2]uint32{
		"null":    {1, 3},
		"zero":    {1, 5},
		"full":    {1, 7},
		"random":  {1, 8},
		"urandom": {1, 9},
		"tty":     {5, 0},
		"console": {5, 1},
	}
	if len(standardDevices) != len(want) {
		t.Fatalf("got %d standard devices, want %d", len(standardDevices), len(want))
	}
	for _, d := range standardDevices {
		majmin, ok := want[d.name]
		if !ok {
			t.Errorf("unexpected device %q", d.name)
			continue
		}
		if d.major != majmin[0] || d.minor != majmin[1] {
			t.Errorf("%s: major:minor = %d:%d, want %d:%d", d.name, d.major, d.minor, majmin[0], majmin[1])
		}
	}
}

func TestConsoleIsNotWorldWritable(t *testing.T) {
	for _, d := range standardDevices {
		if d.name == "console" {
			if d.mode != 0o600 {
				t.Errorf("console mode = %o, want 0600", d.mode)
			}
			return
		}
	}
	t.Fatal("console not found in standardDevices")
}

func TestStandardSymlinksTable(t *testing.T) {
	want := map[string]string{
		"stdin":   "/proc/self/fd/0",
		"stdout":  "/proc/self/fd/1",
		"stderr":  "/proc/self/fd/2",
		"core":    "/proc/kcore",
		"fd":      "/proc/self/fd",
		"ptmx":    "/dev/pts/ptmx",
	}
	if len(standardSymlinks) != len(want) {
		t.Fatalf("got %d symlinks, want %d", len(standardSymlinks), len(want))
	}
	for _, s := range standardSymlinks {
		target, ok := want[s.name]
		if !ok {
			t.Errorf("unexpected symlink %q", s.name)
			continue
		}
		if s.target != target {
			t.Errorf("%s -> %s, want %s", s.name, s.target, target)
		}
	}
}

// TestMountSequence exercises the real mount syscalls and requires
// CAP_SYS_ADMIN plus private mount/PID/UTS namespaces to be safe to run
// outside a real container; skipped in short mode like the privileged
// overlay test in the storage package.
func TestMountSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping privileged mount test in short mode")
	}
	if err := MountPrivate(); err != nil {
		t.Skipf("MountPrivate requires CAP_SYS_ADMIN: %v", err)
	}
}
