// Package rootfs establishes the pseudo-filesystems a freshly
// pivoted-into container expects: /proc, /sys, a device-populated
// /dev, and the hostname.
package rootfs

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MountPrivate remarks / as MS_PRIVATE|MS_REC on the host-side view,
// before the overlay mount happens, so that none of the mounts this
// package or storage.OverlayDriver performs propagate back out of the
// new mount namespace.
func MountPrivate() error {
	if err := unix.Mount("", "/", "", unix.MS_PRIVATE|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("rootfs: remount / private: %w", err)
	}
	return nil
}

// MountProcfs mounts proc at /proc with nosuid,nodev,noexec.
func MountProcfs() error {
	if err := os.MkdirAll("/proc", 0o555); err != nil {
		return fmt.Errorf("rootfs: mkdir /proc: %w", err)
	}
	if err := unix.Mount("proc", "/proc", "proc", unix.MS_NOSUID|unix.MS_NODEV|unix.MS_NOEXEC, ""); err != nil {
		return fmt.Errorf("rootfs: mount /proc: %w", err)
	}
	return nil
}

// MountSysfs mounts a tmpfs over /sys, then mounts sysfs onto it.
func MountSysfs() error {
	if err := os.MkdirAll("/sys", 0o555); err != nil {
		return fmt.Errorf("rootfs: mkdir /sys: %w", err)
	}
	if err := unix.Mount("tmpfs", "/sys", "tmpfs", 0, ""); err != nil {
		return fmt.Errorf("rootfs: mount tmpfs over /sys: %w", err)
	}
	if err := unix.Mount("sysfs", "/sys", "sysfs", 0, ""); err != nil {
		return fmt.Errorf("rootfs: mount sysfs: %w", err)
	}
	return nil
}

type devNode struct {
	name  string
	major uint32
	minor uint32
	mode  uint32
}

// standardDevices is the set of character devices every minimal /dev
// carries.
var standardDevices = []devNode{
	{"null", 1, 3, 0o666},
	{"zero", 1, 5, 0o666},
	{"full", 1, 7, 0o666},
	{"random", 1, 8, 0o666},
	{"urandom", 1, 9, 0o666},
	{"tty", 5, 0, 0o666},
	{"console", 5, 1, 0o600},
}

type devSymlink struct{ name, target string }

var standardSymlinks = []devSymlink{
	{"stdin", "/proc/self/fd/0"},
	{"stdout", "/proc/self/fd/1"},
	{"stderr", "/proc/self/fd/2"},
	{"core", "/proc/kcore"},
	{"fd", "/proc/self/fd"},
	{"ptmx", "/dev/pts/ptmx"},
}

// MountDevfs mounts a tmpfs over /dev, populates the standard device
// nodes and symlinks, creates mqueue/pts/shm, and mounts mqueue,
// devpts and shm onto them.
func MountDevfs() error {
	if err := os.MkdirAll("/dev", 0o755); err != nil {
		return fmt.Errorf("rootfs: mkdir /dev: %w", err)
	}
	if err := unix.Mount("tmpfs", "/dev", "tmpfs", unix.MS_NOSUID|unix.MS_STRICTATIME, "mode=755"); err != nil {
		return fmt.Errorf("rootfs: mount tmpfs over /dev: %w", err)
	}

	for _, d := range standardDevices {
		path := "/dev/" + d.name
		dev := int(unix.Mkdev(d.major, d.minor))
		if err := unix.Mknod(path, unix.S_IFCHR|d.mode, dev); err != nil {
			return fmt.Errorf("rootfs: mknod %s: %w", path, err)
		}
	}

	for _, s := range standardSymlinks {
		path := "/dev/" + s.name
		if err := os.Symlink(s.target, path); err != nil {
			return fmt.Errorf("rootfs: symlink %s -> %s: %w", path, s.target, err)
		}
	}

	for _, dir := range []string{"/dev/mqueue", "/dev/pts", "/dev/shm"} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("rootfs: mkdir %s: %w", dir, err)
		}
	}

	if err := unix.Mount("mqueue", "/dev/mqueue", "mqueue", 0, ""); err != nil {
		return fmt.Errorf("rootfs: mount mqueue: %w", err)
	}
	if err := unix.Mount("devpts", "/dev/pts", "devpts", 0, "newinstance,ptmxmode=0666,mode=0620"); err != nil {
		return fmt.Errorf("rootfs: mount devpts: %w", err)
	}
	if err := unix.Mount("tmpfs", "/dev/shm", "tmpfs", 0, "mode=1777,size=65536k"); err != nil {
		return fmt.Errorf("rootfs: mount /dev/shm: %w", err)
	}

	ptmx := int(unix.Mkdev(5, 2))
	if err := unix.Mknod("/dev/pts/ptmx", unix.S_IFCHR|0o666, ptmx); err != nil {
		return fmt.Errorf("rootfs: mknod /dev/pts/ptmx: %w", err)
	}

	return nil
}

// SetHostname sets the kernel hostname to h and writes it to
// /etc/hostname, truncating any existing content.
func SetHostname(h string) error {
	if err := unix.Sethostname([]byte(h)); err != nil {
		return fmt.Errorf("rootfs: sethostname %q: %w", h, err)
	}
	if err := os.WriteFile("/etc/hostname", []byte(h), 0o644); err != nil {
		return fmt.Errorf("rootfs: write /etc/hostname: %w", err)
	}
	return nil
}
