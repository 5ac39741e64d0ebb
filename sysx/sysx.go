// Package sysx is the typed syscall façade for the runtime: it owns
// the multi-step kernel recipes (pivot_root, namespace clone, exec,
// user lookup) whose step ordering is load-bearing. Single mount or
// mknod calls stay with the package that owns the mounted object
// (rootfs, storage), the way the calls sit in plain view at their use
// sites rather than behind one more indirection.
package sysx

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"
)

// NamespaceFlags is the fixed set of namespaces a container is cloned
// into: mount, UTS, IPC, PID and network. CLONE_NEWUSER is deliberately
// omitted: it requires a uid/gid mapping this runtime does not set up;
// callers who want rootless containers configure that themselves.
const NamespaceFlags = unix.CLONE_NEWNS | unix.CLONE_NEWUTS | unix.CLONE_NEWIPC |
	unix.CLONE_NEWPID | unix.CLONE_NEWNET

// SwitchRootfs implements the canonical pivot_root recipe: bind-mount
// newRoot onto itself (so pivot_root sees it as a mount point), chdir
// into it, pivot_root(".", ".") to stack the old root on top of the
// new one, then lazily detach the old root. On return the calling
// process's root and cwd are newRoot.
func SwitchRootfs(newRoot string) error {
	if err := unix.Mount(newRoot, newRoot, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("sysx: bind mount %s onto itself: %w", newRoot, err)
	}
	if err := unix.Chdir(newRoot); err != nil {
		return fmt.Errorf("sysx: chdir %s: %w", newRoot, err)
	}
	if err := unix.PivotRoot(".", "."); err != nil {
		return fmt.Errorf("sysx: pivot_root: %w", err)
	}
	if err := unix.Unmount(".", unix.MNT_DETACH); err != nil {
		return fmt.Errorf("sysx: detach old root: %w", err)
	}
	return nil
}

// ChildConfig carries the namespaced child's identity across the
// re-exec boundary (see CreateContainer).
type ChildConfig struct {
	// ChildArg is appended as the re-exec'd binary's argv[1]; the
	// calling binary's main() must recognize it and dispatch into the
	// runtime instead of its normal entry point.
	ChildArg string
	// ExtraFiles are inherited by the child at fd 3, 4, ... in order
	// (used to hand the runtime the consumer end of the IPC channel).
	ExtraFiles []*os.File
	// Env is the child's full environment.
	Env []string
	// Stdin, Stdout, Stderr default to the supervisor's own when nil.
	// cmd/alpine overrides these with a pty slave for interactive
	// attach.
	Stdin          *os.File
	Stdout, Stderr *os.File
}

// CreateContainer is the Go stand-in for clone(callback): Go cannot
// safely invoke an arbitrary closure in a clone(2)-produced child,
// since the Go runtime's scheduler and GC assume one coherent address
// space per process. Instead this re-execs the current binary
// (/proc/self/exe) with the five namespace flags set on
// SysProcAttr.Cloneflags, which performs the same clone(2) call the
// original does, just with an execve immediately following it rather
// than a resumed closure. Returns the child's PID without waiting for
// it; the caller reaps it later (matching the SIGCHLD/waitpid
// semantics of a direct clone).
func CreateContainer(cfg ChildConfig) (*exec.Cmd, int, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, 0, fmt.Errorf("sysx: resolve self: %w", err)
	}
	cmd := exec.Command(self, cfg.ChildArg)
	cmd.Env = cfg.Env
	cmd.ExtraFiles = cfg.ExtraFiles
	cmd.Stdin = firstNonNil(cfg.Stdin, os.Stdin)
	cmd.Stdout = firstNonNil(cfg.Stdout, os.Stdout)
	cmd.Stderr = firstNonNil(cfg.Stderr, os.Stderr)
	cmd.SysProcAttr = &unix.SysProcAttr{
		Cloneflags:   uintptr(NamespaceFlags),
		Unshareflags: unix.CLONE_NEWNS,
	}
	if err := cmd.Start(); err != nil {
		return nil, 0, fmt.Errorf("sysx: clone container: %w", err)
	}
	return cmd, cmd.Process.Pid, nil
}

// ExecType selects how a command is launched inside the container.
type ExecType int

const (
	// ExecFork runs the command as a detached child of the runtime.
	ExecFork ExecType = iota
	// ExecReplace replaces the runtime process (PID 1) with the command.
	ExecReplace
)

// Command is the executable, argv[1:], and environment to run inside
// the container, plus the launch mode.
type Command struct {
	Path     string
	Args     []string
	Env      []string
	ExecType ExecType
}

// Exec runs cmd according to its ExecType. In ExecFork mode it starts
// a detached child and returns its PID immediately; the fork
// boundary is the only place the runtime creates additional
// processes. In ExecReplace mode it calls execve directly: on success
// this never returns, the calling process image is replaced; on
// failure it returns an error and the runtime's event loop is still
// alive.
func Exec(c Command) (int, error) {
	argv := append([]string{c.Path}, c.Args...)
	switch c.ExecType {
	case ExecFork:
		child := &exec.Cmd{
			Path:   resolvePath(c.Path),
			Args:   argv,
			Env:    c.Env,
			Stdin:  os.Stdin,
			Stdout: os.Stdout,
			Stderr: os.Stderr,
		}
		if err := child.Start(); err != nil {
			return 0, fmt.Errorf("sysx: fork exec %s: %w", c.Path, err)
		}
		// Deliberately not child.Wait()'d here: os/exec's Wait would
		// reap the process itself, leaving the runtime's reaper with
		// nothing to find. The PID is handed back so the caller's
		// reaper can track and wait4 it directly, matching how a real
		// PID-1 runtime discovers and reaps its own children.
		return child.Process.Pid, nil
	case ExecReplace:
		path := resolvePath(c.Path)
		if err := unix.Exec(path, argv, c.Env); err != nil {
			return 0, fmt.Errorf("sysx: replace exec %s: %w", c.Path, err)
		}
		// unreachable on success
		return 0, nil
	default:
		return 0, fmt.Errorf("sysx: unknown exec type %d", c.ExecType)
	}
}

func firstNonNil(f, fallback *os.File) *os.File {
	if f != nil {
		return f
	}
	return fallback
}

func resolvePath(path string) string {
	if full, err := exec.LookPath(path); err == nil {
		return full
	}
	return path
}

// Chdir wraps chdir(2). The runtime uses it to honor a configured
// working directory once the pivot has landed it at /.
func Chdir(dir string) error {
	if err := unix.Chdir(dir); err != nil {
		return fmt.Errorf("sysx: chdir %s: %w", dir, err)
	}
	return nil
}

// Kill sends SIGKILL to pid. Used by the supervisor's ForceStop.
func Kill(pid int) error {
	if err := unix.Kill(pid, unix.SIGKILL); err != nil {
		return fmt.Errorf("sysx: kill %d: %w", pid, err)
	}
	return nil
}

// UserInfo is the subset of a passwd entry the runtime injects into
// executed commands' environments.
type UserInfo struct {
	Name  string
	UID   uint32
	GID   uint32
	Home  string
	Shell string
}

// LookupUser consults the system user database for name. This is the
// opaque, out-of-scope "user-info provider" the spec describes;
// os/user is the idiomatic Go wrapper over getpwnam(3) and needs no
// third-party replacement.
func LookupUser(name string) (*UserInfo, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("sysx: lookup user %q: %w", name, err)
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("sysx: parse uid %q: %w", u.Uid, err)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("sysx: parse gid %q: %w", u.Gid, err)
	}
	shell := "/bin/sh"
	if s, err := shellFor(u); err == nil && s != "" {
		shell = s
	}
	return &UserInfo{
		Name:  u.Username,
		UID:   uint32(uid),
		GID:   uint32(gid),
		Home:  u.HomeDir,
		Shell: shell,
	}, nil
}

// shellFor is split out because os/user does not expose the login
// shell; it is read directly, keeping the getpwnam-equivalence local
// to this one function instead of leaking /etc/passwd parsing across
// the package.
func shellFor(u *user.User) (string, error) {
	return readLoginShell(u.Username)
}
