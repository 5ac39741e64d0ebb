// Package runtime is the code that executes inside the container: it
// performs the bootstrap sequence (private remount, storage mount,
// pivot_root, pseudo-filesystem setup, hostname), then blocks in an
// event loop servicing Command/Stop messages from the supervisor.
package runtime

import (
	"fmt"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/GuillemCastro/libcontainer-go/ipc"
	"github.com/GuillemCastro/libcontainer-go/rootfs"
	"github.com/GuillemCastro/libcontainer-go/storage"
	"github.com/GuillemCastro/libcontainer-go/sysx"
)

// Options configures the runtime: Hostname (empty means derived from
// the ID prefix), User/Group (default "root"), Cwd (default "/").
type Options struct {
	Hostname string
	User     string
	Group    string
	Cwd      string
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{User: "root", Group: "root", Cwd: "/"}
}

// Runtime is the child-side value: it owns the storage driver
// exclusively, holds the consumer end of the control channel, and
// knows the container's ID and hostname.
type Runtime struct {
	ID       string
	Hostname string
	Driver   storage.Driver
	Consumer *ipc.Consumer
	Opts     Options
	Logger   hclog.Logger

	reaper *Reaper
}

// New constructs a runtime. If opts.Hostname is empty the hostname is
// derived from the first 12 characters of id.
func New(id string, driver storage.Driver, consumer *ipc.Consumer, opts Options, logger hclog.Logger) *Runtime {
	hostname := opts.Hostname
	if hostname == "" {
		hostname = defaultHostname(id)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Runtime{
		ID:       id,
		Hostname: hostname,
		Driver:   driver,
		Consumer: consumer,
		Opts:     opts,
		Logger:   logger.Named("runtime"),
	}
}

func defaultHostname(id string) string {
	if len(id) >= 12 {
		return id[:12]
	}
	return id
}

// Run executes the bootstrap sequence and then the event loop. It is
// the function the re-exec'd child calls instead of its normal main
// path, and returns the exit code the child process should use.
func (r *Runtime) Run() int {
	if err := r.bootstrap(); err != nil {
		r.Logger.Error("bootstrap failed", "error", err)
		return 1
	}
	r.reaper = NewReaper(r.Logger)
	r.reaper.Start()
	defer r.reaper.Stop()

	if err := r.eventLoop(); err != nil {
		r.Logger.Error("event loop exited with error", "error", err)
		return 1
	}
	r.Logger.Info("container thread stopped")
	return 0
}

// bootstrap performs, in order: private remount, storage mount,
// pivot_root into the merged root, /proc, /sys, /dev, hostname. The
// order is fixed: the private remount must
// precede any mount that should stay namespace-local, and the pivot
// must happen before the pseudo-filesystems are mounted since they are
// mounted relative to the new root.
func (r *Runtime) bootstrap() error {
	r.Logger.Info("starting container")

	if err := rootfs.MountPrivate(); err != nil {
		return err
	}
	if err := r.Driver.Mount(); err != nil {
		return fmt.Errorf("runtime: mount storage driver: %w", err)
	}
	root, err := r.Driver.Root()
	if err != nil {
		return fmt.Errorf("runtime: storage driver root: %w", err)
	}
	if err := sysx.SwitchRootfs(root); err != nil {
		return fmt.Errorf("runtime: switch rootfs: %w", err)
	}
	if err := rootfs.MountProcfs(); err != nil {
		return err
	}
	if err := rootfs.MountSysfs(); err != nil {
		return err
	}
	if err := rootfs.MountDevfs(); err != nil {
		return err
	}
	if err := rootfs.SetHostname(r.Hostname); err != nil {
		return err
	}
	if cwd := r.Opts.Cwd; cwd != "" && cwd != "/" {
		if err := sysx.Chdir(cwd); err != nil {
			return fmt.Errorf("runtime: enter working directory: %w", err)
		}
	}

	r.Logger.Info("bootstrap complete", "hostname", r.Hostname, "root", root)
	return nil
}

// eventLoop blocks on the consumer end and dispatches messages:
// Action(Stop) breaks the loop; Command injects the standard
// environment and execs it through sysx. The loop is single-threaded
// and synchronous: only one command executes at a time from its own
// perspective, though ExecFork commands spawn detached children that
// run concurrently (reaped by r.reaper).
func (r *Runtime) eventLoop() error {
	for {
		msg, err := r.Consumer.Receive()
		if err != nil {
			return fmt.Errorf("runtime: receive: %w", err)
		}
		switch msg.Kind {
		case ipc.KindAction:
			r.Logger.Debug("received stop action")
			return nil
		case ipc.KindCommand:
			r.Logger.Debug("received command", "command", msg.Cmd.Command)
			if err := r.execute(msg.Cmd); err != nil {
				r.Logger.Error("command failed", "command", msg.Cmd.Command, "error", err)
			}
		default:
			return fmt.Errorf("runtime: unknown message kind %d", msg.Kind)
		}
	}
}

func (r *Runtime) execute(cmd ipc.Command) error {
	env := r.injectEnvironment(cmd.Env)
	execType := sysx.ExecFork
	if cmd.ExecType == ipc.ExecReplace {
		execType = sysx.ExecReplace
	}
	pid, err := sysx.Exec(sysx.Command{
		Path:     cmd.Command,
		Args:     cmd.Args,
		Env:      env,
		ExecType: execType,
	})
	if err != nil {
		return err
	}
	if execType == sysx.ExecFork && r.reaper != nil {
		r.reaper.Track(pid)
	}
	return nil
}

// injectEnvironment merges the standard container environment into
// caller-supplied env, resolving duplicate keys last-wins: the map is
// built from userEnv first, then overwritten by the injected entries,
// so a duplicate key always resolves deterministically to one value
// rather than depending on execvpe/libc behavior.
func (r *Runtime) injectEnvironment(userEnv []string) []string {
	merged := map[string]string{}
	for _, kv := range userEnv {
		k, v, ok := splitKV(kv)
		if ok {
			merged[k] = v
		}
	}

	user, shell, home := r.Opts.User, "/bin/sh", "/root"
	if user == "" {
		user = "root"
	}
	if info, err := sysx.LookupUser(user); err == nil {
		shell = info.Shell
		home = info.Home
	} else {
		r.Logger.Warn("user lookup failed, using fallback environment", "user", user, "error", err)
	}

	injected := map[string]string{
		"container":      "libcontainer-go",
		"container_uuid": r.ID,
		"HOME":           home,
		"SHELL":          shell,
		"USER":           "root",
		"HOSTNAME":       r.Hostname,
		"PATH":           "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
	}
	for k, v := range injected {
		merged[k] = v
	}

	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	return out
}

func splitKV(kv string) (key, value string, ok bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return "", "", false
}
