// Package container is the host-side supervisor: it holds the storage
// driver's configuration, re-execs the current binary into a fresh
// namespace set where RunChild builds and runs the runtime, and
// exposes the control operations (execute, wait, force-stop) external
// callers use.
package container

import (
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	uuid "github.com/hashicorp/go-uuid"

	"github.com/GuillemCastro/libcontainer-go/ipc"
	rt "github.com/GuillemCastro/libcontainer-go/runtime"
	"github.com/GuillemCastro/libcontainer-go/storage"
	"github.com/GuillemCastro/libcontainer-go/sysx"
)

// Sentinel errors for the supervisor's own precondition and ownership
// checks.
var (
	ErrNotStarted   = errors.New("container: not started")
	ErrWrongProcess = errors.New("container: operation attempted from a process other than the one that constructed this handle")
)

// childArg is the argv[1] sentinel RunChild looks for to decide
// whether the running process is the re-exec'd container child rather
// than a fresh invocation of the host program.
const childArg = "__libcontainer_child"

// IsChild reports whether args (typically os.Args) identify this
// process invocation as the re-exec'd container child. Embedding
// programs must check this at the very top of main(), before flag
// parsing or any other startup work, and call RunChild if it is true.
func IsChild(args []string) bool {
	return len(args) > 1 && args[1] == childArg
}

// RuntimeOptions mirrors runtime.Options at the supervisor's API
// boundary.
type RuntimeOptions = rt.Options

// DefaultRuntimeOptions returns the documented defaults: user "root",
// group "root", cwd "/".
func DefaultRuntimeOptions() RuntimeOptions {
	return rt.DefaultOptions()
}

// Container is the supervisor's handle: the producer end of the
// control channel, the supervisor's own PID (captured at New, used to
// assert every host-side call happens from the process that
// constructed the handle), the child's PID once started, and enough
// state to re-exec the runtime.
type Container struct {
	id     string
	pid    int
	send   *ipc.Producer
	driver storage.Driver
	opts   RuntimeOptions
	logger hclog.Logger

	consumerFile *os.File
	containerPID int
	cmdWait      func() error
}

// New constructs a supervisor handle over driver: generates a 128-bit
// ID, creates the control channel, and records the calling process's
// PID.
func New(driver storage.Driver, opts RuntimeOptions, logger hclog.Logger) (*Container, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return nil, fmt.Errorf("container: generate id: %w", err)
	}
	id = stripDashes(id)

	producer, consumerFile, err := ipc.NewPair()
	if err != nil {
		return nil, fmt.Errorf("container: create ipc channel: %w", err)
	}

	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Container{
		id:           id,
		pid:          os.Getpid(),
		send:         producer,
		driver:       driver,
		opts:         opts,
		logger:       logger.Named("container").With("id", id),
		consumerFile: consumerFile,
	}, nil
}

func stripDashes(s string) string {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r != '-' {
			out = append(out, byte(r))
		}
	}
	return string(out)
}

// ID returns the container's 128-bit identifier, rendered as hex.
func (c *Container) ID() string { return c.id }

// assertHostSide guards every exported operation: a Container handle
// is only valid in the process that constructed it.
func (c *Container) assertHostSide() error {
	if c.pid != os.Getpid() {
		return ErrWrongProcess
	}
	return nil
}

// Start logs intent, clones the runtime into a fresh namespace set via
// sysx.CreateContainer, and records the child's PID. The child inherits
// the supervisor's own stdio.
func (c *Container) Start() error {
	return c.StartWithIO(nil, nil, nil)
}

// StartWithIO is Start with the child's stdio redirected to stdin,
// stdout, stderr instead of the supervisor's own; any left nil falls
// back to the supervisor's stdio (see sysx.ChildConfig). cmd/alpine uses
// this to wire a pty slave for interactive attach.
func (c *Container) StartWithIO(stdin, stdout, stderr *os.File) error {
	if err := c.assertHostSide(); err != nil {
		return err
	}
	c.logger.Info("starting container")

	env := buildChildEnv(c.id, c.opts, c.driver)
	cmd, pid, err := sysx.CreateContainer(sysx.ChildConfig{
		ChildArg:   childArg,
		ExtraFiles: []*os.File{c.consumerFile},
		Env:        env,
		Stdin:      stdin,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	if err != nil {
		return fmt.Errorf("container: start: %w", err)
	}
	c.containerPID = pid
	c.cmdWait = cmd.Wait
	// The consumer end now lives in the child's fd table (inherited as
	// fd 3); the supervisor's copy of the *os.File is no longer needed.
	_ = c.consumerFile.Close()
	return nil
}

// ExecuteInContainer sends a Command message, defaulting env to empty
// and execType to ExecReplace. Calling it before Start succeeds: the
// message sits in the channel's buffer and is consumed once the
// runtime's bootstrap reaches the event loop.
func (c *Container) ExecuteInContainer(command string, args []string, env []string, execType *ipc.ExecType) error {
	if err := c.assertHostSide(); err != nil {
		return err
	}
	if env == nil {
		env = []string{}
	}
	et := ipc.ExecReplace
	if execType != nil {
		et = *execType
	}
	cmd := ipc.Command{Command: command, Args: args, Env: env, ExecType: et}
	c.logger.Debug("executing command inside container", "command", command)
	if err := c.send.Send(ipc.ForCommand(cmd)); err != nil {
		return fmt.Errorf("container: execute: %w", err)
	}
	return nil
}

// WaitForContainer blocks until the container's child process
// terminates. Fails if Start has not been called.
func (c *Container) WaitForContainer() error {
	if err := c.assertHostSide(); err != nil {
		return err
	}
	if c.cmdWait == nil {
		return ErrNotStarted
	}
	return c.cmdWait()
}

// ForceStop sends Stop then SIGKILLs the child without waiting. This
// is best-effort: data in the upper storage layer may be left dirty,
// and the merged mount is only detached on the driver's next host-side
// Umount call.
func (c *Container) ForceStop() error {
	if err := c.assertHostSide(); err != nil {
		return err
	}
	c.logger.Info("force-stopping container")

	sendErr := c.send.Send(ipc.Stop())
	var killErr error
	if c.containerPID != 0 {
		killErr = sysx.Kill(c.containerPID)
	}
	if sendErr != nil {
		return fmt.Errorf("container: force stop: send: %w", sendErr)
	}
	if killErr != nil {
		return fmt.Errorf("container: force stop: kill: %w", killErr)
	}
	return nil
}

// buildChildEnv carries the storage driver's layer/target strings and
// RuntimeOptions across the re-exec as environment variables; the
// child has a fresh address space, so everything it needs travels in
// its environment and its inherited fds.
func buildChildEnv(id string, opts RuntimeOptions, driver storage.Driver) []string {
	env := os.Environ()
	env = append(env,
		"LIBCONTAINER_ID="+id,
		"LIBCONTAINER_HOSTNAME="+opts.Hostname,
		"LIBCONTAINER_USER="+opts.User,
		"LIBCONTAINER_GROUP="+opts.Group,
		"LIBCONTAINER_CWD="+opts.Cwd,
	)
	env = append(env, storage.EncodeEnv(driver)...)
	return env
}

// RunChild is the entry point the re-exec'd child's main() calls once
// IsChild reports true. It reconstructs the RuntimeOptions and storage
// driver from the environment (the data a true clone(2) would have
// copied by value instead), wraps fd 3 (inherited via ExtraFiles) as
// the IPC consumer, builds a runtime.Runtime, and runs it to
// completion. The returned int is the process exit code.
func RunChild(logger hclog.Logger) int {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	id := os.Getenv("LIBCONTAINER_ID")
	opts := RuntimeOptions{
		Hostname: os.Getenv("LIBCONTAINER_HOSTNAME"),
		User:     os.Getenv("LIBCONTAINER_USER"),
		Group:    os.Getenv("LIBCONTAINER_GROUP"),
		Cwd:      os.Getenv("LIBCONTAINER_CWD"),
	}

	driver, err := storage.DecodeEnv(os.Getenv)
	if err != nil {
		logger.Error("decode storage driver from environment", "error", err)
		return 1
	}

	consumerFile := os.NewFile(3, "ipc-consumer")
	if consumerFile == nil {
		logger.Error("fd 3 (ipc consumer) not inherited from supervisor")
		return 1
	}
	consumer := ipc.FromFile(consumerFile)

	runtime := rt.New(id, driver, consumer, opts, logger)
	return runtime.Run()
}
