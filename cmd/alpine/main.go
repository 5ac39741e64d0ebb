//go:build linux

// Command alpine is the example driver program: it boots a container
// from a local, already-unpacked rootfs (image pulling is out of
// scope) and either attaches an interactive shell over a pty or drives
// the container from a line-edited command prompt.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/kr/pty"
	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/GuillemCastro/libcontainer-go/container"
	"github.com/GuillemCastro/libcontainer-go/ipc"
	"github.com/GuillemCastro/libcontainer-go/storage"
)

func main() {
	if container.IsChild(os.Args) {
		os.Exit(container.RunChild(hclog.New(&hclog.LoggerOptions{Name: "alpine", Level: hclog.Info})))
	}

	var (
		layers      = flag.String("layers", "tests/alpine-3.15.3", "colon-separated list of lower layers, topmost first")
		target      = flag.String("target", "./alpine-rootfs", "overlay target directory")
		interactive = flag.Bool("interactive", true, "attach a pty instead of driving commands from a line prompt")
	)
	flag.Parse()

	logger := hclog.New(&hclog.LoggerOptions{Name: "alpine", Level: hclog.Info})

	driver := storage.NewOverlayDriver(strings.Split(*layers, ":"), *target)
	c, err := container.New(driver, container.DefaultRuntimeOptions(), logger)
	if err != nil {
		logger.Error("create container", "error", err)
		os.Exit(1)
	}
	logger.Info("created container", "id", c.ID())

	if *interactive {
		if err := runInteractive(c); err != nil {
			logger.Error("interactive session", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := runPrompt(c, logger); err != nil {
		logger.Error("prompt session", "error", err)
		os.Exit(1)
	}
}

// runInteractive allocates a pty pair on the host, wires the slave end
// as the container's stdio, and copies bytes between the host's own
// terminal and the master end while the container's shell runs
// attached to the slave.
func runInteractive(c *container.Container) error {
	ptyMaster, ptySlave, err := pty.Open()
	if err != nil {
		return fmt.Errorf("alpine: open pty: %w", err)
	}
	defer ptyMaster.Close()

	if err := c.StartWithIO(ptySlave, ptySlave, ptySlave); err != nil {
		ptySlave.Close()
		return fmt.Errorf("alpine: start container: %w", err)
	}
	ptySlave.Close()

	if err := c.ExecuteInContainer("/bin/sh", nil, nil, nil); err != nil {
		return fmt.Errorf("alpine: exec shell: %w", err)
	}

	fd := int(os.Stdin.Fd())
	state, err := term.MakeRaw(fd)
	if err == nil {
		defer term.Restore(fd, state)
	}

	go func() { _, _ = copyBytes(ptyMaster, os.Stdin) }()
	go func() { _, _ = copyBytes(os.Stdout, ptyMaster) }()

	return c.WaitForContainer()
}

func copyBytes(dst, src *os.File) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err != nil {
			return total, err
		}
	}
}

// runPrompt drives the container from a line-edited REPL instead of a
// pty: each line the operator types becomes one ExecuteInContainer
// call, exercising the control protocol the way an embedding
// application (not a human at a terminal) would.
func runPrompt(c *container.Container, logger hclog.Logger) error {
	if err := c.Start(); err != nil {
		return fmt.Errorf("alpine: start container: %w", err)
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt(c.ID()[:12] + "> ")
		if err != nil {
			break
		}
		line.AppendHistory(input)

		fields := strings.Fields(input)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "exit" {
			break
		}

		execType := ipc.ExecFork
		if err := c.ExecuteInContainer(fields[0], fields[1:], nil, &execType); err != nil {
			logger.Error("command failed", "command", fields[0], "error", err)
		}
	}

	return c.ForceStop()
}
