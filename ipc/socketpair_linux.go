//go:build linux

package ipc

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// socketpair creates a connected pair of Unix domain sockets used as
// the transport beneath Producer/Consumer, each end wrapped as an
// *os.File so it can cross exec via cmd.ExtraFiles.
func socketpair() (a, b *os.File, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("ipc: socketpair: %w", err)
	}
	a = os.NewFile(uintptr(fds[0]), "ipc-producer")
	b = os.NewFile(uintptr(fds[1]), "ipc-consumer")
	return a, b, nil
}
