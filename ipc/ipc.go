// Package ipc implements the typed, one-way point-to-point channel the
// supervisor uses to send Message values to the runtime across the
// process boundary created by sysx.CreateContainer. The underlying
// socketpair is bidirectional, but Producer only sends and Consumer
// only receives.
package ipc

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"sync"
)

// MessageKind discriminates the two Message variants.
type MessageKind int

const (
	// KindAction carries a lifecycle action (currently only Stop).
	KindAction MessageKind = iota
	// KindCommand carries a Command to execute inside the container.
	KindCommand
)

// ExecType mirrors sysx.ExecType; duplicated here (rather than
// imported) so this package has no dependency on sysx; the wire
// format is decoupled from the syscall façade on purpose.
type ExecType int

const (
	ExecFork ExecType = iota
	ExecReplace
)

// Command is the unit of work the supervisor injects into the
// container: an executable, its arguments (argv[1:], the runtime
// prepends argv[0] itself), environment KEY=VALUE strings, and launch
// mode.
type Command struct {
	Command  string
	Args     []string
	Env      []string
	ExecType ExecType
}

// Message is the sum type exchanged over the channel: either a
// lifecycle Action or a Command. Go has no algebraic enum, so this is
// a tagged struct rather than an interface-based visitor, which keeps
// gob encoding simple and the dispatch site a plain switch on Kind.
type Message struct {
	Kind MessageKind
	Cmd  Command // valid iff Kind == KindCommand
}

// Stop is the only defined Action payload.
func Stop() Message {
	return Message{Kind: KindAction}
}

// ForCommand wraps cmd as a Message.
func ForCommand(cmd Command) Message {
	return Message{Kind: KindCommand, Cmd: cmd}
}

// NewPair creates the producer end and the raw file for the consumer
// end. It is created before the child is cloned so the re-exec hands
// one end to each process: the producer stays with the supervisor,
// consumerFile is placed in the child's ExtraFiles (at fd 3) and
// turned into a *Consumer inside the child via FromFile, since the
// socketpair's file descriptor crosses exec, but the Go *os.File
// wrapper in the parent process has no meaning inside the child.
func NewPair() (producer *Producer, consumerFile *os.File, err error) {
	p, c, err := socketpair()
	if err != nil {
		return nil, nil, fmt.Errorf("ipc: create socketpair: %w", err)
	}
	return &Producer{f: p}, c, nil
}

// Producer is the supervisor-exclusive end of the channel.
type Producer struct {
	mu sync.Mutex
	f  *os.File
}

// Send serializes msg and writes it whole, blocking if the transport's
// buffer is full. Fails if the consumer end has been closed.
func (p *Producer) Send(msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return fmt.Errorf("ipc: encode message: %w", err)
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(buf.Len()))
	if _, err := p.f.Write(header[:]); err != nil {
		return fmt.Errorf("ipc: send: peer gone: %w", err)
	}
	if _, err := p.f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("ipc: send: peer gone: %w", err)
	}
	return nil
}

// Close releases the producer's end of the socketpair.
func (p *Producer) Close() error {
	return p.f.Close()
}

// Consumer is the runtime-exclusive end of the channel.
type Consumer struct {
	f *os.File
}

// FromFile wraps an inherited file descriptor (fd 3 in the re-exec'd
// child) as a Consumer.
func FromFile(f *os.File) *Consumer {
	return &Consumer{f: f}
}

// Receive blocks until a full Message arrives or the producer end is
// dropped, in which case it returns an error (peer gone).
func (c *Consumer) Receive() (Message, error) {
	var header [4]byte
	if _, err := io.ReadFull(c.f, header[:]); err != nil {
		return Message{}, fmt.Errorf("ipc: receive: peer gone: %w", err)
	}
	n := binary.BigEndian.Uint32(header[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(c.f, payload); err != nil {
		return Message{}, fmt.Errorf("ipc: receive: truncated message: %w", err)
	}
	var msg Message
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&msg); err != nil {
		return Message{}, fmt.Errorf("ipc: decode message: %w", err)
	}
	return msg, nil
}

// Close releases the consumer's end of the socketpair.
func (c *Consumer) Close() error {
	return c.f.Close()
}
