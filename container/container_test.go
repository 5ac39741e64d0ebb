package container

import (
	"os"
	"testing"

	"github.com/GuillemCastro/libcontainer-go/storage"
)

func TestIsChild(t *testing.T) {
	cases := []struct {
		args []string
		want bool
	}{
		{[]string{"alpine"}, false},
		{[]string{"alpine", childArg}, true},
		{[]string{"alpine", "--help"}, false},
		{nil, false},
	}
	for _, c := range cases {
		if got := IsChild(c.args); got != c.want {
			t.Errorf("IsChild(%v) = %v, want %v", c.args, got, c.want)
		}
	}
}

func TestDefaultRuntimeOptions(t *testing.T) {
	opts := DefaultRuntimeOptions()
	if opts.User != "root" || opts.Group != "root" || opts.Cwd != "/" {
		t.Errorf("DefaultRuntimeOptions = %+v", opts)
	}
}

func TestStripDashes(t *testing.T) {
	if got, want := stripDashes("aaaa-bbbb-cccc-dddd"), "aaaabbbbccccdddd"; got != want {
		t.Errorf("stripDashes = %q, want %q", got, want)
	}
}

func TestNewAssignsDistinctIDs(t *testing.T) {
	c1, err := New(storage.NullDriver{}, DefaultRuntimeOptions(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c1.send.Close()
	c2, err := New(storage.NullDriver{}, DefaultRuntimeOptions(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c2.send.Close()

	if c1.ID() == c2.ID() {
		t.Error("two containers were assigned the same ID")
	}
	for _, r := range c1.ID() {
		if r == '-' {
			t.Errorf("ID() = %q still contains a dash", c1.ID())
			break
		}
	}
}

func TestAssertHostSideFailsFromAnotherProcess(t *testing.T) {
	c, err := New(storage.NullDriver{}, DefaultRuntimeOptions(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.send.Close()

	c.pid = os.Getpid() + 1 // simulate a handle used from a different process
	if err := c.assertHostSide(); err != ErrWrongProcess {
		t.Errorf("assertHostSide() = %v, want %v", err, ErrWrongProcess)
	}
}

func TestWaitForContainerBeforeStart(t *testing.T) {
	c, err := New(storage.NullDriver{}, DefaultRuntimeOptions(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.send.Close()

	if err := c.WaitForContainer(); err != ErrNotStarted {
		t.Errorf("WaitForContainer() before Start = %v, want %v", err, ErrNotStarted)
	}
}
