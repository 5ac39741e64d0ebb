package runtime

import (
	"testing"

	"github.com/GuillemCastro/libcontainer-go/ipc"
	"github.com/GuillemCastro/libcontainer-go/storage"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if opts.User != "root" || opts.Group != "root" || opts.Cwd != "/" {
		t.Errorf("DefaultOptions = %+v, want User/Group=root, Cwd=/", opts)
	}
}

func TestDefaultHostnameDerivedFromID(t *testing.T) {
	id := "0123456789abcdef0123456789abcdef"
	if got, want := defaultHostname(id), "0123456789ab"; got != want {
		t.Errorf("defaultHostname(%q) = %q, want %q", id, got, want)
	}
}

func TestDefaultHostnameShortID(t *testing.T) {
	if got, want := defaultHostname("short"), "short"; got != want {
		t.Errorf("defaultHostname(%q) = %q, want %q", "short", got, want)
	}
}

func TestNewUsesExplicitHostname(t *testing.T) {
	r := New("deadbeef", storage.NullDriver{}, nil, Options{Hostname: "custom"}, nil)
	if r.Hostname != "custom" {
		t.Errorf("Hostname = %q, want %q", r.Hostname, "custom")
	}
}

func TestSplitKV(t *testing.T) {
	cases := []struct {
		in       string
		key, val string
		wantOK   bool
	}{
		{"KEY=value", "KEY", "value", true},
		{"KEY=a=b", "KEY", "a=b", true},
		{"noequals", "", "", false},
		{"", "", "", false},
	}
	for _, c := range cases {
		k, v, ok := splitKV(c.in)
		if ok != c.wantOK || k != c.key || v != c.val {
			t.Errorf("splitKV(%q) = (%q, %q, %v), want (%q, %q, %v)", c.in, k, v, ok, c.key, c.val, c.wantOK)
		}
	}
}

func TestInjectEnvironmentLastWinsOnDuplicateKeys(t *testing.T) {
	r := New("deadbeef0000", storage.NullDriver{}, nil, Options{User: "root", Hostname: "box"}, nil)

	// HOSTNAME is both user-supplied and injected; the injected value
	// must win regardless of map iteration order.
	env := r.injectEnvironment([]string{"HOSTNAME=bogus", "CUSTOM=1"})

	got := map[string]string{}
	for _, kv := range env {
		k, v, ok := splitKV(kv)
		if ok {
			got[k] = v
		}
	}

	if got["HOSTNAME"] != "box" {
		t.Errorf("HOSTNAME = %q, want %q (injected value should win)", got["HOSTNAME"], "box")
	}
	if got["CUSTOM"] != "1" {
		t.Errorf("CUSTOM = %q, want %q (user entries should survive)", got["CUSTOM"], "1")
	}
	if _, ok := got["container_uuid"]; !ok {
		t.Error("expected container_uuid to be injected")
	}
}

func TestEventLoopStopsOnAction(t *testing.T) {
	producer, consumerFile, err := ipc.NewPair()
	if err != nil {
		t.Fatalf("NewPair: %v", err)
	}
	defer producer.Close()

	r := New("deadbeef0001", storage.NullDriver{}, ipc.FromFile(consumerFile), Options{}, nil)

	done := make(chan error, 1)
	go func() { done <- r.eventLoop() }()

	if err := producer.Send(ipc.Stop()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if err := <-done; err != nil {
		t.Errorf("eventLoop returned %v, want nil after a Stop action", err)
	}
}
