package runtime

import "testing"

func TestProcStatPath(t *testing.T) {
	if got, want := procStatPath(1234), "/proc/1234/stat"; got != want {
		t.Errorf("procStatPath(1234) = %q, want %q", got, want)
	}
}

func TestReaperTrackAndStop(t *testing.T) {
	r := NewReaper(nil)
	r.Track(1)
	r.Track(2)

	if len(r.tracked) != 2 {
		t.Fatalf("tracked = %d entries, want 2", len(r.tracked))
	}

	r.Start()
	r.Stop() // must return promptly rather than block forever
}

func TestIsZombieForNonexistentPID(t *testing.T) {
	r := NewReaper(nil)
	r.Track(1 << 30) // a PID that cannot exist
	if r.isZombie(1 << 30) {
		t.Error("isZombie reported true for a PID that cannot exist")
	}
	if _, tracked := r.tracked[1<<30]; tracked {
		t.Error("isZombie should drop a PID it failed to stat")
	}
}
