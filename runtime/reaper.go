package runtime

import (
	"strconv"
	"sync"
	"time"

	"github.com/c9s/goprocinfo/linux"
	hclog "github.com/hashicorp/go-hclog"
	"golang.org/x/sys/unix"
)

// reapInterval is how often the reaper polls /proc for zombie
// children. ExecFork commands are expected to be short shell
// invocations inside a container's event loop, not long-running
// daemons, so sub-second polling is cheap and keeps zombie lifetime
// bounded without a SIGCHLD handler.
const reapInterval = 500 * time.Millisecond

// Reaper collects exited ExecFork children: nothing else in this
// system calls wait4 on those PIDs, so left unhandled they accumulate
// as zombies until the container itself exits. The reaper checks each
// tracked PID's /proc/<pid>/stat state field for 'Z' before calling
// wait4. Only PIDs passed to Track are reaped; orphaned descendants of
// an ExecFork'd command that the runtime inherits as PID 1 are not.
type Reaper struct {
	logger hclog.Logger

	mu      sync.Mutex
	tracked map[int]struct{}
	stop    chan struct{}
	done    chan struct{}
}

// NewReaper builds a reaper that has not yet started polling.
func NewReaper(logger hclog.Logger) *Reaper {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Reaper{
		logger:  logger.Named("reaper"),
		tracked: make(map[int]struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Track adds pid to the set of children the reaper watches for exit.
func (r *Reaper) Track(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracked[pid] = struct{}{}
}

// Start begins the polling loop in a background goroutine.
func (r *Reaper) Start() {
	go r.loop()
}

// Stop signals the polling loop to exit and waits for it to do so.
func (r *Reaper) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Reaper) loop() {
	defer close(r.done)
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.reapZombies()
		}
	}
}

func (r *Reaper) reapZombies() {
	r.mu.Lock()
	pids := make([]int, 0, len(r.tracked))
	for pid := range r.tracked {
		pids = append(pids, pid)
	}
	r.mu.Unlock()

	for _, pid := range pids {
		if !r.isZombie(pid) {
			continue
		}
		var status unix.WaitStatus
		reaped, err := unix.Wait4(pid, &status, unix.WNOHANG, nil)
		if err != nil {
			r.logger.Debug("wait4 failed", "pid", pid, "error", err)
			continue
		}
		if reaped == pid {
			r.logger.Debug("reaped zombie child", "pid", pid)
			r.mu.Lock()
			delete(r.tracked, pid)
			r.mu.Unlock()
		}
	}
}

// isZombie reports whether pid's /proc/<pid>/stat state field is 'Z'.
func (r *Reaper) isZombie(pid int) bool {
	stat, err := linux.ReadProcessStat(procStatPath(pid))
	if err != nil {
		// Process already gone (reaped by someone else, or exited
		// before the first poll caught it as a zombie); drop it.
		r.mu.Lock()
		delete(r.tracked, pid)
		r.mu.Unlock()
		return false
	}
	return stat.State == "Z"
}

func procStatPath(pid int) string {
	return "/proc/" + strconv.Itoa(pid) + "/stat"
}
