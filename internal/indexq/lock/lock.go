package lock

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/G-Research/indexq/internal/common/util"
)

// Suffix of the file whose flock serialises acquirers of the lock.
const guardSuffix = ".guard"

// ProcessLivenessChecker reports whether the process with the given id is running.
// ok is false when liveness cannot be determined.
type ProcessLivenessChecker interface {
	IsAlive(pid int) (alive bool, ok bool)
}

// UnixLivenessChecker checks a process by sending it signal 0.
type UnixLivenessChecker struct{}

func (UnixLivenessChecker) IsAlive(pid int) (bool, bool) {
	if pid <= 0 {
		return false, true
	}
	err := unix.Kill(pid, 0)
	switch {
	case err == nil:
		return true, true
	case errors.Is(err, unix.ESRCH):
		return false, true
	case errors.Is(err, unix.EPERM):
		// Exists, owned by another user
		return true, true
	default:
		return false, false
	}
}

// Lock is a single-host mutual exclusion gate backed by a file holding the holder's process id.
// A lock whose holder is no longer running is stale and is reclaimed by the next Acquire.
// Without a ProcessLivenessChecker, any existing lock file blocks.
type Lock struct {
	path     string
	pid      int
	liveness ProcessLivenessChecker
}

// New returns a Lock on path that records the current process id. liveness may be nil.
func New(path string, liveness ProcessLivenessChecker) *Lock {
	return &Lock{
		path:     path,
		pid:      os.Getpid(),
		liveness: liveness,
	}
}

func (l *Lock) Path() string {
	return l.path
}

// Acquire takes the lock, returning false if another live process holds it. Acquirers are serialised by
// an flock on a guard file next to the lock, so checking a stale holder and replacing its file is one step.
func (l *Lock) Acquire() (bool, error) {
	unguard, err := l.guard()
	if err != nil {
		return false, err
	}
	defer unguard()

	created, err := l.create()
	if err != nil || created {
		return created, err
	}

	locked, err := l.IsLocked()
	if err != nil {
		return false, err
	}
	if locked {
		log.Errorf("Queue already locked: %s", l.path)
		return false, nil
	}
	holder, _ := l.Holder()
	log.Warnf("Reclaiming stale queue lock %s held by process %d", l.path, holder)
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return false, errors.WithStack(err)
	}
	return l.create()
}

// create writes the lock file if it does not exist yet.
func (l *Lock) create() (bool, error) {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if os.IsExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.WithStack(err)
	}
	_, werr := f.WriteString(strconv.Itoa(l.pid))
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(l.path)
		if werr == nil {
			werr = cerr
		}
		return false, errors.WithMessagef(werr, "writing lock file %s", l.path)
	}
	log.Debugf("Acquired queue lock %s for process %d", l.path, l.pid)
	return true, nil
}

// guard blocks until this process holds an exclusive flock on the guard file and returns its release.
func (l *Lock) guard() (func(), error) {
	path := l.path + guardSuffix
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := flock(f, unix.LOCK_EX); err != nil {
		util.CloseResource(path, f)
		return nil, errors.WithMessagef(err, "locking %s", path)
	}
	return func() {
		if err := flock(f, unix.LOCK_UN); err != nil {
			log.WithError(err).Warnf("Failed to unlock %s", path)
		}
		util.CloseResource(path, f)
	}, nil
}

func flock(f *os.File, how int) error {
	for {
		err := unix.Flock(int(f.Fd()), how)
		if err != unix.EINTR {
			return err
		}
	}
}

// IsLocked reports whether the lock file exists and its holder is alive.
// If liveness cannot be determined, existence of the file alone counts as locked.
func (l *Lock) IsLocked() (bool, error) {
	holder, err := l.Holder()
	if os.IsNotExist(errors.Cause(err)) {
		return false, nil
	}
	if l.liveness == nil {
		return true, nil
	}
	if err != nil {
		// The file exists but does not contain a usable pid; it may be mid-write by another acquirer.
		return true, nil
	}
	alive, ok := l.liveness.IsAlive(holder)
	if !ok {
		return true, nil
	}
	return alive, nil
}

// Holder returns the process id recorded in the lock file.
func (l *Lock) Holder() (int, error) {
	b, err := os.ReadFile(l.path)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, errors.Wrapf(err, "lock file %s does not contain a process id", l.path)
	}
	return pid, nil
}

// Release removes the lock file. Releasing an unlocked lock succeeds.
func (l *Lock) Release() (bool, error) {
	log.Debugf("Unlocking queue lock %s", l.path)
	err := os.Remove(l.path)
	if err == nil || os.IsNotExist(err) {
		return true, nil
	}
	log.WithError(err).Errorf("Couldn't unlock - remove %s", l.path)
	return false, errors.WithStack(err)
}
