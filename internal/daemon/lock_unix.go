//go:build darwin || linux

package daemon

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// pidLock holds an exclusive, non-blocking advisory lock on a PID file,
// released by Unlock. It is the daemon's singleton-enforcement mechanism:
// only one process can hold the lock at a time, and the lock is
// automatically released if the holding process dies, so a stale PID file
// left behind by a crash never blocks a fresh daemon start.
type pidLock struct {
	file *os.File
	path string
}

// ErrAlreadyRunning is returned by acquirePIDLock when another live process
// already holds the lock.
type ErrAlreadyRunning struct {
	PID int
}

func (e *ErrAlreadyRunning) Error() string {
	return fmt.Sprintf("daemon already running (pid %d)", e.PID)
}

// acquirePIDLock opens (creating if needed) the PID file at path and takes
// an exclusive flock on it. If another live process holds the lock, it
// returns *ErrAlreadyRunning rather than retrying; a dead holder's stale
// file is removed and the lock retried once.
func acquirePIDLock(path string) (*pidLock, error) {
	lock, err := tryAcquire(path)
	if err == nil {
		return lock, nil
	}

	pid := readPIDFile(path)
	if pid > 0 && processAlive(pid) {
		return nil, &ErrAlreadyRunning{PID: pid}
	}

	os.Remove(path)
	time.Sleep(50 * time.Millisecond)
	return tryAcquire(path)
}

func tryAcquire(path string) (*pidLock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open pid file: %w", err)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		return nil, fmt.Errorf("flock pid file: %w", err)
	}
	if err := file.Truncate(0); err != nil {
		file.Close()
		return nil, err
	}
	if _, err := file.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		file.Close()
		return nil, err
	}
	return &pidLock{file: file, path: path}, nil
}

// Unlock releases the flock and removes the PID file. Safe to call more
// than once.
func (l *pidLock) Unlock() error {
	if l == nil || l.file == nil {
		return nil
	}
	unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	l.file.Close()
	l.file = nil
	return os.Remove(l.path)
}

func readPIDFile(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return unix.Kill(pid, 0) == nil
}
