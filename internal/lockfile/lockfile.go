// Package lockfile guards the LeadPipe state directory so that only one instance runs
// the follow-up loop and the outbox sender against it.
//
// The lock is an flock on a file inside the directory; the kernel drops it when the
// process exits, so a crash never leaves the directory locked.
package lockfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// LockFileName is the name of the lock file created in the state directory
const LockFileName = "leadpipe.lock"

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
}

// AcquireLock takes an exclusive lock on stateDir, creating the directory if needed.
// A *LockError describes the holder when another process owns the lock.
func AcquireLock(stateDir string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder := describeHolder(lockPath)
		slog.Error("lockfile.AcquireLock: state directory is locked", "lock_path", lockPath, "holder", holder)
		return nil, &LockError{LockPath: lockPath, Holder: holder, Cause: err}
	}

	// truncate only once the lock is ours, so a failed attempt keeps the holder's pid
	if err := file.Truncate(0); err == nil {
		_, err = file.WriteAt([]byte("pid="+strconv.Itoa(os.Getpid())+"\n"), 0)
		if err != nil {
			slog.Warn("lockfile.AcquireLock: failed to record pid", "error", err, "lock_path", lockPath)
		}
	}

	slog.Info("lockfile.AcquireLock: acquired", "lock_path", lockPath, "pid", os.Getpid())
	return &Lock{file: file, path: lockPath}, nil
}

// Release drops the lock and removes the lock file. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Warn("Lock.Release: unlock failed", "error", err, "lock_path", l.path)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Lock.Release: remove failed", "error", err, "lock_path", l.path)
	}
	err := l.file.Close()
	l.file = nil
	slog.Info("Lock.Release: released", "lock_path", l.path)
	return err
}

// LockError reports that another process holds the state directory.
type LockError struct {
	LockPath string
	Holder   string
	Cause    error
}

func (e *LockError) Error() string {
	msg := "another LeadPipe instance is using this state directory (lock file " + e.LockPath + ")"
	if e.Holder != "" {
		msg += ": " + e.Holder
	}
	return msg
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

// describeHolder reads the pid recorded in the lock file and reports whether it is alive.
func describeHolder(lockPath string) string {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return ""
	}
	pid := parsePID(string(data))
	if pid <= 0 {
		return ""
	}
	if processAlive(pid) {
		return fmt.Sprintf("PID %d (running)", pid)
	}
	return fmt.Sprintf("PID %d (not running)", pid)
}

func parsePID(content string) int {
	const prefix = "pid="
	i := strings.Index(content, prefix)
	if i < 0 {
		return 0
	}
	rest := content[i+len(prefix):]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	pid, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0
	}
	return pid
}

// processAlive sends signal 0, which only checks that the process exists.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
