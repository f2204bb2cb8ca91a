package config

import (
	"os"
	"strconv"
	"strings"

	"padswitch/internal/perrors"
)

// LockExists reports whether the dirty-shutdown lockfile is present.
func LockExists() (bool, error) {
	path, err := LockPath()
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, perrors.IO("checking lockfile", err)
	}
	return true, nil
}

// WriteLock writes the current process id into the lockfile.
func WriteLock() error {
	path, err := LockPath()
	if err != nil {
		return err
	}
	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(path, []byte(pid), 0o644); err != nil {
		return perrors.IO("writing lockfile", err)
	}
	return nil
}

// RemoveLock deletes the lockfile, idempotently.
func RemoveLock() error {
	path, err := LockPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return perrors.IO("removing lockfile", err)
	}
	return nil
}

// ReadLockPID returns the process id recorded in an existing lockfile, if
// parseable. Used only for diagnostics; recovery does not depend on it.
func ReadLockPID() (int, error) {
	path, err := LockPath()
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, perrors.IO("reading lockfile", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, perrors.Serialization("parsing lockfile pid", err)
	}
	return pid, nil
}
