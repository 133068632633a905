package history

import (
	"fmt"
	"os"
	"path/filepath"
)

// EngineLock is held, shared, by every process that runs scripts against
// a database. Its lock file sits next to the database file.
type EngineLock struct {
	f *os.File
}

// AcquireEngineLock takes the engine lock for the database at dbPath.
// sole reports whether no other process held the lock at acquisition,
// which is the only time ReconcileOrphans may run. The lock is held
// shared on return.
func AcquireEngineLock(dbPath string) (lock *EngineLock, sole bool, err error) {
	path := dbPath + ".lock"

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, false, fmt.Errorf("create lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, false, fmt.Errorf("open engine lock: %w", err)
	}

	sole, err = tryLockExclusive(f)
	if err != nil {
		_ = f.Close()
		return nil, false, fmt.Errorf("lock %s: %w", path, err)
	}

	if sole {
		err = downgrade(f)
	} else {
		err = lockShared(f)
	}

	if err != nil {
		_ = f.Close()
		return nil, false, fmt.Errorf("lock %s: %w", path, err)
	}

	return &EngineLock{f: f}, sole, nil
}

// Release drops the lock. It is safe to call on a nil lock.
func (l *EngineLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}

	_ = unlock(l.f)
	err := l.f.Close()
	l.f = nil

	return err
}
