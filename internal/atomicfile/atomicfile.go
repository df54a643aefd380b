//go:build unix

// Package atomicfile writes files that readers see either in full or
// not at all.
package atomicfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned by Create when another writer holds the
// destination.
var ErrLocked = errors.New("destination is being written by another process")

// File is a pending replacement of a destination file. Writes go to
// a temporary file in the destination's directory, which Commit
// renames into place.
//
// While a File is open, it holds an exclusive advisory lock on
// "<path>.lock", so that concurrent writers fail fast instead of
// racing to rename.
type File struct {
	path string
	perm fs.FileMode
	tmp  *os.File
	lock *os.File
	done bool
}

// Create starts writing a replacement for path, which will have
// permissions perm once committed. The parent directory is created if
// needed.
func Create(path string, perm fs.FileMode) (*File, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	lock, err := os.OpenFile(path+".lock", os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		lock.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", path, ErrLocked)
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		unlock(lock)
		return nil, err
	}
	return &File{
		path: path,
		perm: perm,
		tmp:  tmp,
		lock: lock,
	}, nil
}

// Name returns the destination path.
func (f *File) Name() string { return f.path }

func (f *File) Write(bs []byte) (int, error) {
	if f.done {
		return 0, os.ErrClosed
	}
	return f.tmp.Write(bs)
}

// Commit replaces the destination with what was written, and
// releases the lock.
func (f *File) Commit() error {
	if f.done {
		return os.ErrClosed
	}
	f.done = true
	defer unlock(f.lock)

	err := f.tmp.Chmod(f.perm)
	if err == nil {
		err = f.tmp.Sync()
	}
	if cerr := f.tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(f.tmp.Name(), f.path)
	}
	if err != nil {
		os.Remove(f.tmp.Name())
		return err
	}
	return nil
}

// Abort discards what was written and releases the lock, leaving the
// destination untouched. Abort after Commit does nothing, so it is
// safe to defer.
func (f *File) Abort() error {
	if f.done {
		return nil
	}
	f.done = true
	defer unlock(f.lock)
	f.tmp.Close()
	return os.Remove(f.tmp.Name())
}

func unlock(lock *os.File) {
	unix.Flock(int(lock.Fd()), unix.LOCK_UN)
	lock.Close()
}
