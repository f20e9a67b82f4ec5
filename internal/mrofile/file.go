package mrofile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"

	"github.com/mirror-control/mcc/internal/mirror"
)

// errnoKinds maps storage faults to their specific file error kind.
var errnoKinds = []struct {
	errno syscall.Errno
	kind  error
}{
	{syscall.EACCES, mirror.ErrFilePermission},
	{syscall.EPERM, mirror.ErrFilePermission},
	{syscall.EAGAIN, mirror.ErrFileWouldBlock},
	{syscall.EBADF, mirror.ErrFileBadDescriptor},
	{syscall.EINVAL, mirror.ErrFileInvalidArgument},
	{syscall.EMFILE, mirror.ErrFileTooManyOpen},
	{syscall.ENFILE, mirror.ErrFileTooManyOpen},
	{syscall.ENOENT, mirror.ErrFileNotFound},
	{syscall.ENOMEM, mirror.ErrFileOutOfMemory},
	{syscall.ENOSPC, mirror.ErrFileNoSpace},
}

// classify wraps a storage error in ErrFileIO and, when recognized, its
// specific kind.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w: %v", mirror.ErrFileIO, mirror.ErrFileNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w: %v", mirror.ErrFileIO, mirror.ErrFilePermission, err)
	}
	for _, k := range errnoKinds {
		if errors.Is(err, k.errno) {
			return fmt.Errorf("%w: %w: %v", mirror.ErrFileIO, k.kind, err)
		}
	}
	return fmt.Errorf("%w: %v", mirror.ErrFileIO, err)
}

// ReadFile decodes the command stored at path.
func ReadFile(path string) (mirror.Command, error) {
	f, err := os.Open(path)
	if err != nil {
		return mirror.Command{}, classify(err)
	}
	defer f.Close()
	return Decode(f)
}

// WriteFile stores c at path. With overwrite false an existing path fails
// with ErrFileExists and is left untouched.
func WriteFile(path string, c mirror.Command, overwrite bool) error {
	buf, err := Marshal(c)
	if err != nil {
		return err
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", mirror.ErrFileExists, path)
		}
		return classify(err)
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return classify(err)
	}
	return classify(f.Close())
}
