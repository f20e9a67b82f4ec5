package session

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mirror-control/mcc/internal/mirror"
	"github.com/mirror-control/mcc/internal/mrofile"
)

// SaveCommandFile writes c to path as an .mro record. It needs no open
// device.
func (s *Session) SaveCommandFile(ctx context.Context, c mirror.Command, path string, overwrite bool) (err error) {
	start := time.Now()
	defer func() {
		s.record(ctx, "file.save", map[string]interface{}{"path": path, "overwrite": overwrite}, err, start)
	}()

	if err := checkExtension(path); err != nil {
		return err
	}
	return mrofile.WriteFile(path, c, overwrite)
}

// LoadCommandFile reads and validates the command stored at path.
func (s *Session) LoadCommandFile(ctx context.Context, path string) (c mirror.Command, err error) {
	start := time.Now()
	defer func() { s.record(ctx, "file.load", map[string]interface{}{"path": path}, err, start) }()

	if err := checkExtension(path); err != nil {
		return mirror.Command{}, err
	}
	return mrofile.ReadFile(path)
}

func checkExtension(path string) error {
	if !strings.EqualFold(filepath.Ext(path), mrofile.Extension) {
		return fmt.Errorf("%w: %q lacks the %s suffix", mirror.ErrFileFormat, path, mrofile.Extension)
	}
	return nil
}
