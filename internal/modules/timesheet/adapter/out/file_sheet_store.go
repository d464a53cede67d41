package out

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"tmk/internal/modules/timesheet/domain"
	sheetout "tmk/internal/modules/timesheet/port/out"
)

const (
	lockDeadline   = 2 * time.Second
	lockRetryDelay = 50 * time.Millisecond
)

// FileSheetStore keeps the sheet in a single text file. Rewrites go
// through a temp file plus rename so a failed write never truncates the
// sheet, and writers are serialized with flock on a sibling lock file.
type FileSheetStore struct {
	path     string
	lockPath string
}

func NewFileSheetStore(path string) sheetout.SheetStore {
	return &FileSheetStore{path: path, lockPath: path + ".lock"}
}

func (s *FileSheetStore) Path() string {
	return s.path
}

func (s *FileSheetStore) Load(_ context.Context) (domain.Sheet, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Sheet{}, nil
		}
		return domain.Sheet{}, fmt.Errorf("%w: read %s: %v", domain.ErrSheetUnavailable, s.path, err)
	}
	return domain.ParseSheet(string(raw)), nil
}

func (s *FileSheetStore) Update(ctx context.Context, fn func(*domain.Sheet) error) (domain.Sheet, error) {
	unlock, err := s.acquireLock(ctx)
	if err != nil {
		return domain.Sheet{}, err
	}
	defer unlock()

	sheet, err := s.Load(ctx)
	if err != nil {
		return domain.Sheet{}, err
	}
	if err := fn(&sheet); err != nil {
		return domain.Sheet{}, err
	}
	if err := s.replace(sheet.Encode()); err != nil {
		return domain.Sheet{}, err
	}
	return sheet, nil
}

func (s *FileSheetStore) acquireLock(ctx context.Context) (func(), error) {
	file, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open lock %s: %v", domain.ErrSheetUnavailable, s.lockPath, err)
	}
	deadline := time.Now().Add(lockDeadline)
	for {
		err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return func() {
				_ = syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
				_ = file.Close()
			}, nil
		}
		if err != syscall.EWOULDBLOCK && err != syscall.EAGAIN {
			_ = file.Close()
			return nil, fmt.Errorf("%w: flock: %v", domain.ErrSheetUnavailable, err)
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			_ = file.Close()
			return nil, domain.ErrLockTimeout
		}
		time.Sleep(lockRetryDelay)
	}
}

func (s *FileSheetStore) replace(content string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create sheet dir: %v", domain.ErrSheetUnavailable, err)
	}
	tmp, err := os.CreateTemp(dir, ".timesheet-*")
	if err != nil {
		return fmt.Errorf("%w: create temp sheet: %v", domain.ErrSheetUnavailable, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: write temp sheet: %v", domain.ErrSheetUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: close temp sheet: %v", domain.ErrSheetUnavailable, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: replace sheet: %v", domain.ErrSheetUnavailable, err)
	}
	return nil
}
