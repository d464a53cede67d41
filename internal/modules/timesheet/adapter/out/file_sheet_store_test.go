package out

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"tmk/internal/modules/timesheet/domain"
)

func TestLoadMissingFileIsEmptySheet(t *testing.T) {
	t.Parallel()
	store := NewFileSheetStore(filepath.Join(t.TempDir(), "timesheet.tmk"))
	sheet, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(sheet.Lines) != 0 {
		t.Errorf("got %d lines, want empty sheet", len(sheet.Lines))
	}
}

func TestUpdateCreatesAndPersists(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "timesheet.tmk")
	store := NewFileSheetStore(path)
	key := domain.SectionKey{Host: "workbox", User: "alice"}

	_, err := store.Update(context.Background(), func(sheet *domain.Sheet) error {
		sheet.ApplyDelta(key, "website", "redesign", 120, 1700000000)
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	reloaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	entry, ok := reloaded.Find(key, "website", "redesign")
	if !ok {
		t.Fatal("entry missing after reload")
	}
	if entry.Accumulated != 120 || entry.Start != 1700000000 {
		t.Errorf("entry = %+v", entry)
	}
}

func TestUpdatePreservesForeignSections(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "timesheet.tmk")
	original := "[workbox:alice]\nwebsite,redesign,1000,60,0,open\n[laptop:bob]\napi,  oddly spaced line kept verbatim\n"
	if err := os.WriteFile(path, []byte(original), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewFileSheetStore(path)
	key := domain.SectionKey{Host: "workbox", User: "alice"}
	_, err := store.Update(context.Background(), func(sheet *domain.Sheet) error {
		sheet.ApplyDelta(key, "website", "redesign", 40, 2000)
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "api,  oddly spaced line kept verbatim") {
		t.Error("foreign section line was reformatted")
	}
	if !strings.Contains(string(raw), "website,redesign,1000,100,0,open") {
		t.Errorf("active entry not updated:\n%s", raw)
	}
}

func TestUpdateCallbackErrorLeavesFileUntouched(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "timesheet.tmk")
	original := "[workbox:alice]\nwebsite,redesign,1000,60,0,open\n"
	if err := os.WriteFile(path, []byte(original), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewFileSheetStore(path)
	boom := errors.New("boom")
	_, err := store.Update(context.Background(), func(*domain.Sheet) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("Update err = %v, want callback error", err)
	}

	raw, _ := os.ReadFile(path)
	if string(raw) != original {
		t.Errorf("file changed after failed update:\n%s", raw)
	}
}

func TestUpdateTimesOutOnHeldLock(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "timesheet.tmk")
	store := NewFileSheetStore(path)

	lock, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Close()
	if err := syscall.Flock(int(lock.Fd()), syscall.LOCK_EX); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = syscall.Flock(int(lock.Fd()), syscall.LOCK_UN) }()

	_, err = store.Update(context.Background(), func(*domain.Sheet) error { return nil })
	if !errors.Is(err, domain.ErrLockTimeout) {
		t.Fatalf("Update err = %v, want ErrLockTimeout", err)
	}
}
