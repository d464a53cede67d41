package out

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	reconcileout "tmk/internal/modules/reconcile/port/out"
)

const hookMarker = "# installed by tmk"

// FileHookInstaller writes the two commit hook shims. Existing hooks
// not carrying the tmk marker are left alone and reported as an error
// so a foreign hook is never clobbered.
type FileHookInstaller struct {
	// binPath is the tmk executable the shims invoke.
	binPath string
}

func NewFileHookInstaller(binPath string) *FileHookInstaller {
	return &FileHookInstaller{binPath: binPath}
}

var _ reconcileout.HookInstaller = (*FileHookInstaller)(nil)

func (i *FileHookInstaller) Install(hooksDir string) ([]string, error) {
	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		return nil, fmt.Errorf("create hooks dir: %w", err)
	}
	hooks := []struct {
		name string
		body string
	}{
		{"prepare-commit-msg", fmt.Sprintf("#!/bin/sh\n%s\n%q hook quote \"$1\" || true\n", hookMarker, i.binPath)},
		{"post-commit", fmt.Sprintf("#!/bin/sh\n%s\n%q hook attribute || true\n", hookMarker, i.binPath)},
	}
	written := make([]string, 0, len(hooks))
	for _, h := range hooks {
		path := filepath.Join(hooksDir, h.name)
		existing, err := os.ReadFile(path)
		if err == nil && !strings.Contains(string(existing), hookMarker) {
			return written, fmt.Errorf("hook %s already exists and was not installed by tmk", path)
		}
		if err != nil && !os.IsNotExist(err) {
			return written, fmt.Errorf("inspect hook %s: %w", path, err)
		}
		if err := os.WriteFile(path, []byte(h.body), 0o755); err != nil {
			return written, fmt.Errorf("write hook %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}
