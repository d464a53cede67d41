package out

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	trackerout "tmk/internal/modules/tracker/port/out"
)

// FileDaemonStore keeps one tracker instance's runtime artifacts under
// its own directory, so several editor instances can run daemons side
// by side on one host.
type FileDaemonStore struct {
	pidPath    string
	socketPath string
	logPath    string
}

func NewFileDaemonStore(runtimeDir, instance string) trackerout.DaemonStore {
	base := filepath.Join(runtimeDir, instance)
	return &FileDaemonStore{
		pidPath:    filepath.Join(base, "tracker.pid"),
		socketPath: filepath.Join(base, "tracker.sock"),
		logPath:    filepath.Join(base, "tracker.log"),
	}
}

func (s *FileDaemonStore) WritePID(_ context.Context, pid int) error {
	if err := os.MkdirAll(filepath.Dir(s.pidPath), 0o755); err != nil {
		return fmt.Errorf("create runtime dir: %w", err)
	}
	return os.WriteFile(s.pidPath, []byte(strconv.Itoa(pid)), 0o644)
}

func (s *FileDaemonStore) ReadPID(_ context.Context) (int, error) {
	raw, err := os.ReadFile(s.pidPath)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("decode tracker pid: %w", err)
	}
	return pid, nil
}

func (s *FileDaemonStore) ClearPID(_ context.Context) error {
	if err := os.Remove(s.pidPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove tracker pid: %w", err)
	}
	return nil
}

func (s *FileDaemonStore) SocketPath() string {
	return s.socketPath
}

func (s *FileDaemonStore) LogPath() string {
	return s.logPath
}
