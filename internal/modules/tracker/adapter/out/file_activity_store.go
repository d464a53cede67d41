package out

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tmk/internal/modules/tracker/domain"
	trackerout "tmk/internal/modules/tracker/port/out"
	"tmk/internal/platform/id"
)

// FileActivityStore appends role transitions and flush events to a
// JSONL file shared by every instance in the runtime dir.
type FileActivityStore struct {
	path string
	ids  id.Generator
}

func NewFileActivityStore(runtimeDir string, ids id.Generator) trackerout.ActivityStore {
	return &FileActivityStore{path: filepath.Join(runtimeDir, "activity.log"), ids: ids}
}

func (s *FileActivityStore) Append(_ context.Context, event domain.ActivityEvent) error {
	if event.ID == "" {
		event.ID = s.ids.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create activity dir: %w", err)
	}
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open activity log: %w", err)
	}
	defer file.Close()
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode activity event: %w", err)
	}
	if _, err := file.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write activity log: %w", err)
	}
	return nil
}

func (s *FileActivityStore) Tail(_ context.Context, limit int) ([]domain.ActivityEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.ActivityEvent{}, nil
		}
		return nil, fmt.Errorf("open activity log: %w", err)
	}
	defer file.Close()

	buffer := make([]domain.ActivityEvent, 0, limit)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		event := domain.ActivityEvent{}
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		if len(buffer) < limit {
			buffer = append(buffer, event)
			continue
		}
		copy(buffer, buffer[1:])
		buffer[len(buffer)-1] = event
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan activity log: %w", err)
	}
	return buffer, nil
}
