package task

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const watermarkFile = "highwatermark.json"

// FileStore keeps one task_<id>.json per record under a directory, plus a
// highwatermark.json holding the last allocated id as a bare integer. The
// directory is the unit of durability: reopening it yields the same records
// and the same allocator position.
type FileStore struct {
	dir string

	mu   sync.Mutex
	high int
}

// OpenFileStore opens (creating if needed) the store at dir. When no
// watermark file exists the allocator resumes from the highest id found among
// existing records, or zero for an empty directory.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create task dir: %w", err)
	}
	s := &FileStore{dir: dir}

	raw, err := os.ReadFile(filepath.Join(dir, watermarkFile))
	switch {
	case err == nil:
		n, perr := strconv.Atoi(strings.TrimSpace(string(raw)))
		if perr != nil {
			return nil, fmt.Errorf("parse %s: %w", watermarkFile, perr)
		}
		s.high = n
	case os.IsNotExist(err):
		max, serr := s.scanMaxID()
		if serr != nil {
			return nil, serr
		}
		s.high = max
	default:
		return nil, fmt.Errorf("read %s: %w", watermarkFile, err)
	}
	return s, nil
}

func (s *FileStore) scanMaxID() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("scan task dir: %w", err)
	}
	max := 0
	for _, e := range entries {
		id, ok := recordID(e.Name())
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(id); err == nil && n > max {
			max = n
		}
	}
	return max, nil
}

func recordID(name string) (string, bool) {
	if !strings.HasPrefix(name, "task_") || !strings.HasSuffix(name, ".json") {
		return "", false
	}
	return strings.TrimSuffix(strings.TrimPrefix(name, "task_"), ".json"), true
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, "task_"+id+".json")
}

func (s *FileStore) Allocate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.high + 1
	if err := os.WriteFile(filepath.Join(s.dir, watermarkFile), []byte(strconv.Itoa(next)), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", watermarkFile, err)
	}
	s.high = next
	return strconv.Itoa(next), nil
}

func (s *FileStore) Load(id string) (Task, error) {
	raw, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("read task %s: %w", id, err)
	}
	var t Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return Task{}, fmt.Errorf("decode task %s: %w", id, err)
	}
	return t, nil
}

func (s *FileStore) Save(t Task) error {
	raw, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encode task %s: %w", t.ID, err)
	}
	if err := os.WriteFile(s.path(t.ID), raw, 0o644); err != nil {
		return fmt.Errorf("write task %s: %w", t.ID, err)
	}
	return nil
}

func (s *FileStore) Delete(id string) (bool, error) {
	err := os.Remove(s.path(id))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete task %s: %w", id, err)
	}
	return true, nil
}

func (s *FileStore) List() ([]Task, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list task dir: %w", err)
	}
	var out []Task
	for _, e := range entries {
		id, ok := recordID(e.Name())
		if !ok {
			continue
		}
		t, err := s.Load(id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return idLess(out[i].ID, out[j].ID) })
	return out, nil
}

func idLess(a, b string) bool {
	na, ea := strconv.Atoi(a)
	nb, eb := strconv.Atoi(b)
	if ea == nil && eb == nil {
		return na < nb
	}
	return a < b
}

func (s *FileStore) Close() error { return nil }

var _ Store = (*FileStore)(nil)
