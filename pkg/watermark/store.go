package watermark

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Store persists the highest row id already considered for notification.
type Store interface {
	// Save persists the watermark
	Save(ctx context.Context, id int64) error

	// Load returns the saved watermark. ok is false when nothing was saved yet.
	Load(ctx context.Context) (id int64, ok bool, err error)
}

// MemoryStore keeps the watermark for the life of the process only.
type MemoryStore struct {
	mu  sync.Mutex
	id  int64
	set bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id, s.set = id, true
	return nil
}

func (s *MemoryStore) Load(ctx context.Context) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.set, nil
}

// FileStore keeps the watermark as a decimal number in a local file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save writes to a temp file and renames it so a crash never leaves a torn value.
func (s *FileStore) Save(ctx context.Context, id int64) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".watermark-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(strconv.FormatInt(id, 10) + "\n"); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *FileStore) Load(ctx context.Context) (int64, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	id, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt watermark file %s: %w", s.path, err)
	}
	return id, true, nil
}

// RedisStore keeps the watermark under a single Redis key.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{
		client: client,
		key:    key,
	}
}

func (s *RedisStore) Save(ctx context.Context, id int64) error {
	return s.client.Set(ctx, s.key, id, 0).Err()
}

func (s *RedisStore) Load(ctx context.Context) (int64, bool, error) {
	id, err := s.client.Get(ctx, s.key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return id, true, nil
}
