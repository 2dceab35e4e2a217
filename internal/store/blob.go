package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrCacheMiss 表示持久化缓存中不存在该 blob
var ErrCacheMiss = errors.New("cache miss")

// BlobStore 映射表 blob 的持久化存储（按内容哈希命名，写入后只读）
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}

// DiskStore 磁盘 blob 存储：缓存目录下每个 (方向, 描述符内容哈希) 一个文件
type DiskStore struct {
	dir    string
	logger *zap.Logger
}

// NewDiskStore 创建磁盘存储，目录不存在时自动创建
func NewDiskStore(dir string, logger *zap.Logger) (*DiskStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("disk store requires a cache directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &DiskStore{dir: dir, logger: logger}, nil
}

func (s *DiskStore) path(key string) string {
	return filepath.Join(s.dir, key)
}

func (s *DiskStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	return data, nil
}

// Put 先写临时文件再重命名，避免并发读取到半写的 blob
func (s *DiskStore) Put(ctx context.Context, key string, data []byte) error {
	tmp := s.path(key + ".tmp." + uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write blob %s: %w", key, err)
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to publish blob %s: %w", key, err)
	}
	return nil
}
