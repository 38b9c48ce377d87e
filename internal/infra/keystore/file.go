package keystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore 将全部 slot 以 JSON 对象写入单个文件（0600），写入通过临时文件 + rename 完成。
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore 构造文件 store，父目录不存在时会创建。
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("keystore: file path is required")
	}
	clean := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(clean), 0o700); err != nil {
		return nil, fmt.Errorf("keystore: create dir: %w", err)
	}
	return &FileStore{path: clean}, nil
}

func (f *FileStore) Get(ctx context.Context, slot string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	slots, err := f.load()
	if err != nil {
		return "", err
	}
	v, ok := slots[slot]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (f *FileStore) Set(ctx context.Context, slot, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkSlot(slot); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	slots, err := f.load()
	if err != nil {
		return err
	}
	slots[slot] = value
	return f.save(slots)
}

func (f *FileStore) Delete(ctx context.Context, slot string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	slots, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := slots[slot]; !ok {
		return nil
	}
	delete(slots, slot)
	return f.save(slots)
}

func (f *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("keystore: read %s: %w", f.path, err)
	}
	slots := make(map[string]string)
	if len(strings.TrimSpace(string(data))) == 0 {
		return slots, nil
	}
	if err := json.Unmarshal(data, &slots); err != nil {
		return nil, fmt.Errorf("keystore: decode %s: %w", f.path, err)
	}
	return slots, nil
}

func (f *FileStore) save(slots map[string]string) error {
	data, err := json.MarshalIndent(slots, "", "  ")
	if err != nil {
		return fmt.Errorf("keystore: encode: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".keystore-*")
	if err != nil {
		return fmt.Errorf("keystore: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("keystore: chmod: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("keystore: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("keystore: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("keystore: rename: %w", err)
	}
	return nil
}
