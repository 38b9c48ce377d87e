// Package keystore 为本地会话身份提供可插拔的 slot 存储。
package keystore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound 表示 slot 中尚无数据。
var ErrNotFound = errors.New("keystore: slot not found")

// Store 是按 slot 名读写字符串值的存储。
type Store interface {
	Get(ctx context.Context, slot string) (string, error)
	Set(ctx context.Context, slot, value string) error
	Delete(ctx context.Context, slot string) error
}

// Open 根据 uri 选择后端：memory:、file:<path>、sqlite:<path>、redis://host:port/db。
func Open(uri string) (Store, error) {
	uri = strings.TrimSpace(uri)
	switch {
	case uri == "" || uri == "memory:" || uri == "memory":
		return NewMemoryStore(), nil
	case strings.HasPrefix(uri, "file:"):
		return NewFileStore(strings.TrimPrefix(uri, "file:"))
	case strings.HasPrefix(uri, "sqlite:"):
		return OpenSQLite(strings.TrimPrefix(uri, "sqlite:"))
	case strings.HasPrefix(uri, "redis://"), strings.HasPrefix(uri, "rediss://"):
		return OpenRedis(uri, "")
	default:
		return nil, fmt.Errorf("keystore: unsupported store %q", uri)
	}
}

// Close 关闭持有外部资源的 store。
func Close(s Store) error {
	if c, ok := s.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func checkSlot(slot string) error {
	if strings.TrimSpace(slot) == "" {
		return errors.New("keystore: slot is required")
	}
	return nil
}
