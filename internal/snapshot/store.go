// Package snapshot 持久化每个 key 最近一次成功拉取的缓存内容，
// 进程重启后可直接用旧数据作为兜底，而不必等待第一次上游请求。
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"review-proxy/internal/cache"
	"strings"
)

// Entry 快照内容与缓存条目一致
type Entry = cache.CacheEntry[json.RawMessage]

var ErrNotFound = errors.New("snapshot not found")

// Store 快照存储
type Store interface {
	Save(ctx context.Context, entry Entry) error
	Load(ctx context.Context, key string) (Entry, error)
	List(ctx context.Context) ([]string, error)
}

const fileExtension = ".json"

// fileName 将 key 可逆地转义为文件名，路径分隔符也会被转义
func fileName(key string) string {
	return url.PathEscape(key) + fileExtension
}

// keyFromFileName 从文件名还原 key
func keyFromFileName(name string) (string, bool) {
	if !strings.HasSuffix(name, fileExtension) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimSuffix(name, fileExtension))
	if err != nil {
		return "", false
	}
	return key, key != ""
}

func encode(entry Entry) ([]byte, error) {
	return json.MarshalIndent(entry, "", "  ")
}

func decode(data []byte) (Entry, error) {
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}
