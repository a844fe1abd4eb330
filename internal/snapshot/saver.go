package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"review-proxy/internal/cache"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultSaveTimeout = 30 * time.Second

// Saver 在缓存刷新成功后异步写入快照，写入失败只记录日志
// 同一 key 的写入按顺序执行，排队期间只保留最新的条目
type Saver struct {
	store   Store
	timeout time.Duration
	logger  zerolog.Logger
	wg      sync.WaitGroup

	mu      sync.Mutex
	pending map[string]Entry
	running map[string]bool
}

// NewSaver 创建快照写入器
func NewSaver(store Store, logger zerolog.Logger) *Saver {
	return &Saver{
		store:   store,
		timeout: defaultSaveTimeout,
		logger:  logger,
		pending: make(map[string]Entry),
		running: make(map[string]bool),
	}
}

// Hook 作为 cache.OnRefresh 回调使用
func (s *Saver) Hook(ev cache.RefreshEvent[json.RawMessage]) {
	if ev.Entry == nil {
		return
	}
	entry := *ev.Entry

	s.mu.Lock()
	defer s.mu.Unlock()

	if queued, ok := s.pending[entry.Key]; ok && queued.FetchedAt.After(entry.FetchedAt) {
		return
	}
	s.pending[entry.Key] = entry
	if s.running[entry.Key] {
		return
	}
	s.running[entry.Key] = true
	s.wg.Add(1)
	go s.drain(entry.Key)
}

// drain 依次写入 key 的待保存条目，直到队列为空
func (s *Saver) drain(key string) {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		entry, ok := s.pending[key]
		if !ok {
			delete(s.running, key)
			s.mu.Unlock()
			return
		}
		delete(s.pending, key)
		s.mu.Unlock()

		s.save(entry)
	}
}

func (s *Saver) save(entry Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	// 存储中已有更新的快照时不覆盖
	stored, err := s.store.Load(ctx, entry.Key)
	if err == nil && stored.FetchedAt.After(entry.FetchedAt) {
		s.logger.Debug().Str("key", entry.Key).Time("stored", stored.FetchedAt).Msg("newer snapshot already stored")
		return
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Debug().Err(err).Str("key", entry.Key).Msg("could not read existing snapshot")
	}

	if err := s.store.Save(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("key", entry.Key).Msg("failed to save snapshot")
		return
	}
	s.logger.Debug().Str("key", entry.Key).Int("items", len(entry.Items)).Msg("snapshot saved")
}

// Wait 等待正在进行的写入完成（关闭时调用）
func (s *Saver) Wait() {
	s.wg.Wait()
}

// Restore 将存储中的所有快照装入注册表，返回成功装入的数量
// 单个快照失败不影响其他快照
func Restore(ctx context.Context, store Store, registry *cache.Registry[json.RawMessage], logger zerolog.Logger) (int, error) {
	keys, err := store.List(ctx)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, key := range keys {
		entry, err := store.Load(ctx, key)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				logger.Warn().Err(err).Str("key", key).Msg("failed to load snapshot")
			}
			continue
		}
		if err := registry.Seed(entry); err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("skipping invalid snapshot")
			continue
		}
		restored++
	}

	logger.Info().Int("restored", restored).Int("found", len(keys)).Msg("snapshots restored")
	return restored, nil
}
