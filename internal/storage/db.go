package storage

import (
	"context"
	"database/sql"
	"fmt"
	"review-proxy/internal/cache"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const (
	DefaultRetention       = 30 * 24 * time.Hour
	defaultCleanupInterval = time.Hour
	defaultRecentLimit     = 50
	maxRecentLimit         = 1000
)

// RefreshRecord 一次上游请求的记录
type RefreshRecord struct {
	ID         int64     `json:"id"`
	Key        string    `json:"key"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Items      int       `json:"items"`
	Error      string    `json:"error,omitempty"`
}

// HistoryDB 刷新历史，保存在 SQLite 中
type HistoryDB struct {
	db        *sql.DB
	retention time.Duration
	logger    zerolog.Logger

	stopCleanup chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// Open 打开（或创建）历史数据库并启动定期清理
func Open(path string, retention time.Duration, logger zerolog.Logger) (*HistoryDB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// SQLite 单写者，避免 database is locked
	db.SetMaxOpenConns(1)

	if err := InitDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history db: %w", err)
	}

	if retention <= 0 {
		retention = DefaultRetention
	}

	h := &HistoryDB{
		db:          db,
		retention:   retention,
		logger:      logger,
		stopCleanup: make(chan struct{}),
	}
	h.startCleanup(defaultCleanupInterval)
	return h, nil
}

// InitDB 设置 PRAGMA 并建表
func InitDB(db *sql.DB) error {
	_, err := db.Exec(`
        PRAGMA journal_mode = WAL;
        PRAGMA synchronous = NORMAL;
        PRAGMA temp_store = MEMORY;
    `)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS refresh_history (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            cache_key TEXT NOT NULL,
            started_at INTEGER NOT NULL,
            duration_ms INTEGER NOT NULL,
            success INTEGER NOT NULL,
            items INTEGER NOT NULL DEFAULT 0,
            error TEXT
        );
        CREATE INDEX IF NOT EXISTS idx_refresh_started ON refresh_history(started_at);
        CREATE INDEX IF NOT EXISTS idx_refresh_key ON refresh_history(cache_key);
    `)
	return err
}

// Record 写入一条记录
func (h *HistoryDB) Record(ctx context.Context, rec RefreshRecord) error {
	var errText sql.NullString
	if rec.Error != "" {
		errText = sql.NullString{String: rec.Error, Valid: true}
	}

	_, err := h.db.ExecContext(ctx, `
        INSERT INTO refresh_history (cache_key, started_at, duration_ms, success, items, error)
        VALUES (?, ?, ?, ?, ?, ?)
    `, rec.Key, rec.StartedAt.UnixMilli(), rec.DurationMs, rec.Success, rec.Items, errText)
	if err != nil {
		return fmt.Errorf("insert refresh record: %w", err)
	}
	return nil
}

// Recent 按时间倒序返回最近的记录，key 为空时返回所有 key
func (h *HistoryDB) Recent(ctx context.Context, key string, limit int) ([]RefreshRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	query := `SELECT id, cache_key, started_at, duration_ms, success, items, error FROM refresh_history`
	args := []any{}
	if key != "" {
		query += ` WHERE cache_key = ?`
		args = append(args, key)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query refresh history: %w", err)
	}
	defer rows.Close()

	records := make([]RefreshRecord, 0)
	for rows.Next() {
		var (
			rec       RefreshRecord
			startedAt int64
			errText   sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Key, &startedAt, &rec.DurationMs, &rec.Success, &rec.Items, &errText); err != nil {
			return nil, fmt.Errorf("scan refresh record: %w", err)
		}
		rec.StartedAt = time.UnixMilli(startedAt).UTC()
		rec.Error = errText.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Cleanup 删除超过保留期的记录
func (h *HistoryDB) Cleanup(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-h.retention).UnixMilli()
	res, err := h.db.ExecContext(ctx, `DELETE FROM refresh_history WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup refresh history: %w", err)
	}
	return res.RowsAffected()
}

func (h *HistoryDB) startCleanup(interval time.Duration) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				n, err := h.Cleanup(context.Background(), time.Now())
				if err != nil {
					h.logger.Warn().Err(err).Msg("history cleanup failed")
					continue
				}
				if n > 0 {
					h.logger.Debug().Int64("deleted", n).Msg("history cleanup")
				}
			case <-h.stopCleanup:
				return
			}
		}
	}()
}

// Close 停止清理并关闭数据库
func (h *HistoryDB) Close() error {
	h.stopOnce.Do(func() { close(h.stopCleanup) })
	h.wg.Wait()
	return h.db.Close()
}

// RefreshHook 返回可注册到缓存的回调，写入失败只记录日志
func RefreshHook[T any](h *HistoryDB) func(cache.RefreshEvent[T]) {
	return func(ev cache.RefreshEvent[T]) {
		rec := RefreshRecord{
			Key:        ev.Key,
			StartedAt:  ev.Started,
			DurationMs: ev.Duration.Milliseconds(),
			Success:    ev.Err == nil,
		}
		if ev.Entry != nil {
			rec.Items = len(ev.Entry.Items)
		}
		if ev.Err != nil {
			rec.Error = ev.Err.Error()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.Record(ctx, rec); err != nil {
			h.logger.Warn().Err(err).Str("key", ev.Key).Msg("failed to record refresh")
		}
	}
}
