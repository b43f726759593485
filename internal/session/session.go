// Package session 記錄每個身分目前所在的連線與房間。
//
// 快取只做鏡像：路由層在加入 / 離開時非同步寫入，
// 讀取只供查詢介面使用，任何寫入失敗都不影響對局。
package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultTTL 與原本的玩家 session 保存時間一致
const DefaultTTL = time.Hour

// ErrNotFound session 不存在或已過期
var ErrNotFound = errors.New("session 不存在")

// Session 一個身分的連線狀態
type Session struct {
	Identity string    `json:"identity"`
	ConnID   string    `json:"connId"`
	RoomID   string    `json:"roomId"`
	Staked   bool      `json:"staked"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Store session 儲存介面
type Store interface {
	Save(ctx context.Context, s Session) error
	Load(ctx context.Context, identity string) (Session, error)
	Delete(ctx context.Context, identity string) error
}

// Key 快取鍵
func Key(identity string) string {
	return "player:" + identity
}

type entry struct {
	session   Session
	expiresAt time.Time
}

// Memory 行程內的 session 儲存，Redis 不可用時的退路
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemory 建立記憶體儲存；ttl <= 0 使用 DefaultTTL
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetClock 替換時鐘（測試用）
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Save 實作 Store
func (m *Memory) Save(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[Key(s.Identity)] = entry{session: s, expiresAt: m.now().Add(m.ttl)}
	return nil
}

// Load 實作 Store，過期的紀錄視為不存在並順手清掉
func (m *Memory) Load(_ context.Context, identity string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key(identity)
	e, ok := m.entries[key]
	if !ok {
		return Session{}, ErrNotFound
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return Session{}, ErrNotFound
	}
	return e.session, nil
}

// Delete 實作 Store
func (m *Memory) Delete(_ context.Context, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, Key(identity))
	return nil
}

// Len 目前保存的筆數（含尚未清除的過期紀錄）
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
