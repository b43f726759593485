package router

import (
	"sort"
	"sync"

	"github.com/koopa0/system-design/15-match-room/internal/protocol"
)

// Ledger 待領獎金帳本：identity → roomID → 獎金
//
// 只在押注對局產生勝者時寫入，在客戶端宣告已外部提領時清除。
// 帳本以身分為鍵，與連線無關，勝者斷線後紀錄仍然保留。
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]map[string]protocol.PrizeEntry
}

// NewLedger 建立空帳本
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]map[string]protocol.PrizeEntry)}
}

// Record 寫入一筆獎金；同一房間重複寫入會覆蓋
func (l *Ledger) Record(identity string, e protocol.PrizeEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	byRoom, ok := l.entries[identity]
	if !ok {
		byRoom = make(map[string]protocol.PrizeEntry)
		l.entries[identity] = byRoom
	}
	byRoom[e.RoomID] = e
}

// List 依獲勝時間排序的待領獎金
func (l *Ledger) List(identity string) []protocol.PrizeEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	byRoom := l.entries[identity]
	out := make([]protocol.PrizeEntry, 0, len(byRoom))
	for _, e := range byRoom {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WonAt.Equal(out[j].WonAt) {
			return out[i].RoomID < out[j].RoomID
		}
		return out[i].WonAt.Before(out[j].WonAt)
	})
	return out
}

// Clear 清除指定房間的紀錄；roomID 為空時清除該身分全部紀錄
func (l *Ledger) Clear(identity, roomID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	byRoom, ok := l.entries[identity]
	if !ok {
		return false
	}

	if roomID == "" {
		delete(l.entries, identity)
		return true
	}

	if _, ok := byRoom[roomID]; !ok {
		return false
	}
	delete(byRoom, roomID)
	if len(byRoom) == 0 {
		delete(l.entries, identity)
	}
	return true
}

// Len 全部紀錄筆數
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, byRoom := range l.entries {
		n += len(byRoom)
	}
	return n
}
