package router

import (
	"github.com/koopa0/system-design/15-match-room/internal/room"
)

// Registry 房間表與無押注房間的 FIFO 等待佇列
//
// 不是並發安全的，只能在 Router 的鎖內使用。
type Registry struct {
	rooms map[string]*room.Room
	open  []string // 依建立順序排列的無押注房間 ID
}

// NewRegistry 建立空的房間表
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*room.Room)}
}

// Add 登記房間；無押注房間同時排入等待佇列
func (g *Registry) Add(r *room.Room) {
	g.rooms[r.ID] = r
	if !r.Staked() {
		g.open = append(g.open, r.ID)
	}
}

// Get 依 ID 查詢
func (g *Registry) Get(id string) (*room.Room, bool) {
	r, ok := g.rooms[id]
	return r, ok
}

// Remove 移除房間；佇列中的 ID 在下一次 NextOpen 時清掉
func (g *Registry) Remove(id string) {
	delete(g.rooms, id)
}

// NextOpen 取出最早建立、仍可加入的無押注房間
//
// 佇列頭不再符合條件（已銷毀、已開始）的 ID 會被丟棄。
// 找不到時回傳 nil。
func (g *Registry) NextOpen() *room.Room {
	for len(g.open) > 0 {
		r, ok := g.rooms[g.open[0]]
		if ok && eligible(r) {
			return r
		}
		g.open = g.open[1:]
	}
	return nil
}

func eligible(r *room.Room) bool {
	return !r.Staked() && r.Status() == room.StatusLobby && !r.IsFull()
}

// Len 房間數
func (g *Registry) Len() int {
	return len(g.rooms)
}

// OpenLen 佇列中目前仍可加入的房間數
func (g *Registry) OpenLen() int {
	n := 0
	for _, id := range g.open {
		if r, ok := g.rooms[id]; ok && eligible(r) {
			n++
		}
	}
	return n
}

// Each 走訪所有房間（順序不固定）
func (g *Registry) Each(fn func(r *room.Room)) {
	for _, r := range g.rooms {
		fn(r)
	}
}
