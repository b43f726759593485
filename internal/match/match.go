package match

import (
	"errors"
	"sync"
	"time"

	"github.com/koopa0/system-design/15-match-room/internal/level"
)

// 系統設計問題：
//   兩個連線幾乎同時要撿同一個收集物（或同時領獎），如何保證只有一方成功？
//
// 設計方案：
//   ✅ 伺服器權威 - 客戶端只送「請求」，是否成功由伺服器裁決
//   ✅ Test-and-Set - 檢查與翻轉在同一把鎖內完成，中間不讓出
//   ✅ 範圍檢查 - 距離小於半徑才可互動

// 預設互動半徑（像素）
const (
	DefaultCollectRadius = 120.0
	DefaultPrizeRadius   = 50.0
)

// 拒絕原因
var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyTaken   = errors.New("already collected")
	ErrOutOfRange     = errors.New("out of range")
	ErrAlreadyClaimed = errors.New("already claimed")
	ErrInsufficient   = errors.New("not enough collectibles")
)

// Options Match State 參數
type Options struct {
	CollectRadius float64
	PrizeRadius   float64
	Now           func() time.Time // 測試時可替換
}

func (o Options) withDefaults() Options {
	if o.CollectRadius <= 0 {
		o.CollectRadius = DefaultCollectRadius
	}
	if o.PrizeRadius <= 0 {
		o.PrizeRadius = DefaultPrizeRadius
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// State 單一房間的對局裁判
//
// 持有一份 Layout，記錄哪些收集物已被取走、獎勵是否已被領取以及對局時鐘。
// 所有方法都是並發安全的。
type State struct {
	mu        sync.Mutex
	layout    *level.Layout
	index     map[string]int // collectibleID -> layout.Collectibles 下標
	taken     int
	opts      Options
	startedAt time.Time
	started   bool
}

// New 建立對局狀態；layout 為 nil 屬於程式錯誤
func New(layout *level.Layout, opts Options) *State {
	if layout == nil {
		panic("match: nil layout")
	}
	index := make(map[string]int, len(layout.Collectibles))
	for i, c := range layout.Collectibles {
		index[c.ID] = i
	}
	return &State{
		layout: layout,
		index:  index,
		opts:   opts.withDefaults(),
	}
}

// Start 啟動對局時鐘，只有第一次呼叫生效
func (s *State) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true
	s.startedAt = s.opts.Now()
}

// Started 對局時鐘是否已啟動
func (s *State) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Elapsed 自 Start 起經過的時間；未啟動時為 0
func (s *State) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked()
}

func (s *State) elapsedLocked() time.Duration {
	if !s.started {
		return 0
	}
	return s.opts.Now().Sub(s.startedAt)
}

// CheckTake 檢查是否可以撿取，回傳拒絕原因
func (s *State) CheckTake(id string, pos level.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkTakeLocked(id, pos)
}

func (s *State) checkTakeLocked(id string, pos level.Position) error {
	i, ok := s.index[id]
	if !ok {
		return ErrNotFound
	}
	c := s.layout.Collectibles[i]
	if c.Taken {
		return ErrAlreadyTaken
	}
	if pos.Distance(c.Position) >= s.opts.CollectRadius {
		return ErrOutOfRange
	}
	return nil
}

// CanTake 收集物存在、未被取走且在半徑內
func (s *State) CanTake(id string, pos level.Position) bool {
	return s.CheckTake(id, pos) == nil
}

// Take 原子性地把收集物標記為已取走
//
// 在同一把鎖內重新檢查 Taken，已被取走時回傳 false。
// 兩個同時到達的請求只有一個會成功。
func (s *State) Take(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok || s.layout.Collectibles[i].Taken {
		return false
	}
	s.layout.Collectibles[i].Taken = true
	s.taken++
	return true
}

// TryTake 檢查與撿取在同一臨界區內完成
func (s *State) TryTake(id string, pos level.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkTakeLocked(id, pos); err != nil {
		return err
	}
	s.layout.Collectibles[s.index[id]].Taken = true
	s.taken++
	return nil
}

// CheckClaim 檢查是否可以領獎，回傳拒絕原因
func (s *State) CheckClaim(requester string, pos level.Position, collected int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkClaimLocked(pos, collected)
}

func (s *State) checkClaimLocked(pos level.Position, collected int) error {
	p := s.layout.Prize
	if p.Claimed {
		return ErrAlreadyClaimed
	}
	if collected < p.RequiredCount {
		return ErrInsufficient
	}
	if pos.Distance(p.Position) >= s.opts.PrizeRadius {
		return ErrOutOfRange
	}
	return nil
}

// CanClaimPrize 獎勵未被領取、收集數足夠且在半徑內
func (s *State) CanClaimPrize(requester string, pos level.Position, collected int) bool {
	return s.CheckClaim(requester, pos, collected) == nil
}

// ClaimPrize 原子性地領取獎勵，與 Take 相同的 test-and-set 紀律
func (s *State) ClaimPrize(requester string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.layout.Prize.Claimed {
		return false
	}
	s.layout.Prize.Claimed = true
	s.layout.Prize.ClaimedBy = requester
	return true
}

// TryClaim 檢查與領取在同一臨界區內完成
func (s *State) TryClaim(requester string, pos level.Position, collected int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkClaimLocked(pos, collected); err != nil {
		return err
	}
	s.layout.Prize.Claimed = true
	s.layout.Prize.ClaimedBy = requester
	return nil
}

// RequiredCount 領獎所需收集數
func (s *State) RequiredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layout.Prize.RequiredCount
}

// TakenCount 已被取走的收集物數量
func (s *State) TakenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taken
}

// Snapshot 對局狀態快照（複本，可安全序列化）
type Snapshot struct {
	Collectibles  []level.Collectible `json:"collectibles"`
	Prize         level.Prize         `json:"prize"`
	RequiredCount int                 `json:"requiredCount"`
	Elapsed       float64             `json:"elapsedSeconds"`
	Started       bool                `json:"started"`
}

// Snapshot 取得快照
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]level.Collectible, len(s.layout.Collectibles))
	copy(items, s.layout.Collectibles)

	return Snapshot{
		Collectibles:  items,
		Prize:         s.layout.Prize,
		RequiredCount: s.layout.Prize.RequiredCount,
		Elapsed:       s.elapsedLocked().Seconds(),
		Started:       s.started,
	}
}
