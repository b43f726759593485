package room

import (
	"log/slog"
	"sync"
	"time"

	"github.com/koopa0/system-design/15-match-room/internal/level"
	"github.com/koopa0/system-design/15-match-room/internal/match"
	"github.com/koopa0/system-design/15-match-room/internal/protocol"
)

// 系統設計問題：
//   兩條獨立的連線同時操作同一個房間，如何維持名單、押注與對局狀態一致，
//   並即時同步給房間內所有人？
//
// 核心挑戰：
//   1. 狀態管理：lobby → staking → active → ended，押注房間必須全員確認才能開始
//   2. 並發控制：移動、撿取、領獎、押注確認可能同時到達
//   3. 實時通信：每次狀態變更都要廣播，active 期間還要固定頻率推送完整狀態
//   4. 資源回收：離開 active 的瞬間必須停止 tick，不能留下孤兒 goroutine
//
// 設計方案：
//   ✅ 有限狀態機（FSM）- 規範狀態轉換
//   ✅ RWMutex - tick 只讀，事件處理寫
//   ✅ Sender 介面 - 非阻塞扇出，與傳輸層解耦
//   ✅ quit channel - 狀態改變與停止 tick 在同一個臨界區

// Status 房間狀態
//
// 有限狀態機：
//
//	lobby → active → ended
//	  ↓↑      ↑
//	staking ──┘
//
// 轉換規則：
//   - lobby → active：第二人加入且無押注
//   - lobby → staking：第二人加入且有押注
//   - staking → active：所有參與者確認押注
//   - staking → lobby：有人在確認期間離開
//   - active → ended：獎勵被領取 / 有人斷線
type Status string

const (
	StatusLobby   Status = "lobby"   // 等待參與者
	StatusStaking Status = "staking" // 等待押注確認
	StatusActive  Status = "active"  // 對局進行中
	StatusEnded   Status = "ended"   // 終止狀態
)

// MaxParticipants 每個房間最多兩人
const MaxParticipants = 2

// DefaultTickRate 預設廣播頻率（Hz）
const DefaultTickRate = 60

// 結束 / 失敗原因
const (
	ReasonNotActive    = "match not active"
	ReasonDisconnected = "participant disconnected"
	ReasonPrizeClaimed = "prize claimed"
	ReasonShutdown     = "server shutdown"
)

// Participant 房間內的參與者
type Participant struct {
	ConnID    string
	Identity  string
	Position  level.Position
	Direction string
	Collected int
	Staked    bool
	JoinedAt  time.Time
}

func (p *Participant) view() protocol.ParticipantView {
	return protocol.ParticipantView{
		ConnID:    p.ConnID,
		Identity:  p.Identity,
		Position:  p.Position,
		Direction: p.Direction,
		Collected: p.Collected,
		Staked:    p.Staked,
		JoinedAt:  p.JoinedAt,
	}
}

// Outcome 對局結果，交給路由層寫入待領獎金帳本
type Outcome struct {
	RoomID         string
	WinnerConnID   string
	WinnerIdentity string
	Staked         bool
	Payout         float64
	Elapsed        time.Duration
}

// Options 房間參數
type Options struct {
	Sender       protocol.Sender
	Logger       *slog.Logger
	TickInterval time.Duration // 0 表示 1/DefaultTickRate 秒
	Match        match.Options
	Now          func() time.Time
}

// Room 一場兩人對局
type Room struct {
	ID        string
	CreatedAt time.Time

	mu       sync.RWMutex
	status   Status
	roster   []*Participant
	stake    *Stake
	match    *match.State
	spawns   []level.Position
	opts     Options
	logger   *slog.Logger
	tickQuit chan struct{}
}

// New 建立房間；stake 為 nil 表示無押注
func New(id string, layout *level.Layout, stake *Stake, opts Options) *Room {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second / DefaultTickRate
	}
	if opts.Match.Now == nil {
		opts.Match.Now = opts.Now
	}
	if opts.Sender == nil {
		opts.Sender = protocol.SenderFunc(func(string, protocol.Message) {})
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Room{
		ID:        id,
		CreatedAt: opts.Now(),
		status:    StatusLobby,
		roster:    make([]*Participant, 0, MaxParticipants),
		stake:     stake,
		match:     match.New(layout, opts.Match),
		spawns:    spawnPoints(layout),
		opts:      opts,
		logger:    logger.With("room_id", id),
	}
}

// spawnPoints 第一位在左上角格子中心，第二位在右下角格子中心
func spawnPoints(layout *level.Layout) []level.Position {
	if len(layout.Chambers) == 0 {
		return []level.Position{{}, {}}
	}
	first := layout.Chambers[0].Center()
	last := layout.Chambers[len(layout.Chambers)-1].Center()
	return []level.Position{first, last}
}

// AddParticipant 加入參與者
//
// 只允許在 lobby 狀態加入；人滿、重複連線都回傳 false 且不修改名單。
// 狀態轉換由 Advance 觸發。
func (r *Room) AddParticipant(connID, identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusLobby {
		return false
	}
	if len(r.roster) >= MaxParticipants {
		return false
	}
	if r.findLocked(connID) != nil {
		return false
	}

	p := &Participant{
		ConnID:   connID,
		Identity: identity,
		Position: r.spawns[len(r.roster)%len(r.spawns)],
		JoinedAt: r.opts.Now(),
	}
	r.roster = append(r.roster, p)

	if r.stake != nil {
		r.stake.bind(r.roster)
	}

	r.logger.Info("參與者加入房間",
		"conn_id", connID,
		"identity", identity,
		"participants", len(r.roster))

	r.broadcastLocked(protocol.Message{
		Event: protocol.EventParticipantJoined,
		Data: protocol.ParticipantJoined{
			ConnID:           connID,
			Identity:         identity,
			ParticipantCount: len(r.roster),
			MaxParticipants:  MaxParticipants,
		},
	})

	return true
}

// RemoveParticipant 移除參與者
//
// active 期間離開視為斷線，對局立即結束且沒有勝者；
// staking 期間離開則回到 lobby。
// 名單清空後由路由層呼叫 IsEmpty 判斷是否銷毀房間。
func (r *Room) RemoveParticipant(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, p := range r.roster {
		if p.ConnID == connID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	p := r.roster[idx]
	r.roster = append(r.roster[:idx], r.roster[idx+1:]...)

	r.logger.Info("參與者離開房間",
		"conn_id", connID,
		"identity", p.Identity,
		"status", r.status,
		"participants", len(r.roster))

	r.broadcastLocked(protocol.Message{
		Event: protocol.EventParticipantLeft,
		Data: protocol.ParticipantLeft{
			ConnID:           connID,
			Identity:         p.Identity,
			ParticipantCount: len(r.roster),
		},
	})

	switch r.status {
	case StatusActive:
		r.endLocked(ReasonDisconnected)
	case StatusStaking:
		r.status = StatusLobby
		if r.stake != nil {
			r.stake.bind(r.roster)
		}
	case StatusLobby:
		if r.stake != nil {
			r.stake.bind(r.roster)
		}
	}

	return true
}

// Advance 依名單與押注狀態推進狀態機，回傳推進後的狀態
func (r *Room) Advance() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.advanceLocked()
	return r.status
}

func (r *Room) advanceLocked() {
	full := len(r.roster) == MaxParticipants

	switch r.status {
	case StatusLobby:
		if !full {
			return
		}
		if r.stake == nil {
			r.startLocked()
			return
		}
		r.status = StatusStaking
		r.logger.Info("房間進入押注確認", "amount", r.stake.Amount)
		if r.allStakedLocked() {
			r.startLocked()
		}
	case StatusStaking:
		if full && r.allStakedLocked() {
			r.startLocked()
		}
	}
}

func (r *Room) allStakedLocked() bool {
	for _, p := range r.roster {
		if !p.Staked {
			return false
		}
	}
	return true
}

// startLocked 進入 active：啟動對局時鐘、廣播開始並啟動 tick
func (r *Room) startLocked() {
	r.status = StatusActive
	r.match.Start()

	participants := r.viewsLocked()
	r.logger.Info("對局開始", "participants", len(participants))

	r.broadcastLocked(protocol.Message{
		Event: protocol.EventMatchStarted,
		Data: protocol.MatchStarted{
			RoomID:       r.ID,
			Participants: participants,
			State:        r.match.Snapshot(),
			Timestamp:    r.opts.Now(),
		},
	})

	quit := make(chan struct{})
	r.tickQuit = quit
	go r.runTick(quit, r.opts.TickInterval)
}

// endLocked 進入 ended 並停止 tick
func (r *Room) endLocked(reason string) {
	if r.status == StatusEnded {
		return
	}
	r.status = StatusEnded
	r.stopTickLocked()
	if r.stake != nil {
		r.stake.Active = false
	}

	r.logger.Info("對局結束", "reason", reason)

	r.broadcastLocked(protocol.Message{
		Event: protocol.EventMatchEnded,
		Data:  protocol.MatchEnded{Reason: reason},
	})
}

func (r *Room) stopTickLocked() {
	if r.tickQuit != nil {
		close(r.tickQuit)
		r.tickQuit = nil
	}
}

// runTick 固定頻率推送完整狀態，房間離開 active 即退出
func (r *Room) runTick(quit <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			if !r.broadcastState() {
				return
			}
		}
	}
}

func (r *Room) broadcastState() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// quit 與 ticker 同時就緒時 select 可能選到 ticker，這裡再確認一次
	if r.status != StatusActive {
		return false
	}

	snap := r.match.Snapshot()
	r.broadcastLocked(protocol.Message{
		Event: protocol.EventStateUpdate,
		Data: protocol.StateUpdate{
			RoomID:       r.ID,
			Collectibles: snap.Collectibles,
			Participants: r.viewsLocked(),
			Elapsed:      snap.Elapsed,
		},
	})
	return true
}

// HandleMove 更新位置並廣播
func (r *Room) HandleMove(connID string, pos level.Position, direction string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.findLocked(connID)
	if p == nil || r.status != StatusActive {
		return
	}

	p.Position = pos
	p.Direction = direction

	r.broadcastLocked(protocol.Message{
		Event: protocol.EventParticipantMoved,
		Data: protocol.ParticipantMoved{
			ConnID:    connID,
			Identity:  p.Identity,
			Position:  pos,
			Direction: direction,
		},
	})
}

// HandleCollect 撿取收集物
//
// 先以 CheckTake 取得拒絕原因，再以 Take 做 test-and-set；
// 競爭失敗的一方與一般驗證失敗收到相同的 item_collect_failed。
func (r *Room) HandleCollect(connID, itemID string, pos level.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.findLocked(connID)
	if p == nil {
		return
	}
	if r.status != StatusActive {
		r.collectFailedLocked(connID, itemID, ReasonNotActive)
		return
	}

	p.Position = pos

	if err := r.match.CheckTake(itemID, pos); err != nil {
		r.logger.Debug("撿取被拒絕",
			"conn_id", connID,
			"item_id", itemID,
			"reason", err)
		r.collectFailedLocked(connID, itemID, err.Error())
		return
	}
	if !r.match.Take(itemID) {
		r.collectFailedLocked(connID, itemID, match.ErrAlreadyTaken.Error())
		return
	}

	p.Collected++

	r.logger.Info("收集物已撿取",
		"conn_id", connID,
		"item_id", itemID,
		"collected", p.Collected)

	r.broadcastLocked(protocol.Message{
		Event: protocol.EventItemCollected,
		Data: protocol.ItemCollected{
			ConnID:         connID,
			Identity:       p.Identity,
			ItemID:         itemID,
			CollectedCount: p.Collected,
		},
	})
}

func (r *Room) collectFailedLocked(connID, itemID, reason string) {
	r.opts.Sender.Send(connID, protocol.Message{
		Event: protocol.EventItemCollectFailed,
		Data:  protocol.ItemCollectFailed{ItemID: itemID, Reason: reason},
	})
}

// HandleClaimPrize 領取獎勵
//
// 收集數以伺服器紀錄為準，客戶端回報的數字只用於日誌比對。
// 成功時廣播 match_won 並進入 ended，回傳 Outcome；其餘情況回傳 nil。
func (r *Room) HandleClaimPrize(connID string, pos level.Position, reported int) *Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.findLocked(connID)
	if p == nil {
		return nil
	}
	if r.status != StatusActive {
		r.opts.Sender.Send(connID, protocol.NewError(protocol.EventPrizeClaimError, ReasonNotActive))
		return nil
	}

	p.Position = pos
	if reported != p.Collected {
		r.logger.Debug("客戶端回報收集數不一致",
			"conn_id", connID,
			"reported", reported,
			"server", p.Collected)
	}

	if err := r.match.CheckClaim(connID, pos, p.Collected); err != nil {
		r.opts.Sender.Send(connID, protocol.NewError(protocol.EventPrizeClaimError, err.Error()))
		return nil
	}
	if !r.match.ClaimPrize(connID) {
		r.opts.Sender.Send(connID, protocol.NewError(protocol.EventPrizeClaimError, match.ErrAlreadyClaimed.Error()))
		return nil
	}

	outcome := &Outcome{
		RoomID:         r.ID,
		WinnerConnID:   connID,
		WinnerIdentity: p.Identity,
		Elapsed:        r.match.Elapsed(),
	}

	won := protocol.MatchWon{
		WinnerID:       connID,
		WinnerIdentity: p.Identity,
		Elapsed:        outcome.Elapsed.Seconds(),
	}
	if r.stake != nil {
		payout := r.stake.Payout()
		outcome.Staked = true
		outcome.Payout = payout
		won.Payout = &payout
	}

	r.logger.Info("獎勵已被領取",
		"winner", p.Identity,
		"staked", outcome.Staked,
		"payout", outcome.Payout)

	r.broadcastLocked(protocol.Message{Event: protocol.EventMatchWon, Data: won})
	r.endLocked(ReasonPrizeClaimed)

	return outcome
}

// MarkStaked 標記押注已確認
//
// 只在押注房間的 lobby / staking 狀態有效；重複確認是冪等的。
func (r *Room) MarkStaked(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.findLocked(connID)
	if p == nil || r.stake == nil {
		return false
	}
	if r.status != StatusLobby && r.status != StatusStaking {
		return false
	}

	p.Staked = true

	confirmed := 0
	for _, q := range r.roster {
		if q.Staked {
			confirmed++
		}
	}

	r.logger.Info("押注已確認",
		"conn_id", connID,
		"identity", p.Identity,
		"confirmed", confirmed)

	r.broadcastLocked(protocol.Message{
		Event: protocol.EventParticipantStaked,
		Data: protocol.ParticipantStaked{
			Identity:  p.Identity,
			RoomID:    r.ID,
			Confirmed: confirmed,
			Required:  MaxParticipants,
		},
	})

	r.advanceLocked()
	return true
}

// Close 伺服器關閉時結束房間
func (r *Room) Close(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == StatusEnded {
		r.stopTickLocked()
		return
	}
	r.endLocked(reason)
}

// Has 連線是否在房間內
func (r *Room) Has(connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findLocked(connID) != nil
}

// IsFull 名單是否已滿
func (r *Room) IsFull() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.roster) >= MaxParticipants
}

// IsEmpty 名單是否為空
func (r *Room) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.roster) == 0
}

// Status 目前狀態
func (r *Room) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Staked 是否為押注房間
func (r *Room) Staked() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stake != nil
}

// ParticipantCount 目前人數
func (r *Room) ParticipantCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.roster)
}

// Participants 名單快照（依加入順序）
func (r *Room) Participants() []protocol.ParticipantView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.viewsLocked()
}

// Snapshot 對局狀態快照
func (r *Room) Snapshot() match.Snapshot {
	return r.match.Snapshot()
}

// Info 房間唯讀快照（配對與查詢用）
type Info struct {
	ID               string     `json:"roomId"`
	Status           Status     `json:"status"`
	ParticipantCount int        `json:"participantCount"`
	MaxParticipants  int        `json:"maxParticipants"`
	Identities       []string   `json:"identities"`
	Stake            *StakeInfo `json:"stake,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	Elapsed          float64    `json:"elapsedSeconds"`
}

// Info 取得房間資訊
func (r *Room) Info() Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identities := make([]string, 0, len(r.roster))
	for _, p := range r.roster {
		identities = append(identities, p.Identity)
	}

	info := Info{
		ID:               r.ID,
		Status:           r.status,
		ParticipantCount: len(r.roster),
		MaxParticipants:  MaxParticipants,
		Identities:       identities,
		CreatedAt:        r.CreatedAt,
		Elapsed:          r.match.Elapsed().Seconds(),
	}
	if r.stake != nil {
		s := r.stake.info()
		info.Stake = &s
	}
	return info
}

func (r *Room) findLocked(connID string) *Participant {
	for _, p := range r.roster {
		if p.ConnID == connID {
			return p
		}
	}
	return nil
}

func (r *Room) viewsLocked() []protocol.ParticipantView {
	views := make([]protocol.ParticipantView, 0, len(r.roster))
	for _, p := range r.roster {
		views = append(views, p.view())
	}
	return views
}

// broadcastLocked 扇出給房間內所有參與者（需持有鎖，Sender 必須非阻塞）
func (r *Room) broadcastLocked(msg protocol.Message) {
	for _, p := range r.roster {
		r.opts.Sender.Send(p.ConnID, msg)
	}
}
