// Package router 是行程內唯一的共享狀態：連線 → 房間的對應、配對佇列與待領獎金帳本。
//
// 所有入口都經過同一把鎖，等同單一事件執行緒；
// 房間與對局狀態各自持有自己的鎖。
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koopa0/system-design/15-match-room/internal/level"
	"github.com/koopa0/system-design/15-match-room/internal/notify"
	"github.com/koopa0/system-design/15-match-room/internal/protocol"
	"github.com/koopa0/system-design/15-match-room/internal/room"
	"github.com/koopa0/system-design/15-match-room/internal/session"
)

var (
	ErrMissingIdentity = errors.New("缺少身分")
	ErrAlreadyInRoom   = errors.New("已在房間內")
	ErrRoomNotFound    = errors.New("房間不存在")
	ErrRoomFull        = errors.New("房間已滿")
	ErrRoomUnavailable = errors.New("房間狀態不允許加入")
	ErrNotInRoom       = errors.New("不在該房間內")
	ErrNotStakedRoom   = errors.New("不是押注房間")
	ErrStakeRejected   = errors.New("目前無法確認押注")
	ErrStopped         = errors.New("伺服器關閉中")
)

const (
	// DefaultSessionTimeout 單次 session 寫入的上限
	DefaultSessionTimeout = 2 * time.Second
	// sessionQueueSize session 寫入佇列長度，滿了就丟棄
	sessionQueueSize = 1024
)

// Options 路由參數
type Options struct {
	Level          level.Config
	Room           room.Options // Sender 與 Logger 由 Router 填入
	Sessions       session.Store
	Notifier       notify.Notifier
	NewID          func() string
	Now            func() time.Time
	SessionTimeout time.Duration
}

// Router 連線路由
type Router struct {
	mu       sync.Mutex
	registry *Registry
	connRoom map[string]string // connID -> roomID
	identity map[string]string // connID -> identity
	ledger   *Ledger
	sender   protocol.Sender
	logger   *slog.Logger
	opts     Options
	stopped  bool

	jobs chan sessionJob // 依序執行的 session 寫入
	wg   sync.WaitGroup
}

type sessionJob func(ctx context.Context) error

// New 建立路由；關卡配置不合法時回傳錯誤
func New(sender protocol.Sender, logger *slog.Logger, opts Options) (*Router, error) {
	if err := opts.Level.Validate(); err != nil {
		return nil, err
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewMemory(0)
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return fmt.Sprintf("room_%s", uuid.NewString()) }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = DefaultSessionTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts.Room.Sender = sender
	opts.Room.Logger = logger
	if opts.Room.Now == nil {
		opts.Room.Now = opts.Now
	}

	r := &Router{
		registry: NewRegistry(),
		connRoom: make(map[string]string),
		identity: make(map[string]string),
		ledger:   NewLedger(),
		sender:   sender,
		logger:   logger,
		opts:     opts,
		jobs:     make(chan sessionJob, sessionQueueSize),
	}

	r.wg.Add(1)
	go r.runSessions()

	return r, nil
}

// Dispatch 處理一則入站訊息
func (r *Router) Dispatch(connID string, msg protocol.Inbound) {
	switch m := msg.(type) {
	case protocol.JoinQueue:
		r.JoinQueue(connID, m.Identity)
	case protocol.LeaveQueue:
		r.Leave(connID)
	case protocol.CreateStakedRoom:
		r.CreateStakedRoom(connID, m.Identity, m.Amount)
	case protocol.JoinRoom:
		r.JoinRoomByID(connID, m.Identity, m.RoomID)
	case protocol.PlayerMove, protocol.CollectItem, protocol.ClaimPrize, protocol.PlayerStaked:
		r.Relay(connID, m)
	case protocol.GetUnclaimedPrizes:
		r.sender.Send(connID, protocol.Message{
			Event: protocol.EventUnclaimedPrizes,
			Data: protocol.UnclaimedPrizes{
				Identity: m.Identity,
				Prizes:   r.UnclaimedPrizes(m.Identity),
			},
		})
	case protocol.PrizeClaimedExternally:
		cleared := r.ClearPrize(m.Identity, m.RoomID)
		r.sender.Send(connID, protocol.Message{
			Event: protocol.EventPrizeCleared,
			Data: protocol.PrizeCleared{
				Identity: m.Identity,
				RoomID:   m.RoomID,
				Cleared:  cleared,
			},
		})
	case protocol.GetRoomInfo:
		info, err := r.RoomInfo(m.RoomID)
		if err != nil {
			r.sender.Send(connID, protocol.NewError(protocol.EventQueueError, err.Error()))
			return
		}
		r.sender.Send(connID, protocol.Message{Event: protocol.EventRoomInfo, Data: info})
	case protocol.Ping:
		r.sender.Send(connID, protocol.Message{
			Event: protocol.EventPong,
			Data:  protocol.Pong{Timestamp: r.opts.Now().UnixMilli()},
		})
	default:
		r.logger.Warn("未處理的訊息類型", "conn_id", connID, "event", msg.Event())
	}
}

// JoinQueue 配對進入最早建立、仍可加入的無押注房間，沒有則建立新房間
func (r *Router) JoinQueue(connID, identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.admitLocked(connID, identity); err != nil {
		r.sender.Send(connID, protocol.NewError(protocol.EventQueueError, err.Error()))
		return err
	}

	rm := r.registry.NextOpen()
	if rm == nil {
		var err error
		if rm, err = r.newRoomLocked(nil); err != nil {
			r.sender.Send(connID, protocol.NewError(protocol.EventQueueError, err.Error()))
			return err
		}
	}

	if !rm.AddParticipant(connID, identity) {
		r.sender.Send(connID, protocol.NewError(protocol.EventQueueError, ErrRoomUnavailable.Error()))
		return ErrRoomUnavailable
	}
	r.attachLocked(connID, identity, rm)

	r.logger.Info("配對成功", "conn_id", connID, "identity", identity, "room_id", rm.ID)
	r.sendJoinedLocked(connID, rm)
	rm.Advance()
	return nil
}

// CreateStakedRoom 建立押注房間，建立者為 A 方
func (r *Router) CreateStakedRoom(connID, identity string, amount float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fail := func(err error) error {
		r.sender.Send(connID, protocol.NewError(protocol.EventStakeRoomError, err.Error()))
		return err
	}

	if err := r.admitLocked(connID, identity); err != nil {
		return fail(err)
	}

	stake, err := room.NewStake(amount, identity)
	if err != nil {
		return fail(err)
	}

	rm, err := r.newRoomLocked(stake)
	if err != nil {
		return fail(err)
	}
	if !rm.AddParticipant(connID, identity) {
		r.registry.Remove(rm.ID)
		return fail(ErrRoomUnavailable)
	}
	r.attachLocked(connID, identity, rm)

	r.logger.Info("押注房間已建立",
		"conn_id", connID,
		"identity", identity,
		"room_id", rm.ID,
		"amount", amount)

	r.sender.Send(connID, protocol.Message{
		Event: protocol.EventStakedRoomCreated,
		Data: protocol.StakedRoomCreated{
			RoomID:    rm.ID,
			Amount:    stake.Amount,
			LedgerRef: stake.LedgerRef,
		},
	})
	r.sendJoinedLocked(connID, rm)

	r.notify(notify.Event{
		Kind:      notify.KindStakedRoomCreated,
		RoomID:    rm.ID,
		Identity:  identity,
		Amount:    stake.Amount,
		LedgerRef: stake.LedgerRef,
	})
	return nil
}

// JoinRoomByID 加入指定房間
func (r *Router) JoinRoomByID(connID, identity, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	errEvent := protocol.EventQueueError
	fail := func(err error) error {
		r.sender.Send(connID, protocol.NewError(errEvent, err.Error()))
		return err
	}

	if err := r.admitLocked(connID, identity); err != nil {
		return fail(err)
	}

	rm, ok := r.registry.Get(roomID)
	if !ok {
		return fail(fmt.Errorf("%w: %s", ErrRoomNotFound, roomID))
	}
	if rm.Staked() {
		errEvent = protocol.EventStakeRoomError
	}
	if rm.IsFull() {
		return fail(ErrRoomFull)
	}
	if !rm.AddParticipant(connID, identity) {
		return fail(ErrRoomUnavailable)
	}
	r.attachLocked(connID, identity, rm)

	r.logger.Info("加入指定房間", "conn_id", connID, "identity", identity, "room_id", rm.ID)
	r.sendJoinedLocked(connID, rm)
	rm.Advance()
	return nil
}

// Leave 連線離開（主動離開或斷線）；房間清空後立即移除
func (r *Router) Leave(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(connID)
}

func (r *Router) leaveLocked(connID string) bool {
	roomID, ok := r.connRoom[connID]
	if !ok {
		return false
	}
	identity := r.identity[connID]
	delete(r.connRoom, connID)
	delete(r.identity, connID)

	r.background(func(ctx context.Context) error {
		return r.opts.Sessions.Delete(ctx, identity)
	})

	rm, ok := r.registry.Get(roomID)
	if !ok {
		return true
	}

	aborted := rm.Status() == room.StatusActive && rm.Staked()
	rm.RemoveParticipant(connID)
	if aborted {
		r.notify(notify.Event{
			Kind:     notify.KindMatchAborted,
			RoomID:   roomID,
			Identity: identity,
		})
	}

	if rm.IsEmpty() {
		r.registry.Remove(roomID)
		r.logger.Info("房間已清空並移除", "room_id", roomID)
	}
	return true
}

// Relay 把對局與押注事件轉給所屬房間；不在房間內的連線直接忽略
func (r *Router) Relay(connID string, msg protocol.Inbound) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := msg.(protocol.PlayerStaked); ok {
		r.markStakedLocked(connID, m)
		return
	}

	rm := r.roomOfLocked(connID)
	if rm == nil {
		r.logger.Debug("連線不在任何房間內", "conn_id", connID, "event", msg.Event())
		return
	}

	switch m := msg.(type) {
	case protocol.PlayerMove:
		rm.HandleMove(connID, m.Position, m.Direction)
	case protocol.CollectItem:
		rm.HandleCollect(connID, m.ItemID, m.Position)
	case protocol.ClaimPrize:
		outcome := rm.HandleClaimPrize(connID, m.Position, m.CollectedCount)
		if outcome != nil && outcome.Staked {
			r.recordWinLocked(outcome)
		}
	}
}

func (r *Router) recordWinLocked(o *room.Outcome) {
	r.ledger.Record(o.WinnerIdentity, protocol.PrizeEntry{
		RoomID: o.RoomID,
		Payout: o.Payout,
		WonAt:  r.opts.Now(),
	})

	r.logger.Info("待領獎金已記錄",
		"identity", o.WinnerIdentity,
		"room_id", o.RoomID,
		"payout", o.Payout)

	r.notify(notify.Event{
		Kind:     notify.KindPrizeWon,
		RoomID:   o.RoomID,
		Identity: o.WinnerIdentity,
		Payout:   o.Payout,
	})
}

// markStakedLocked 押注確認只看連線所在的房間，訊息中的身分僅作比對
func (r *Router) markStakedLocked(connID string, m protocol.PlayerStaked) {
	fail := func(err error) {
		r.sender.Send(connID, protocol.NewError(protocol.EventStakeRoomError, err.Error()))
	}

	rm := r.roomOfLocked(connID)
	if rm == nil || (m.RoomID != "" && rm.ID != m.RoomID) {
		fail(ErrNotInRoom)
		return
	}
	if !rm.Staked() {
		fail(ErrNotStakedRoom)
		return
	}

	identity := r.identity[connID]
	if m.Identity != "" && m.Identity != identity {
		r.logger.Warn("押注確認的身分與連線不符",
			"conn_id", connID,
			"claimed", m.Identity,
			"identity", identity)
	}

	if !rm.MarkStaked(connID) {
		fail(ErrStakeRejected)
		return
	}

	r.background(func(ctx context.Context) error {
		return r.opts.Sessions.Save(ctx, session.Session{
			Identity: identity,
			ConnID:   connID,
			RoomID:   rm.ID,
			Staked:   true,
			JoinedAt: r.opts.Now(),
		})
	})

	info := rm.Info()
	e := notify.Event{Kind: notify.KindStakeConfirmed, RoomID: rm.ID, Identity: identity}
	if info.Stake != nil {
		e.Amount = info.Stake.Amount
		e.LedgerRef = info.Stake.LedgerRef
	}
	r.notify(e)
}

// RoomInfo 查詢房間快照
func (r *Router) RoomInfo(roomID string) (room.Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.registry.Get(roomID)
	if !ok {
		return room.Info{}, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	return rm.Info(), nil
}

// UnclaimedPrizes 查詢待領獎金
func (r *Router) UnclaimedPrizes(identity string) []protocol.PrizeEntry {
	return r.ledger.List(identity)
}

// ClearPrize 清除外部已提領的獎金；roomID 為空時清除全部
func (r *Router) ClearPrize(identity, roomID string) bool {
	cleared := r.ledger.Clear(identity, roomID)
	if cleared {
		r.logger.Info("待領獎金已清除", "identity", identity, "room_id", roomID)
		r.notify(notify.Event{
			Kind:     notify.KindPrizeCleared,
			RoomID:   roomID,
			Identity: identity,
		})
	}
	return cleared
}

// Session 讀取身分的 session 快取
func (r *Router) Session(ctx context.Context, identity string) (session.Session, error) {
	return r.opts.Sessions.Load(ctx, identity)
}

// Stats 統計資訊
type Stats struct {
	Rooms           int                 `json:"rooms"`
	OpenRooms       int                 `json:"open_rooms"`
	Connections     int                 `json:"connections"`
	ByStatus        map[room.Status]int `json:"by_status"`
	UnclaimedPrizes int                 `json:"unclaimed_prizes"`
}

// Stats 取得統計資訊
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	byStatus := make(map[room.Status]int)
	r.registry.Each(func(rm *room.Room) {
		byStatus[rm.Status()]++
	})

	return Stats{
		Rooms:           r.registry.Len(),
		OpenRooms:       r.registry.OpenLen(),
		Connections:     len(r.connRoom),
		ByStatus:        byStatus,
		UnclaimedPrizes: r.ledger.Len(),
	}
}

// Stop 結束所有房間並等待背景寫入完成
func (r *Router) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.registry.Each(func(rm *room.Room) {
		rm.Close(room.ReasonShutdown)
	})
	close(r.jobs)
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info("路由已停止")
}

// admitLocked 檢查連線能否加入新房間
//
// 所在房間已結束時先自動離開，讓玩家可以直接開下一局。
func (r *Router) admitLocked(connID, identity string) error {
	if r.stopped {
		return ErrStopped
	}
	if identity == "" {
		return ErrMissingIdentity
	}
	if rm := r.roomOfLocked(connID); rm != nil {
		if rm.Status() != room.StatusEnded {
			return ErrAlreadyInRoom
		}
		r.leaveLocked(connID)
	}
	return nil
}

func (r *Router) newRoomLocked(stake *room.Stake) (*room.Room, error) {
	layout, err := level.Generate(r.opts.Level)
	if err != nil {
		return nil, fmt.Errorf("生成關卡失敗: %w", err)
	}
	rm := room.New(r.opts.NewID(), layout, stake, r.opts.Room)
	r.registry.Add(rm)

	r.logger.Debug("房間已建立", "room_id", rm.ID, "staked", stake != nil)
	return rm, nil
}

func (r *Router) attachLocked(connID, identity string, rm *room.Room) {
	r.connRoom[connID] = rm.ID
	r.identity[connID] = identity

	s := session.Session{
		Identity: identity,
		ConnID:   connID,
		RoomID:   rm.ID,
		JoinedAt: r.opts.Now(),
	}
	r.background(func(ctx context.Context) error {
		return r.opts.Sessions.Save(ctx, s)
	})
}

func (r *Router) sendJoinedLocked(connID string, rm *room.Room) {
	r.sender.Send(connID, protocol.Message{
		Event: protocol.EventRoomJoined,
		Data: protocol.RoomJoined{
			RoomID:           rm.ID,
			ParticipantCount: rm.ParticipantCount(),
		},
	})
}

func (r *Router) roomOfLocked(connID string) *room.Room {
	roomID, ok := r.connRoom[connID]
	if !ok {
		return nil
	}
	rm, _ := r.registry.Get(roomID)
	return rm
}

// background 把 session 寫入排入佇列，不阻塞呼叫者（需持有鎖）
func (r *Router) background(job sessionJob) {
	if r.stopped {
		return
	}
	select {
	case r.jobs <- job:
	default:
		r.logger.Warn("session 佇列已滿，丟棄寫入")
	}
}

// runSessions 依序執行 session 寫入，保證同一身分的 Save / Delete 不會亂序
func (r *Router) runSessions() {
	defer r.wg.Done()

	for job := range r.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), r.opts.SessionTimeout)
		if err := job(ctx); err != nil {
			r.logger.Warn("session 寫入失敗", "error", err)
		}
		cancel()
	}
}

// notify 發布帳本事件，失敗只記錄
func (r *Router) notify(e notify.Event) {
	if e.At.IsZero() {
		e.At = r.opts.Now()
	}
	if err := r.opts.Notifier.Notify(e); err != nil {
		r.logger.Warn("帳本事件發布失敗", "kind", e.Kind, "room_id", e.RoomID, "error", err)
	}
}
