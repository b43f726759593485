// Package protocol 定義客戶端與伺服器之間的訊息目錄。
//
// 所有訊息都是 JSON 文字幀，外層統一為：
//
//	{"event": "<name>", "data": {...}}
//
// 入站訊息是封閉的型別集合（Inbound 介面只有本套件內的型別能實作），
// 路由層以 type switch 窮舉處理。
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/koopa0/system-design/15-match-room/internal/level"
)

var (
	// ErrUnknownEvent 未知的事件名稱
	ErrUnknownEvent = errors.New("未知的事件類型")
	// ErrMalformed 訊息格式錯誤
	ErrMalformed = errors.New("訊息格式錯誤")
)

// 入站事件名稱
const (
	EventJoinQueue              = "join_queue"
	EventLeaveQueue             = "leave_queue"
	EventCreateStakedRoom       = "create_staked_room"
	EventJoinRoom               = "join_room"
	EventPlayerMove             = "player_move"
	EventCollectItem            = "collect_item"
	EventClaimPrize             = "claim_prize"
	EventPlayerStaked           = "player_staked"
	EventGetUnclaimedPrizes     = "get_unclaimed_prizes"
	EventPrizeClaimedExternally = "prize_claimed_externally"
	EventGetRoomInfo            = "get_room_info"
	EventPing                   = "ping"
)

// Inbound 客戶端送來的訊息
type Inbound interface {
	Event() string
	inbound()
}

// JoinQueue 配對進入無押注房間
type JoinQueue struct {
	Identity string `json:"identity"`
}

// LeaveQueue 主動離開
type LeaveQueue struct{}

// CreateStakedRoom 建立押注房間
type CreateStakedRoom struct {
	Identity string  `json:"identity"`
	Amount   float64 `json:"amount"`
}

// JoinRoom 以房間 ID 加入
type JoinRoom struct {
	RoomID   string `json:"roomId"`
	Identity string `json:"identity"`
}

// PlayerMove 位置更新
type PlayerMove struct {
	Position  level.Position `json:"position"`
	Direction string         `json:"direction,omitempty"`
}

// CollectItem 撿取收集物
type CollectItem struct {
	ItemID   string         `json:"itemId"`
	Position level.Position `json:"position"`
}

// ClaimPrize 領取獎勵
type ClaimPrize struct {
	Position       level.Position `json:"position"`
	CollectedCount int            `json:"collectedCount"`
}

// PlayerStaked 押注已在外部確認
type PlayerStaked struct {
	Identity string `json:"identity"`
	RoomID   string `json:"roomId"`
}

// GetUnclaimedPrizes 查詢待領獎金
type GetUnclaimedPrizes struct {
	Identity string `json:"identity"`
}

// PrizeClaimedExternally 獎金已在外部提領
type PrizeClaimedExternally struct {
	Identity string `json:"identity"`
	RoomID   string `json:"roomId"`
}

// GetRoomInfo 查詢房間快照
type GetRoomInfo struct {
	RoomID string `json:"roomId"`
}

// Ping 應用層心跳
type Ping struct{}

func (JoinQueue) Event() string              { return EventJoinQueue }
func (LeaveQueue) Event() string             { return EventLeaveQueue }
func (CreateStakedRoom) Event() string       { return EventCreateStakedRoom }
func (JoinRoom) Event() string               { return EventJoinRoom }
func (PlayerMove) Event() string             { return EventPlayerMove }
func (CollectItem) Event() string            { return EventCollectItem }
func (ClaimPrize) Event() string             { return EventClaimPrize }
func (PlayerStaked) Event() string           { return EventPlayerStaked }
func (GetUnclaimedPrizes) Event() string     { return EventGetUnclaimedPrizes }
func (PrizeClaimedExternally) Event() string { return EventPrizeClaimedExternally }
func (GetRoomInfo) Event() string            { return EventGetRoomInfo }
func (Ping) Event() string                   { return EventPing }

func (JoinQueue) inbound()              {}
func (LeaveQueue) inbound()             {}
func (CreateStakedRoom) inbound()       {}
func (JoinRoom) inbound()               {}
func (PlayerMove) inbound()             {}
func (CollectItem) inbound()            {}
func (ClaimPrize) inbound()             {}
func (PlayerStaked) inbound()           {}
func (GetUnclaimedPrizes) inbound()     {}
func (PrizeClaimedExternally) inbound() {}
func (GetRoomInfo) inbound()            {}
func (Ping) inbound()                   {}

// envelope 外層結構
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Decode 把一個文字幀解析成入站訊息
func Decode(frame []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var msg Inbound
	switch env.Event {
	case EventJoinQueue:
		msg = &JoinQueue{}
	case EventLeaveQueue:
		msg = &LeaveQueue{}
	case EventCreateStakedRoom:
		msg = &CreateStakedRoom{}
	case EventJoinRoom:
		msg = &JoinRoom{}
	case EventPlayerMove:
		msg = &PlayerMove{}
	case EventCollectItem:
		msg = &CollectItem{}
	case EventClaimPrize:
		msg = &ClaimPrize{}
	case EventPlayerStaked:
		msg = &PlayerStaked{}
	case EventGetUnclaimedPrizes:
		msg = &GetUnclaimedPrizes{}
	case EventPrizeClaimedExternally:
		msg = &PrizeClaimedExternally{}
	case EventGetRoomInfo:
		msg = &GetRoomInfo{}
	case EventPing:
		msg = &Ping{}
	case "":
		return nil, fmt.Errorf("%w: 缺少 event 欄位", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, env.Event)
	}

	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, msg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Event, err)
		}
	}

	return deref(msg), nil
}

// deref 統一回傳值型別，路由層只需 switch 值型別
func deref(msg Inbound) Inbound {
	switch m := msg.(type) {
	case *JoinQueue:
		return *m
	case *LeaveQueue:
		return *m
	case *CreateStakedRoom:
		return *m
	case *JoinRoom:
		return *m
	case *PlayerMove:
		return *m
	case *CollectItem:
		return *m
	case *ClaimPrize:
		return *m
	case *PlayerStaked:
		return *m
	case *GetUnclaimedPrizes:
		return *m
	case *PrizeClaimedExternally:
		return *m
	case *GetRoomInfo:
		return *m
	case *Ping:
		return *m
	}
	return msg
}
