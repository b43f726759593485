package protocol

import (
	"encoding/json"
	"time"

	"github.com/koopa0/system-design/15-match-room/internal/level"
)

// 出站事件名稱
const (
	EventWelcome           = "welcome"
	EventRoomJoined        = "room_joined"
	EventStakedRoomCreated = "staked_room_created"
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
	EventParticipantStaked = "participant_staked"
	EventMatchStarted      = "match_started"
	EventStateUpdate       = "state_update"
	EventParticipantMoved  = "participant_moved"
	EventItemCollected     = "item_collected"
	EventItemCollectFailed = "item_collect_failed"
	EventMatchWon          = "match_won"
	EventMatchEnded        = "match_ended"
	EventUnclaimedPrizes   = "unclaimed_prizes"
	EventPrizeCleared      = "prize_cleared"
	EventRoomInfo          = "room_info"
	EventQueueError        = "queue_error"
	EventStakeRoomError    = "stake_room_error"
	EventPrizeClaimError   = "prize_claim_error"
	EventError             = "error"
	EventPong              = "pong"
)

// Message 出站訊息
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Encode 序列化成文字幀
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Sender 把訊息送給指定連線
//
// 實作必須是非阻塞的：慢消費者不應拖住房間邏輯。
type Sender interface {
	Send(connID string, msg Message)
}

// SenderFunc 讓一般函式實作 Sender
type SenderFunc func(connID string, msg Message)

// Send 實作 Sender
func (f SenderFunc) Send(connID string, msg Message) { f(connID, msg) }

// Welcome 連線建立
type Welcome struct {
	ConnID    string    `json:"connId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomJoined 加入成功回覆
type RoomJoined struct {
	RoomID           string `json:"roomId"`
	ParticipantCount int    `json:"participantCount"`
}

// StakedRoomCreated 押注房間建立成功
type StakedRoomCreated struct {
	RoomID    string  `json:"roomId"`
	Amount    float64 `json:"amount"`
	LedgerRef string  `json:"ledgerRef"`
}

// ParticipantView 對外公開的參與者資訊
type ParticipantView struct {
	ConnID    string         `json:"id"`
	Identity  string         `json:"identity"`
	Position  level.Position `json:"position"`
	Direction string         `json:"direction,omitempty"`
	Collected int            `json:"collectedCount"`
	Staked    bool           `json:"staked"`
	JoinedAt  time.Time      `json:"joinedAt"`
}

// ParticipantJoined 名單新增
type ParticipantJoined struct {
	ConnID           string `json:"id"`
	Identity         string `json:"identity"`
	ParticipantCount int    `json:"participantCount"`
	MaxParticipants  int    `json:"maxParticipants"`
}

// ParticipantLeft 名單移除
type ParticipantLeft struct {
	ConnID           string `json:"id"`
	Identity         string `json:"identity"`
	ParticipantCount int    `json:"participantCount"`
}

// ParticipantStaked 押注確認
type ParticipantStaked struct {
	Identity  string `json:"identity"`
	RoomID    string `json:"roomId"`
	Confirmed int    `json:"confirmed"`
	Required  int    `json:"required"`
}

// MatchStarted 對局開始
type MatchStarted struct {
	RoomID       string            `json:"roomId"`
	Participants []ParticipantView `json:"participants"`
	State        any               `json:"state"`
	Timestamp    time.Time         `json:"timestamp"`
}

// StateUpdate 固定頻率推送的完整狀態
type StateUpdate struct {
	RoomID       string              `json:"roomId"`
	Collectibles []level.Collectible `json:"collectibles"`
	Participants []ParticipantView   `json:"participants"`
	Elapsed      float64             `json:"elapsedSeconds"`
}

// ParticipantMoved 位置廣播
type ParticipantMoved struct {
	ConnID    string         `json:"id"`
	Identity  string         `json:"identity"`
	Position  level.Position `json:"position"`
	Direction string         `json:"direction,omitempty"`
}

// ItemCollected 撿取成功
type ItemCollected struct {
	ConnID         string `json:"id"`
	Identity       string `json:"identity"`
	ItemID         string `json:"itemId"`
	CollectedCount int    `json:"collectedCount"`
}

// ItemCollectFailed 撿取失敗（只送給請求方）
type ItemCollectFailed struct {
	ItemID string `json:"itemId"`
	Reason string `json:"reason"`
}

// MatchWon 對局勝利
type MatchWon struct {
	WinnerID       string   `json:"winnerId"`
	WinnerIdentity string   `json:"winnerIdentity"`
	Payout         *float64 `json:"payout,omitempty"`
	Elapsed        float64  `json:"elapsedSeconds"`
}

// MatchEnded 對局結束
type MatchEnded struct {
	Reason string `json:"reason"`
}

// PrizeEntry 待領獎金
type PrizeEntry struct {
	RoomID string    `json:"roomId"`
	Payout float64   `json:"payout"`
	WonAt  time.Time `json:"wonAt"`
}

// UnclaimedPrizes 待領獎金清單
type UnclaimedPrizes struct {
	Identity string       `json:"identity"`
	Prizes   []PrizeEntry `json:"prizes"`
}

// PrizeCleared 獎金紀錄已清除
type PrizeCleared struct {
	Identity string `json:"identity"`
	RoomID   string `json:"roomId"`
	Cleared  bool   `json:"cleared"`
}

// ErrorMessage 錯誤訊息
type ErrorMessage struct {
	Message string `json:"message"`
}

// Pong 心跳回覆
type Pong struct {
	Timestamp int64 `json:"timestamp"`
}

// NewError 建立指定事件名稱的錯誤訊息
func NewError(event, message string) Message {
	return Message{Event: event, Data: ErrorMessage{Message: message}}
}
