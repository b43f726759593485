// Package notify 把押注帳本相關事件送給外部系統。
//
// 對局判定從不等待通知結果：NATS 的 Publish 只寫入客戶端緩衝區，
// 由背景 flusher 送出，斷線期間由重連緩衝區暫存。
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultPrefix 預設主題前綴
const DefaultPrefix = "matchroom"

// 事件種類，同時作為主題後綴
const (
	KindStakedRoomCreated = "stake.created"
	KindStakeConfirmed    = "stake.confirmed"
	KindPrizeWon          = "prize.won"
	KindPrizeCleared      = "prize.cleared"
	KindMatchAborted      = "match.aborted"
)

// Event 帳本事件
type Event struct {
	Kind      string    `json:"kind"`
	RoomID    string    `json:"roomId"`
	Identity  string    `json:"identity,omitempty"`
	Amount    float64   `json:"amount,omitempty"`
	Payout    float64   `json:"payout,omitempty"`
	LedgerRef string    `json:"ledgerRef,omitempty"`
	At        time.Time `json:"at"`
}

// Notifier 事件發布介面
type Notifier interface {
	Notify(e Event) error
}

// Nop 不做任何事，未設定 NATS 時使用
type Nop struct{}

// Notify 實作 Notifier
func (Nop) Notify(Event) error { return nil }

// NATS 以 core NATS publish 發送事件
type NATS struct {
	conn   *nats.Conn
	prefix string
}

// Connect 連接 NATS 並建立 Notifier
//
// 選項說明：
//   - MaxReconnects(-1)：無限重連
//   - ReconnectWait(1s)：重連間隔
//   - PingInterval(20s)：心跳檢測
func Connect(url, prefix string, logger *slog.Logger) (*NATS, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("match-room"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS 連線中斷", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS 已重新連線", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("連接 NATS 失敗: %w", err)
	}
	return NewNATS(conn, prefix), nil
}

// NewNATS 包裝既有連線；prefix 為空時使用 DefaultPrefix
func NewNATS(conn *nats.Conn, prefix string) *NATS {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &NATS{conn: conn, prefix: prefix}
}

// Subject 事件對應的主題，例如 matchroom.prize.won
func Subject(prefix, kind string) string {
	return prefix + "." + kind
}

// Notify 實作 Notifier
func (n *NATS) Notify(e Event) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("序列化事件失敗: %w", err)
	}
	if err := n.conn.Publish(Subject(n.prefix, e.Kind), data); err != nil {
		return fmt.Errorf("發布事件失敗: %w", err)
	}
	return nil
}

// Close 送出緩衝區內的事件後關閉連線
func (n *NATS) Close() error {
	return n.conn.Drain()
}
