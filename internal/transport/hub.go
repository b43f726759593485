// Package transport 以 WebSocket 承載 protocol 訊息。
package transport

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/koopa0/system-design/15-match-room/internal/protocol"
)

// 系統設計問題：
//   如何讓兩名玩家的操作即時送達伺服器，並把判定結果即時推回？
//
// 核心挑戰：
//   1. 實時通信：移動、撿取、領獎都要在同一條連線上雙向傳遞
//   2. 連接管理：斷線必須立即通知路由層，讓對局結束
//   3. 心跳機制：檢測死連接（網絡異常、客戶端崩潰）
//   4. 慢消費者：60Hz 的狀態推送不能拖住房間邏輯
//
// 設計方案：
//   ✅ WebSocket - 全雙工通信（低延遲、服務器推送）
//   ✅ Hub 模式 - 集中管理所有連接，實作 protocol.Sender
//   ✅ Ping/Pong 心跳 - 檢測死連接（54s/60s）
//   ✅ 緩衝 channel - 非阻塞發送，緩衝區滿時丟棄

// 預設參數
const (
	DefaultSendBuffer     = 256
	DefaultPongWait       = 60 * time.Second
	DefaultPingPeriod     = 54 * time.Second // 必須小於 PongWait
	DefaultWriteWait      = 10 * time.Second
	DefaultMaxMessageSize = 64 * 1024
)

// Dispatcher 處理解碼後的訊息與斷線
type Dispatcher interface {
	Dispatch(connID string, msg protocol.Inbound)
	Leave(connID string) bool
}

// Options Hub 參數
type Options struct {
	SendBuffer     int
	PongWait       time.Duration
	PingPeriod     time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	CheckOrigin    func(r *http.Request) bool
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = DefaultSendBuffer
	}
	if o.PongWait <= 0 {
		o.PongWait = DefaultPongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = DefaultWriteWait
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = DefaultMaxMessageSize
	}
	if o.CheckOrigin == nil {
		// 在生產環境應該檢查來源
		o.CheckOrigin = func(*http.Request) bool { return true }
	}
	return o
}

// Hub WebSocket 連接中心
//
// 系統設計考量：
//
//  1. 連接映射：map[connID]*Connection
//     - 房間成員由路由層管理，Hub 只負責把訊息送到指定連線
//
//  2. 並發安全：RWMutex
//     - Send 頻繁（讀鎖），註冊/註銷少（寫鎖）
//     - 關閉 send channel 只在寫鎖內進行，Send 持讀鎖時不會寫入已關閉的 channel
type Hub struct {
	dispatcher  Dispatcher
	logger      *slog.Logger
	upgrader    websocket.Upgrader
	connections map[string]*Connection
	opts        Options
	mu          sync.RWMutex
	stopped     bool
}

// Connection 一條 WebSocket 連接
type Connection struct {
	ID        string
	Conn      *websocket.Conn
	Send      chan []byte
	Hub       *Hub
	LastPing  time.Time
	mu        sync.Mutex
	closeOnce sync.Once // 確保 channel 只關閉一次
}

// NewHub 建立 Hub；必須在處理連線前呼叫 Bind
func NewHub(logger *slog.Logger, opts Options) *Hub {
	opts = opts.withDefaults()
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     opts.CheckOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[string]*Connection),
		opts:        opts,
	}
}

// Bind 設定訊息處理者（路由層同時依賴 Hub 作為 Sender）
func (hub *Hub) Bind(d Dispatcher) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.dispatcher = d
}

// ServeWS 處理 WebSocket 連接
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	hub.mu.RLock()
	ready := hub.dispatcher != nil && !hub.stopped
	hub.mu.RUnlock()
	if !ready {
		http.Error(w, "服務尚未就緒", http.StatusServiceUnavailable)
		return
	}

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}
	conn.SetReadLimit(hub.opts.MaxMessageSize)

	c := &Connection{
		ID:       uuid.NewString(),
		Conn:     conn,
		Send:     make(chan []byte, hub.opts.SendBuffer),
		Hub:      hub,
		LastPing: time.Now(),
	}
	hub.register(c)

	// welcome 先進佇列，保證是客戶端收到的第一則訊息
	hub.Send(c.ID, protocol.Message{
		Event: protocol.EventWelcome,
		Data: protocol.Welcome{
			ConnID:    c.ID,
			Message:   "connected",
			Timestamp: time.Now(),
		},
	})

	go c.writePump()
	go c.readPump()

	hub.logger.Info("WebSocket 連接建立", "conn_id", c.ID, "remote", r.RemoteAddr)
}

func (hub *Hub) register(c *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.connections[c.ID] = c
}

// unregister 取消註冊；回傳是否由這次呼叫移除
func (hub *Hub) unregister(c *Connection) bool {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	actual, exists := hub.connections[c.ID]
	if !exists || actual != c {
		return false
	}
	delete(hub.connections, c.ID)

	// 使用 sync.Once 確保 channel 只關閉一次
	c.closeOnce.Do(func() {
		close(c.Send)
	})
	return true
}

// Send 實作 protocol.Sender
//
// 非阻塞：緩衝區滿時丟棄並記錄，避免慢客戶端拖累房間。
func (hub *Hub) Send(connID string, msg protocol.Message) {
	data, err := msg.Encode()
	if err != nil {
		hub.logger.Error("序列化訊息失敗", "event", msg.Event, "error", err)
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	c, exists := hub.connections[connID]
	if !exists {
		return
	}

	select {
	case c.Send <- data:
	default:
		hub.logger.Warn("連接緩衝區滿", "conn_id", connID, "event", msg.Event)
	}
}

// Count 目前連接數
func (hub *Hub) Count() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.connections)
}

// Stop 關閉所有連接；readPump 退出時會通知路由層
func (hub *Hub) Stop() {
	hub.mu.Lock()
	hub.stopped = true
	for _, c := range hub.connections {
		// 先關閉 Send channel，再關閉連接
		c.closeOnce.Do(func() {
			close(c.Send)
		})
		c.Conn.Close()
	}
	hub.connections = make(map[string]*Connection)
	hub.mu.Unlock()

	hub.logger.Info("WebSocket Hub 已停止")
}

// readPump 讀取客戶端訊息
//
// 心跳（讀取端）：PongWait 內沒有收到任何訊息（包括 Pong）就關閉連接，
// 配合 writePump 的 PingPeriod（54s/60s，留 6 秒余量）。
func (c *Connection) readPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()

		c.Hub.mu.RLock()
		d := c.Hub.dispatcher
		c.Hub.mu.RUnlock()
		d.Leave(c.ID)

		c.Hub.logger.Info("WebSocket 連接關閉", "conn_id", c.ID)
	}()

	pongWait := c.Hub.opts.PongWait
	if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.Hub.logger.Error("設置讀取期限失敗", "error", err)
	}

	// Pong 處理器（收到 Pong 重置超時）
	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.Hub.logger.Error("設置讀取期限失敗", "error", err)
		}
		c.mu.Lock()
		c.LastPing = time.Now()
		c.mu.Unlock()
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.Hub.logger.Error("WebSocket 讀取錯誤", "error", err, "conn_id", c.ID)
			}
			break
		}

		// 任何訊息都代表連線存活
		if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.Hub.logger.Error("設置讀取期限失敗", "error", err)
		}

		if messageType == websocket.TextMessage {
			c.handleMessage(message)
		}
	}
}

// handleMessage 解碼並交給路由層；格式錯誤只回覆給這條連線
func (c *Connection) handleMessage(message []byte) {
	msg, err := protocol.Decode(message)
	if err != nil {
		c.Hub.logger.Debug("解析客戶端訊息失敗", "error", err, "conn_id", c.ID)
		c.Hub.Send(c.ID, protocol.NewError(protocol.EventError, err.Error()))
		return
	}

	c.Hub.mu.RLock()
	d := c.Hub.dispatcher
	c.Hub.mu.RUnlock()
	d.Dispatch(c.ID, msg)
}

// writePump 寫入訊息到客戶端
//
// 心跳（發送端）：每 PingPeriod 發送 Ping，客戶端自動回覆 Pong。
// 佇列中累積的訊息一次寫完，減少系統呼叫。
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Hub.opts.PingPeriod)
	writeWait := c.Hub.opts.WriteWait
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// Hub 關閉了通道，嘗試發送關閉訊息，忽略錯誤（連接可能已關閉）
				_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			n := len(c.Send)
			for i := 0; i < n; i++ {
				next, ok := <-c.Send
				if !ok {
					return
				}
				if err := c.Conn.WriteMessage(websocket.TextMessage, next); err != nil {
					c.Hub.logger.Error("發送訊息失敗", "error", err, "conn_id", c.ID)
					return
				}
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
