// Package handler 提供查詢用的 HTTP API 與 WebSocket 入口。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/koopa0/system-design/15-match-room/internal/router"
	"github.com/koopa0/system-design/15-match-room/internal/session"
	"github.com/koopa0/system-design/15-match-room/internal/transport"
)

// Handler HTTP 請求處理器
type Handler struct {
	router *router.Router
	hub    *transport.Hub
	logger *slog.Logger
}

// New 創建 HTTP 處理器
func New(rt *router.Router, hub *transport.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		router: rt,
		hub:    hub,
		logger: logger,
	}
}

// Routes 設定路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// 中間件鏈
	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.loggerMiddleware(handler))
	}

	// WebSocket 需要原始的 ResponseWriter 才能 Hijack，不套 loggerMiddleware
	mux.HandleFunc("GET /ws", h.recoverer(h.hub.ServeWS))

	// 查詢 API
	mux.HandleFunc("GET /api/v1/rooms/{room_id}", wrap(h.getRoom))
	mux.HandleFunc("GET /api/v1/prizes/{identity}", wrap(h.listPrizes))
	mux.HandleFunc("DELETE /api/v1/prizes/{identity}/{room_id}", wrap(h.clearPrize))
	mux.HandleFunc("GET /api/v1/sessions/{identity}", wrap(h.getSession))

	// 健康檢查
	mux.HandleFunc("GET /health", wrap(h.health))
	mux.HandleFunc("GET /stats", wrap(h.stats))

	return mux
}

// getRoom 房間快照
func (h *Handler) getRoom(w http.ResponseWriter, r *http.Request) {
	info, err := h.router.RoomInfo(r.PathValue("room_id"))
	if err != nil {
		h.errorResponse(w, err.Error(), http.StatusNotFound)
		return
	}
	h.jsonResponse(w, info, http.StatusOK)
}

// listPrizes 待領獎金
func (h *Handler) listPrizes(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")
	h.jsonResponse(w, map[string]any{
		"identity": identity,
		"prizes":   h.router.UnclaimedPrizes(identity),
	}, http.StatusOK)
}

// clearPrize 外部提領後清除紀錄
func (h *Handler) clearPrize(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")
	roomID := r.PathValue("room_id")

	if !h.router.ClearPrize(identity, roomID) {
		h.errorResponse(w, "獎金紀錄不存在", http.StatusNotFound)
		return
	}
	h.jsonResponse(w, map[string]any{
		"identity": identity,
		"room_id":  roomID,
		"cleared":  true,
	}, http.StatusOK)
}

// getSession session 快取
func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.router.Session(r.Context(), r.PathValue("identity"))
	if errors.Is(err, session.ErrNotFound) {
		h.errorResponse(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		h.errorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonResponse(w, s, http.StatusOK)
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	}, http.StatusOK)
}

// stats 統計資訊
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]any{
		"router":      h.router.Stats(),
		"connections": h.hub.Count(),
	}, http.StatusOK)
}

// jsonResponse 返回 JSON 響應
func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("編碼 JSON 失敗", "error", err)
	}
}

// errorResponse 返回錯誤響應
func (h *Handler) errorResponse(w http.ResponseWriter, message string, status int) {
	h.jsonResponse(w, map[string]any{
		"error": message,
	}, status)
}

// loggerMiddleware 日誌中間件
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// 包裝 ResponseWriter 以獲取狀態碼
		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next(ww, r)

		h.logger.Info("HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	}
}

// recoverer panic 恢復中間件
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("處理請求時發生 panic",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)

				h.errorResponse(w, "內部伺服器錯誤", http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// responseWriter 包裝 ResponseWriter 以獲取狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
