package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koopa0/system-design/15-match-room/internal/config"
	"github.com/koopa0/system-design/15-match-room/internal/handler"
	"github.com/koopa0/system-design/15-match-room/internal/match"
	"github.com/koopa0/system-design/15-match-room/internal/notify"
	"github.com/koopa0/system-design/15-match-room/internal/room"
	"github.com/koopa0/system-design/15-match-room/internal/router"
	"github.com/koopa0/system-design/15-match-room/internal/session"
	"github.com/koopa0/system-design/15-match-room/internal/transport"
	"github.com/redis/go-redis/v9"
)

func main() {
	// 解析命令行參數；命令行優先於配置檔
	var (
		configPath = flag.String("config", "", "配置文件路徑 (YAML)")
		port       = flag.Int("port", 0, "服務器端口（覆蓋配置）")
		logLevel   = flag.String("log-level", "", "日誌級別 (debug, info, warn, error)")
		logFormat  = flag.String("log-format", "", "日誌格式 (text, json)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "載入配置失敗: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)

	if err := run(cfg, logger); err != nil {
		logger.Error("服務器異常退出", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	// Session 快取：Redis 或記憶體
	sessions, closeSessions, err := setupSessions(cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeSessions()

	// 帳本事件：NATS 或不發送
	var notifier notify.Notifier = notify.Nop{}
	if cfg.NATS.Enabled {
		nc, err := notify.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := nc.Close(); err != nil {
				logger.Error("關閉 NATS 失敗", "error", err)
			}
		}()
		notifier = nc
	}

	// Hub 與 Router 互相依賴：Router 透過 Hub 發送，Hub 把訊息交給 Router
	hub := transport.NewHub(logger, transport.Options{
		SendBuffer: cfg.WebSocket.SendBuffer,
		PongWait:   cfg.WebSocket.PongWait,
		PingPeriod: cfg.WebSocket.PingPeriod,
	})

	rt, err := router.New(hub, logger, router.Options{
		Level: cfg.Game.Level,
		Room: room.Options{
			TickInterval: cfg.Game.TickInterval(),
			Match: match.Options{
				CollectRadius: cfg.Game.CollectRadius,
				PrizeRadius:   cfg.Game.PrizeRadius,
			},
		},
		Sessions: sessions,
		Notifier: notifier,
	})
	if err != nil {
		return fmt.Errorf("建立路由失敗: %w", err)
	}
	hub.Bind(rt)

	h := handler.New(rt, hub, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("對戰房間服務器啟動",
			"port", cfg.Server.Port,
			"tick_rate", cfg.Game.TickRate,
			"redis", cfg.Redis.Enabled,
			"nats", cfg.NATS.Enabled)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待中斷信號
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("收到關閉信號，開始優雅關閉...", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("服務器啟動失敗: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// 停止接受新連接
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("服務器關閉失敗", "error", err)
	}

	// 先斷開 WebSocket，再結束所有房間並等待 session 寫入完成
	hub.Stop()
	rt.Stop()

	logger.Info("服務器已關閉")
	return nil
}

// setupSessions 建立 session 快取；回傳的 close 函數永遠可以呼叫
func setupSessions(cfg config.Redis, logger *slog.Logger) (session.Store, func(), error) {
	if !cfg.Enabled {
		logger.Info("使用記憶體 session 快取")
		return session.NewMemory(cfg.SessionTTL), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("連接 Redis 失敗: %w", err)
	}
	logger.Info("Redis 連接成功", "addr", cfg.Addr)

	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Error("關閉 Redis 失敗", "error", err)
		}
	}
	return session.NewRedis(client, cfg.SessionTTL), closeFn, nil
}

// setupLogger 設置日誌
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: level == "debug", // debug 模式顯示源碼位置
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
