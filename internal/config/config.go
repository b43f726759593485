// Package config 載入 YAML 配置。
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/koopa0/system-design/15-match-room/internal/level"
	"gopkg.in/yaml.v3"
)

// ErrInvalid 配置不合法
var ErrInvalid = errors.New("配置不合法")

// Config 整個應用的配置
type Config struct {
	Server    Server    `yaml:"server"`
	Log       Log       `yaml:"log"`
	Game      Game      `yaml:"game"`
	WebSocket WebSocket `yaml:"websocket"`
	Redis     Redis     `yaml:"redis"`
	NATS      NATS      `yaml:"nats"`
}

// Server HTTP 伺服器
type Server struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Log 日誌
type Log struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Game 對局規則
type Game struct {
	TickRate      int          `yaml:"tick_rate"` // Hz
	CollectRadius float64      `yaml:"collect_radius"`
	PrizeRadius   float64      `yaml:"prize_radius"`
	Level         level.Config `yaml:"level"`
}

// WebSocket 連線參數
type WebSocket struct {
	SendBuffer int           `yaml:"send_buffer"`
	PongWait   time.Duration `yaml:"pong_wait"`
	PingPeriod time.Duration `yaml:"ping_period"`
}

// Redis session 快取；未啟用時改用記憶體
type Redis struct {
	Enabled    bool          `yaml:"enabled"`
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	PoolSize   int           `yaml:"pool_size"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// NATS 帳本事件；未啟用時不發送
type NATS struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Default 預設配置
func Default() Config {
	return Config{
		Server: Server{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Game: Game{
			TickRate:      60,
			CollectRadius: 120,
			PrizeRadius:   50,
			Level:         level.DefaultConfig(),
		},
		WebSocket: WebSocket{
			SendBuffer: 256,
			PongWait:   60 * time.Second,
			PingPeriod: 54 * time.Second,
		},
		Redis: Redis{
			Addr:       "localhost:6379",
			PoolSize:   10,
			SessionTTL: time.Hour,
		},
		NATS: NATS{
			URL:           "nats://localhost:4222",
			SubjectPrefix: "matchroom",
		},
	}
}

// Load 讀取配置檔並覆蓋預設值；path 為空時只使用預設值
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	// #nosec G304 - path 來自啟動參數
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 檢查配置
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: port=%d", ErrInvalid, c.Server.Port)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format=%q", ErrInvalid, c.Log.Format)
	}
	if c.Game.TickRate <= 0 {
		return fmt.Errorf("%w: game.tick_rate=%d", ErrInvalid, c.Game.TickRate)
	}
	if c.Game.CollectRadius <= 0 || c.Game.PrizeRadius <= 0 {
		return fmt.Errorf("%w: 半徑必須為正數", ErrInvalid)
	}
	if err := c.Game.Level.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("%w: redis.addr 不能為空", ErrInvalid)
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("%w: nats.url 不能為空", ErrInvalid)
	}
	return nil
}

// TickInterval 狀態推送間隔
func (g Game) TickInterval() time.Duration {
	return time.Second / time.Duration(g.TickRate)
}
