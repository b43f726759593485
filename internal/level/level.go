// Package level 產生單場對局的靜態關卡資料。
//
// 關卡是一個 Rows × Cols 的迷宮格（每一格稱為 chamber），
// 中央格放置獎勵（prize），其餘格子放置收集物（collectible）。
//
// 本套件只有純資料與驗證函式，不做任何 I/O。
package level

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// ErrInvalidConfig 關卡配置不合法（格子數或尺寸非正數）
var ErrInvalidConfig = errors.New("關卡配置不合法")

// Position 二維座標（像素單位）
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance 兩點歐氏距離
func (p Position) Distance(q Position) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Chamber 迷宮中的一格
type Chamber struct {
	ID       string   `json:"id"`
	Row      int      `json:"row"`
	Col      int      `json:"col"`
	Position Position `json:"position"` // 左上角
	Width    float64  `json:"width"`
	Height   float64  `json:"height"`
}

// Center 格子中心點
func (c Chamber) Center() Position {
	return Position{X: c.Position.X + c.Width/2, Y: c.Position.Y + c.Height/2}
}

// Contains 座標是否落在格子內（含邊界）
func (c Chamber) Contains(p Position) bool {
	return p.X >= c.Position.X && p.X <= c.Position.X+c.Width &&
		p.Y >= c.Position.Y && p.Y <= c.Position.Y+c.Height
}

// Collectible 收集物
type Collectible struct {
	ID        string   `json:"id"`
	Kind      string   `json:"kind"`
	Position  Position `json:"position"`
	ChamberID string   `json:"chamberId"`
	Taken     bool     `json:"taken"`
}

// Prize 每場唯一的獎勵
type Prize struct {
	ID            string   `json:"id"`
	Position      Position `json:"position"`
	ChamberID     string   `json:"chamberId"`
	RequiredCount int      `json:"requiredCount"`
	Claimed       bool     `json:"claimed"`
	ClaimedBy     string   `json:"claimedBy,omitempty"`
}

// Layout 一場對局的完整關卡
type Layout struct {
	Chambers     []Chamber     `json:"chambers"`
	Collectibles []Collectible `json:"collectibles"`
	Prize        Prize         `json:"prize"`
}

// ChamberAt 找出座標所在的格子
func (l *Layout) ChamberAt(p Position) (Chamber, bool) {
	for _, c := range l.Chambers {
		if c.Contains(p) {
			return c, true
		}
	}
	return Chamber{}, false
}

// Config 關卡配置
type Config struct {
	Rows          int     `yaml:"rows"`
	Cols          int     `yaml:"cols"`
	ChamberWidth  float64 `yaml:"chamber_width"`
	ChamberHeight float64 `yaml:"chamber_height"`
	OffsetX       float64 `yaml:"offset_x"`
	OffsetY       float64 `yaml:"offset_y"`
	Margin        float64 `yaml:"margin"` // 收集物與牆壁的最小距離
	Collectibles  int     `yaml:"collectibles"`
	Required      int     `yaml:"required"` // 領獎所需收集數
	Seed          uint64  `yaml:"seed"`     // 0 表示每場隨機
}

// DefaultConfig 3x3 迷宮、6 個收集物、領獎需 3 個
func DefaultConfig() Config {
	return Config{
		Rows:          3,
		Cols:          3,
		ChamberWidth:  200,
		ChamberHeight: 150,
		OffsetX:       100,
		OffsetY:       100,
		Margin:        40,
		Collectibles:  6,
		Required:      3,
	}
}

// Validate 檢查格子數與尺寸
func (c Config) Validate() error {
	if c.Rows <= 0 || c.Cols <= 0 {
		return fmt.Errorf("%w: rows=%d cols=%d", ErrInvalidConfig, c.Rows, c.Cols)
	}
	if c.ChamberWidth <= 0 || c.ChamberHeight <= 0 {
		return fmt.Errorf("%w: chamber=%.0fx%.0f", ErrInvalidConfig, c.ChamberWidth, c.ChamberHeight)
	}
	return nil
}

var kinds = []string{
	"apple_core",
	"banana_peel",
	"cardboard_box",
	"fish_bones",
	"glass_bottle",
	"milk_carton",
	"newspaper",
	"plastic_bottle",
	"soda_can",
}

// Generate 依配置產生關卡
//
// 放置規則：
//   - 獎勵固定在中央格（rows/2, cols/2）
//   - 收集物依洗牌後的順序放入其餘格子，數量超過格子數時循環放置
//   - 只有 1 格時收集物與獎勵同格
//   - 所需數量不會超過收集物總數
func Generate(cfg Config) (*Layout, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	layout := &Layout{
		Chambers: make([]Chamber, 0, cfg.Rows*cfg.Cols),
	}
	for row := 0; row < cfg.Rows; row++ {
		for col := 0; col < cfg.Cols; col++ {
			layout.Chambers = append(layout.Chambers, Chamber{
				ID:  fmt.Sprintf("chamber_%d_%d", row, col),
				Row: row,
				Col: col,
				Position: Position{
					X: float64(col)*cfg.ChamberWidth + cfg.OffsetX,
					Y: float64(row)*cfg.ChamberHeight + cfg.OffsetY,
				},
				Width:  cfg.ChamberWidth,
				Height: cfg.ChamberHeight,
			})
		}
	}

	center := (cfg.Rows/2)*cfg.Cols + cfg.Cols/2
	prizeChamber := layout.Chambers[center]

	candidates := make([]Chamber, 0, len(layout.Chambers)-1)
	for i, c := range layout.Chambers {
		if i != center {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		candidates = append(candidates, prizeChamber)
	}
	rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	count := max(cfg.Collectibles, 0)
	layout.Collectibles = make([]Collectible, 0, count)
	for i := 0; i < count; i++ {
		chamber := candidates[i%len(candidates)]
		kind := kinds[i%len(kinds)]
		layout.Collectibles = append(layout.Collectibles, Collectible{
			ID:        fmt.Sprintf("item_%s_%s_%d", kind, chamber.ID, i),
			Kind:      kind,
			Position:  placeWithin(rng, chamber, cfg.Margin),
			ChamberID: chamber.ID,
		})
	}

	layout.Prize = Prize{
		ID:            "center_prize",
		Position:      prizeChamber.Center(),
		ChamberID:     prizeChamber.ID,
		RequiredCount: min(max(cfg.Required, 0), count),
	}

	return layout, nil
}

// placeWithin 在格子內（扣除 margin）隨機取一點；格子太小時取中心
func placeWithin(rng *rand.Rand, c Chamber, margin float64) Position {
	w := c.Width - 2*margin
	h := c.Height - 2*margin
	if w <= 0 || h <= 0 {
		return c.Center()
	}
	return Position{
		X: c.Position.X + margin + rng.Float64()*w,
		Y: c.Position.Y + margin + rng.Float64()*h,
	}
}
