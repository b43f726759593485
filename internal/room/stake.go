package room

import (
	"errors"
	"fmt"
)

// 押注金額上下限（與外部託管合約一致）
const (
	MinStake = 0.001
	MaxStake = 1.0
)

// ErrStakeOutOfRange 押注金額超出範圍
var ErrStakeOutOfRange = errors.New("押注金額超出範圍")

// Stake 押注房間的押注紀錄
//
// 伺服器不搬動資金，只保存外部帳本的對照資訊。
type Stake struct {
	Amount    float64
	IdentityA string // 建立者
	IdentityB string // 加入者，尚未有人加入時為空
	LedgerRef string
	Active    bool
}

// StakeInfo 對外公開的押注資訊
type StakeInfo struct {
	Amount    float64 `json:"amount"`
	IdentityA string  `json:"identityA"`
	IdentityB string  `json:"identityB,omitempty"`
	LedgerRef string  `json:"ledgerRef"`
	Active    bool    `json:"active"`
}

// NewStake 建立押注紀錄並驗證金額
func NewStake(amount float64, identityA string) (*Stake, error) {
	if amount < MinStake || amount > MaxStake {
		return nil, fmt.Errorf("%w: %g（允許 %g ~ %g）", ErrStakeOutOfRange, amount, MinStake, MaxStake)
	}
	return &Stake{
		Amount:    amount,
		IdentityA: identityA,
		LedgerRef: LedgerRef(identityA),
		Active:    true,
	}, nil
}

// LedgerRef 外部帳本的託管鍵，以建立者身分為種子
func LedgerRef(identity string) string {
	return "wager:" + identity
}

// Payout 勝者可領取的金額：雙方押注總和
func (s *Stake) Payout() float64 {
	return s.Amount * 2
}

// bind 依名單順序同步 A / B 身分；LedgerRef 維持建立時的值
func (s *Stake) bind(roster []*Participant) {
	if len(roster) == 0 {
		return
	}
	s.IdentityA = roster[0].Identity
	s.IdentityB = ""
	if len(roster) > 1 {
		s.IdentityB = roster[1].Identity
	}
}

func (s *Stake) info() StakeInfo {
	return StakeInfo{
		Amount:    s.Amount,
		IdentityA: s.IdentityA,
		IdentityB: s.IdentityB,
		LedgerRef: s.LedgerRef,
		Active:    s.Active,
	}
}
