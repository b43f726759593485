package router_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koopa0/system-design/15-match-room/internal/level"
	"github.com/koopa0/system-design/15-match-room/internal/match"
	"github.com/koopa0/system-design/15-match-room/internal/notify"
	"github.com/koopa0/system-design/15-match-room/internal/protocol"
	"github.com/koopa0/system-design/15-match-room/internal/room"
	"github.com/koopa0/system-design/15-match-room/internal/router"
	"github.com/koopa0/system-design/15-match-room/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// recorder 記錄送出的訊息
type recorder struct {
	mu   sync.Mutex
	sent map[string][]protocol.Message
}

func (r *recorder) Send(connID string, msg protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent == nil {
		r.sent = make(map[string][]protocol.Message)
	}
	r.sent[connID] = append(r.sent[connID], msg)
}

func (r *recorder) messages(connID, event string) []protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []protocol.Message
	for _, m := range r.sent[connID] {
		if m.Event == event {
			out = append(out, m)
		}
	}
	return out
}

// last 取得最後一則指定事件，沒有則測試失敗
func (r *recorder) last(t *testing.T, connID, event string) protocol.Message {
	t.Helper()
	msgs := r.messages(connID, event)
	require.NotEmpty(t, msgs, "連線 %s 沒有收到 %s", connID, event)
	return msgs[len(msgs)-1]
}

// notifier 記錄發布的帳本事件
type notifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *notifier) Notify(e notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *notifier) byKind(kind string) []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []notify.Event
	for _, e := range n.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	router   *router.Router
	sent     *recorder
	events   *notifier
	sessions *session.Memory
}

func newFixture(t testing.TB) *fixture {
	t.Helper()

	var seq atomic.Int64
	cfg := level.DefaultConfig()
	cfg.Seed = 42

	f := &fixture{
		sent:     &recorder{},
		events:   &notifier{},
		sessions: session.NewMemory(0),
	}
	r, err := router.New(f.sent, testLogger(), router.Options{
		Level:    cfg,
		Room:     room.Options{TickInterval: time.Hour},
		Sessions: f.sessions,
		Notifier: f.events,
		NewID:    func() string { return fmt.Sprintf("room_%d", seq.Add(1)) },
	})
	require.NoError(t, err)
	t.Cleanup(r.Stop)

	f.router = r
	return f
}

// snapshot 從 match_started 取得關卡快照
func (f *fixture) snapshot(t *testing.T, connID string) match.Snapshot {
	t.Helper()
	started := f.sent.last(t, connID, protocol.EventMatchStarted)
	snap, ok := started.Data.(protocol.MatchStarted).State.(match.Snapshot)
	require.True(t, ok)
	return snap
}

// collectRequired 讓 connID 撿到領獎所需的數量
func (f *fixture) collectRequired(t *testing.T, connID string, snap match.Snapshot) {
	t.Helper()
	for _, c := range snap.Collectibles[:snap.RequiredCount] {
		f.router.Dispatch(connID, protocol.CollectItem{ItemID: c.ID, Position: c.Position})
	}
	require.Len(t, f.sent.messages(connID, protocol.EventItemCollected), snap.RequiredCount)
}

// startStaked 建立押注房間並讓雙方確認
func (f *fixture) startStaked(t *testing.T, amount float64) string {
	t.Helper()
	require.NoError(t, f.router.CreateStakedRoom("c1", "wallet_a", amount))
	roomID := f.sent.last(t, "c1", protocol.EventStakedRoomCreated).Data.(protocol.StakedRoomCreated).RoomID

	require.NoError(t, f.router.JoinRoomByID("c2", "wallet_b", roomID))
	f.router.Dispatch("c1", protocol.PlayerStaked{Identity: "wallet_a", RoomID: roomID})
	f.router.Dispatch("c2", protocol.PlayerStaked{Identity: "wallet_b", RoomID: roomID})

	info, err := f.router.RoomInfo(roomID)
	require.NoError(t, err)
	require.Equal(t, room.StatusActive, info.Status)
	return roomID
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := router.New(&recorder{}, testLogger(), router.Options{Level: level.Config{}})
	assert.ErrorIs(t, err, level.ErrInvalidConfig)
}

// TestRouter_JoinQueue 測試配對
func TestRouter_JoinQueue(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(f *fixture)
		connID   string
		identity string
		expected error
		validate func(t *testing.T, f *fixture)
	}{
		{
			name:     "first connection creates room",
			connID:   "c1",
			identity: "wallet_a",
			validate: func(t *testing.T, f *fixture) {
				joined := f.sent.last(t, "c1", protocol.EventRoomJoined).Data.(protocol.RoomJoined)
				assert.Equal(t, "room_1", joined.RoomID)
				assert.Equal(t, 1, joined.ParticipantCount)

				stats := f.router.Stats()
				assert.Equal(t, 1, stats.Rooms)
				assert.Equal(t, 1, stats.OpenRooms)
			},
		},
		{
			name:     "second connection fills room and starts match",
			setup:    func(f *fixture) { f.router.JoinQueue("c1", "wallet_a") },
			connID:   "c2",
			identity: "wallet_b",
			validate: func(t *testing.T, f *fixture) {
				joined := f.sent.last(t, "c2", protocol.EventRoomJoined).Data.(protocol.RoomJoined)
				assert.Equal(t, "room_1", joined.RoomID)
				assert.Equal(t, 2, joined.ParticipantCount)

				for _, conn := range []string{"c1", "c2"} {
					started := f.sent.last(t, conn, protocol.EventMatchStarted).Data.(protocol.MatchStarted)
					assert.Len(t, started.Participants, 2)
				}

				stats := f.router.Stats()
				assert.Equal(t, 0, stats.OpenRooms)
				assert.Equal(t, 1, stats.ByStatus[room.StatusActive])
			},
		},
		{
			name: "third connection gets a new room",
			setup: func(f *fixture) {
				f.router.JoinQueue("c1", "wallet_a")
				f.router.JoinQueue("c2", "wallet_b")
			},
			connID:   "c3",
			identity: "wallet_c",
			validate: func(t *testing.T, f *fixture) {
				joined := f.sent.last(t, "c3", protocol.EventRoomJoined).Data.(protocol.RoomJoined)
				assert.Equal(t, "room_2", joined.RoomID)
				assert.Equal(t, 2, f.router.Stats().Rooms)
			},
		},
		{
			name:     "staked rooms are never matched",
			setup:    func(f *fixture) { f.router.CreateStakedRoom("c1", "wallet_a", 0.5) },
			connID:   "c2",
			identity: "wallet_b",
			validate: func(t *testing.T, f *fixture) {
				joined := f.sent.last(t, "c2", protocol.EventRoomJoined).Data.(protocol.RoomJoined)
				assert.Equal(t, "room_2", joined.RoomID)
			},
		},
		{
			name:     "already in room",
			setup:    func(f *fixture) { f.router.JoinQueue("c1", "wallet_a") },
			connID:   "c1",
			identity: "wallet_a",
			expected: router.ErrAlreadyInRoom,
			validate: func(t *testing.T, f *fixture) {
				assert.Len(t, f.sent.messages("c1", protocol.EventQueueError), 1)
				assert.Equal(t, 1, f.router.Stats().Rooms)
			},
		},
		{
			name:     "missing identity",
			connID:   "c1",
			expected: router.ErrMissingIdentity,
			validate: func(t *testing.T, f *fixture) {
				assert.Len(t, f.sent.messages("c1", protocol.EventQueueError), 1)
				assert.Zero(t, f.router.Stats().Rooms)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}

			err := f.router.JoinQueue(tt.connID, tt.identity)
			if tt.expected != nil {
				assert.ErrorIs(t, err, tt.expected)
			} else {
				assert.NoError(t, err)
			}
			tt.validate(t, f)
		})
	}
}

// TestRouter_RejoinAfterEnded 對局結束後可以直接重新配對
func TestRouter_RejoinAfterEnded(t *testing.T) {
	f := newFixture(t)
	f.router.JoinQueue("c1", "wallet_a")
	f.router.JoinQueue("c2", "wallet_b")
	f.router.Leave("c2")

	info, err := f.router.RoomInfo("room_1")
	require.NoError(t, err)
	require.Equal(t, room.StatusEnded, info.Status)

	require.NoError(t, f.router.JoinQueue("c1", "wallet_a"))
	joined := f.sent.last(t, "c1", protocol.EventRoomJoined).Data.(protocol.RoomJoined)
	assert.Equal(t, "room_2", joined.RoomID)

	// 舊房間清空後移除
	_, err = f.router.RoomInfo("room_1")
	assert.ErrorIs(t, err, router.ErrRoomNotFound)
}

// TestRouter_JoinRoomByID 測試指定房間加入
func TestRouter_JoinRoomByID(t *testing.T) {
	t.Run("room not found", func(t *testing.T) {
		f := newFixture(t)
		err := f.router.JoinRoomByID("c1", "wallet_a", "room_404")
		assert.ErrorIs(t, err, router.ErrRoomNotFound)
		assert.Len(t, f.sent.messages("c1", protocol.EventQueueError), 1)
	})

	t.Run("third participant never mutates roster", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.router.CreateStakedRoom("c1", "wallet_a", 0.1))
		require.NoError(t, f.router.JoinRoomByID("c2", "wallet_b", "room_1"))

		err := f.router.JoinRoomByID("c3", "wallet_c", "room_1")
		assert.ErrorIs(t, err, router.ErrRoomFull)
		assert.Len(t, f.sent.messages("c3", protocol.EventStakeRoomError), 1)

		info, err := f.router.RoomInfo("room_1")
		require.NoError(t, err)
		assert.Equal(t, 2, info.ParticipantCount)
		assert.Equal(t, []string{"wallet_a", "wallet_b"}, info.Identities)
		assert.Equal(t, room.StatusStaking, info.Status)
	})

	t.Run("join unstaked room by id starts match", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.router.JoinQueue("c1", "wallet_a"))
		require.NoError(t, f.router.JoinRoomByID("c2", "wallet_b", "room_1"))

		assert.NotEmpty(t, f.sent.messages("c1", protocol.EventMatchStarted))
		assert.Zero(t, f.router.Stats().OpenRooms)
	})
}

func TestRouter_CreateStakedRoom(t *testing.T) {
	tests := []struct {
		name     string
		amount   float64
		expected error
	}{
		{name: "valid", amount: 0.5},
		{name: "minimum", amount: room.MinStake},
		{name: "too small", amount: 0.0001, expected: room.ErrStakeOutOfRange},
		{name: "too large", amount: 2, expected: room.ErrStakeOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			err := f.router.CreateStakedRoom("c1", "wallet_a", tt.amount)

			if tt.expected != nil {
				assert.ErrorIs(t, err, tt.expected)
				assert.Len(t, f.sent.messages("c1", protocol.EventStakeRoomError), 1)
				assert.Zero(t, f.router.Stats().Rooms)
				assert.Empty(t, f.events.byKind(notify.KindStakedRoomCreated))
				return
			}

			require.NoError(t, err)
			created := f.sent.last(t, "c1", protocol.EventStakedRoomCreated).Data.(protocol.StakedRoomCreated)
			assert.Equal(t, "room_1", created.RoomID)
			assert.Equal(t, tt.amount, created.Amount)
			assert.Equal(t, "wager:wallet_a", created.LedgerRef)
			assert.NotEmpty(t, f.sent.messages("c1", protocol.EventRoomJoined))

			events := f.events.byKind(notify.KindStakedRoomCreated)
			require.Len(t, events, 1)
			assert.Equal(t, "wager:wallet_a", events[0].LedgerRef)

			info, err := f.router.RoomInfo("room_1")
			require.NoError(t, err)
			require.NotNil(t, info.Stake)
			assert.Equal(t, room.StatusLobby, info.Status)
		})
	}
}

// TestRouter_StakedMatchScenario 押注對局完整流程
func TestRouter_StakedMatchScenario(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.router.CreateStakedRoom("c1", "wallet_a", 0.5))
	info, _ := f.router.RoomInfo("room_1")
	assert.Equal(t, room.StatusLobby, info.Status)
	assert.Equal(t, 1, info.ParticipantCount)

	require.NoError(t, f.router.JoinRoomByID("c2", "wallet_b", "room_1"))
	info, _ = f.router.RoomInfo("room_1")
	assert.Equal(t, room.StatusStaking, info.Status)

	f.router.Dispatch("c1", protocol.PlayerStaked{Identity: "wallet_a", RoomID: "room_1"})
	info, _ = f.router.RoomInfo("room_1")
	assert.Equal(t, room.StatusStaking, info.Status)

	f.router.Dispatch("c2", protocol.PlayerStaked{Identity: "wallet_b", RoomID: "room_1"})
	info, _ = f.router.RoomInfo("room_1")
	assert.Equal(t, room.StatusActive, info.Status)
	assert.Len(t, f.events.byKind(notify.KindStakeConfirmed), 2)

	snap := f.snapshot(t, "c1")
	assert.True(t, snap.Started)
	assert.Less(t, snap.Elapsed, 1.0)

	f.collectRequired(t, "c1", snap)
	f.router.Dispatch("c1", protocol.ClaimPrize{Position: snap.Prize.Position, CollectedCount: snap.RequiredCount})

	for _, conn := range []string{"c1", "c2"} {
		won := f.sent.last(t, conn, protocol.EventMatchWon).Data.(protocol.MatchWon)
		assert.Equal(t, "c1", won.WinnerID)
		assert.Equal(t, "wallet_a", won.WinnerIdentity)
		require.NotNil(t, won.Payout)
		assert.Equal(t, 1.0, *won.Payout)
	}

	info, _ = f.router.RoomInfo("room_1")
	assert.Equal(t, room.StatusEnded, info.Status)

	prizes := f.router.UnclaimedPrizes("wallet_a")
	require.Len(t, prizes, 1)
	assert.Equal(t, "room_1", prizes[0].RoomID)
	assert.Equal(t, 1.0, prizes[0].Payout)
	assert.Empty(t, f.router.UnclaimedPrizes("wallet_b"))

	won := f.events.byKind(notify.KindPrizeWon)
	require.Len(t, won, 1)
	assert.Equal(t, 1.0, won[0].Payout)

	// 勝者斷線後紀錄仍在
	f.router.Leave("c1")
	f.router.Dispatch("c9", protocol.GetUnclaimedPrizes{Identity: "wallet_a"})
	listed := f.sent.last(t, "c9", protocol.EventUnclaimedPrizes).Data.(protocol.UnclaimedPrizes)
	assert.Len(t, listed.Prizes, 1)

	f.router.Dispatch("c9", protocol.PrizeClaimedExternally{Identity: "wallet_a", RoomID: "room_1"})
	cleared := f.sent.last(t, "c9", protocol.EventPrizeCleared).Data.(protocol.PrizeCleared)
	assert.True(t, cleared.Cleared)
	assert.Empty(t, f.router.UnclaimedPrizes("wallet_a"))
	assert.Len(t, f.events.byKind(notify.KindPrizeCleared), 1)

	// 重複清除
	f.router.Dispatch("c9", protocol.PrizeClaimedExternally{Identity: "wallet_a", RoomID: "room_1"})
	cleared = f.sent.last(t, "c9", protocol.EventPrizeCleared).Data.(protocol.PrizeCleared)
	assert.False(t, cleared.Cleared)
}

// TestRouter_UnstakedWinNotRecorded 無押注對局不寫入帳本
func TestRouter_UnstakedWinNotRecorded(t *testing.T) {
	f := newFixture(t)
	f.router.JoinQueue("c1", "wallet_a")
	f.router.JoinQueue("c2", "wallet_b")

	snap := f.snapshot(t, "c2")
	f.collectRequired(t, "c2", snap)
	f.router.Dispatch("c2", protocol.ClaimPrize{Position: snap.Prize.Position})

	won := f.sent.last(t, "c1", protocol.EventMatchWon).Data.(protocol.MatchWon)
	assert.Equal(t, "wallet_b", won.WinnerIdentity)
	assert.Nil(t, won.Payout)
	assert.Empty(t, f.router.UnclaimedPrizes("wallet_b"))
	assert.Empty(t, f.events.byKind(notify.KindPrizeWon))
}

// TestRouter_TerminalRoomIgnoresGameplay Ended 後不再改變對局狀態
func TestRouter_TerminalRoomIgnoresGameplay(t *testing.T) {
	f := newFixture(t)
	f.startStaked(t, 0.5)
	snap := f.snapshot(t, "c1")
	f.router.Leave("c2")

	target := snap.Collectibles[0]
	f.router.Dispatch("c1", protocol.CollectItem{ItemID: target.ID, Position: target.Position})
	f.router.Dispatch("c1", protocol.ClaimPrize{Position: snap.Prize.Position, CollectedCount: 99})
	f.router.Dispatch("c1", protocol.PlayerMove{Position: level.Position{X: 1, Y: 1}})

	failed := f.sent.last(t, "c1", protocol.EventItemCollectFailed).Data.(protocol.ItemCollectFailed)
	assert.Equal(t, room.ReasonNotActive, failed.Reason)
	claimErr := f.sent.last(t, "c1", protocol.EventPrizeClaimError).Data.(protocol.ErrorMessage)
	assert.Equal(t, room.ReasonNotActive, claimErr.Message)
	assert.Empty(t, f.sent.messages("c1", protocol.EventItemCollected))
	assert.Empty(t, f.sent.messages("c1", protocol.EventParticipantMoved))
	assert.Empty(t, f.router.UnclaimedPrizes("wallet_a"))
}

// TestRouter_DisconnectDuringActive 對局中斷線
func TestRouter_DisconnectDuringActive(t *testing.T) {
	f := newFixture(t)
	f.startStaked(t, 0.2)

	assert.True(t, f.router.Leave("c2"))

	ended := f.sent.last(t, "c1", protocol.EventMatchEnded).Data.(protocol.MatchEnded)
	assert.Equal(t, room.ReasonDisconnected, ended.Reason)
	assert.Empty(t, f.sent.messages("c1", protocol.EventMatchWon))

	aborted := f.events.byKind(notify.KindMatchAborted)
	require.Len(t, aborted, 1)
	assert.Equal(t, "wallet_b", aborted[0].Identity)

	// 最後一人離開後房間移除
	assert.True(t, f.router.Leave("c1"))
	assert.False(t, f.router.Leave("c1"))
	assert.Zero(t, f.router.Stats().Rooms)
}

func TestRouter_LeaveQueue(t *testing.T) {
	f := newFixture(t)
	f.router.JoinQueue("c1", "wallet_a")

	f.router.Dispatch("c1", protocol.LeaveQueue{})
	stats := f.router.Stats()
	assert.Zero(t, stats.Rooms)
	assert.Zero(t, stats.Connections)
}

func TestRouter_PlayerStakedErrors(t *testing.T) {
	t.Run("not in room", func(t *testing.T) {
		f := newFixture(t)
		f.router.CreateStakedRoom("c1", "wallet_a", 0.5)

		f.router.Dispatch("c2", protocol.PlayerStaked{Identity: "wallet_b", RoomID: "room_1"})
		msg := f.sent.last(t, "c2", protocol.EventStakeRoomError).Data.(protocol.ErrorMessage)
		assert.Equal(t, router.ErrNotInRoom.Error(), msg.Message)
	})

	t.Run("room id mismatch", func(t *testing.T) {
		f := newFixture(t)
		f.router.CreateStakedRoom("c1", "wallet_a", 0.5)

		f.router.Dispatch("c1", protocol.PlayerStaked{Identity: "wallet_a", RoomID: "room_9"})
		assert.Len(t, f.sent.messages("c1", protocol.EventStakeRoomError), 1)
	})

	t.Run("unstaked room", func(t *testing.T) {
		f := newFixture(t)
		f.router.JoinQueue("c1", "wallet_a")

		f.router.Dispatch("c1", protocol.PlayerStaked{Identity: "wallet_a", RoomID: "room_1"})
		msg := f.sent.last(t, "c1", protocol.EventStakeRoomError).Data.(protocol.ErrorMessage)
		assert.Equal(t, router.ErrNotStakedRoom.Error(), msg.Message)
	})
}

func TestRouter_RoomInfoAndPing(t *testing.T) {
	f := newFixture(t)
	f.router.CreateStakedRoom("c1", "wallet_a", 0.3)

	f.router.Dispatch("c2", protocol.GetRoomInfo{RoomID: "room_1"})
	info := f.sent.last(t, "c2", protocol.EventRoomInfo).Data.(room.Info)
	assert.Equal(t, "room_1", info.ID)
	require.NotNil(t, info.Stake)
	assert.Equal(t, 0.3, info.Stake.Amount)

	f.router.Dispatch("c2", protocol.GetRoomInfo{RoomID: "room_404"})
	assert.Len(t, f.sent.messages("c2", protocol.EventQueueError), 1)

	f.router.Dispatch("c2", protocol.Ping{})
	pong := f.sent.last(t, "c2", protocol.EventPong).Data.(protocol.Pong)
	assert.Positive(t, pong.Timestamp)
}

// TestRouter_SessionMirror 加入與離開會同步到 session 快取
func TestRouter_SessionMirror(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.router.JoinQueue("c1", "wallet_a")
	assert.Eventually(t, func() bool {
		s, err := f.router.Session(ctx, "wallet_a")
		return err == nil && s.RoomID == "room_1" && s.ConnID == "c1"
	}, time.Second, 5*time.Millisecond)

	f.router.Leave("c1")
	assert.Eventually(t, func() bool {
		_, err := f.router.Session(ctx, "wallet_a")
		return err == session.ErrNotFound
	}, time.Second, 5*time.Millisecond)
}

// TestRouter_ConcurrentCollect 兩條連線同時撿同一個收集物
func TestRouter_ConcurrentCollect(t *testing.T) {
	f := newFixture(t)
	f.router.JoinQueue("c1", "wallet_a")
	f.router.JoinQueue("c2", "wallet_b")
	target := f.snapshot(t, "c1").Collectibles[0]

	var wg sync.WaitGroup
	start := make(chan struct{})
	for _, conn := range []string{"c1", "c2"} {
		wg.Add(1)
		go func(conn string) {
			defer wg.Done()
			<-start
			f.router.Dispatch(conn, protocol.CollectItem{ItemID: target.ID, Position: target.Position})
		}(conn)
	}
	close(start)
	wg.Wait()

	// 成功廣播給雙方，失敗只送給輸家
	assert.Len(t, f.sent.messages("c1", protocol.EventItemCollected), 1)
	assert.Len(t, f.sent.messages("c2", protocol.EventItemCollected), 1)

	failures := len(f.sent.messages("c1", protocol.EventItemCollectFailed)) +
		len(f.sent.messages("c2", protocol.EventItemCollectFailed))
	assert.Equal(t, 1, failures)
}

// TestRouter_ConcurrentJoinQueue 並發配對不會超過房間容量
func TestRouter_ConcurrentJoinQueue(t *testing.T) {
	const n = 40
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, f.router.JoinQueue(fmt.Sprintf("c%d", i), fmt.Sprintf("wallet_%d", i)))
		}(i)
	}
	wg.Wait()

	stats := f.router.Stats()
	assert.Equal(t, n, stats.Connections)
	assert.Equal(t, n/2, stats.Rooms)
	assert.Equal(t, n/2, stats.ByStatus[room.StatusActive])
	assert.Zero(t, stats.OpenRooms)
}

func TestRouter_Stop(t *testing.T) {
	f := newFixture(t)
	f.router.JoinQueue("c1", "wallet_a")
	f.router.JoinQueue("c2", "wallet_b")

	f.router.Stop()

	ended := f.sent.last(t, "c1", protocol.EventMatchEnded).Data.(protocol.MatchEnded)
	assert.Equal(t, room.ReasonShutdown, ended.Reason)

	err := f.router.JoinQueue("c3", "wallet_c")
	assert.ErrorIs(t, err, router.ErrStopped)

	// 重複 Stop 安全
	f.router.Stop()
}
