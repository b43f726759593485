package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/koopa0/system-design/15-match-room/internal/level"
	"github.com/koopa0/system-design/15-match-room/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDecode 測試每一種入站訊息
func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		expected protocol.Inbound
	}{
		{
			name:     "join queue",
			frame:    `{"event":"join_queue","data":{"identity":"wallet_a"}}`,
			expected: protocol.JoinQueue{Identity: "wallet_a"},
		},
		{
			name:     "leave queue without data",
			frame:    `{"event":"leave_queue"}`,
			expected: protocol.LeaveQueue{},
		},
		{
			name:     "create staked room",
			frame:    `{"event":"create_staked_room","data":{"identity":"wallet_a","amount":0.5}}`,
			expected: protocol.CreateStakedRoom{Identity: "wallet_a", Amount: 0.5},
		},
		{
			name:     "join room",
			frame:    `{"event":"join_room","data":{"roomId":"r1","identity":"wallet_b"}}`,
			expected: protocol.JoinRoom{RoomID: "r1", Identity: "wallet_b"},
		},
		{
			name:  "player move",
			frame: `{"event":"player_move","data":{"position":{"x":1.5,"y":2},"direction":"left"}}`,
			expected: protocol.PlayerMove{
				Position:  level.Position{X: 1.5, Y: 2},
				Direction: "left",
			},
		},
		{
			name:  "collect item",
			frame: `{"event":"collect_item","data":{"itemId":"item_1","position":{"x":10,"y":20}}}`,
			expected: protocol.CollectItem{
				ItemID:   "item_1",
				Position: level.Position{X: 10, Y: 20},
			},
		},
		{
			name:  "claim prize",
			frame: `{"event":"claim_prize","data":{"position":{"x":400,"y":325},"collectedCount":3}}`,
			expected: protocol.ClaimPrize{
				Position:       level.Position{X: 400, Y: 325},
				CollectedCount: 3,
			},
		},
		{
			name:     "player staked",
			frame:    `{"event":"player_staked","data":{"identity":"wallet_a","roomId":"r1"}}`,
			expected: protocol.PlayerStaked{Identity: "wallet_a", RoomID: "r1"},
		},
		{
			name:     "get unclaimed prizes",
			frame:    `{"event":"get_unclaimed_prizes","data":{"identity":"wallet_a"}}`,
			expected: protocol.GetUnclaimedPrizes{Identity: "wallet_a"},
		},
		{
			name:     "prize claimed externally",
			frame:    `{"event":"prize_claimed_externally","data":{"identity":"wallet_a","roomId":"r1"}}`,
			expected: protocol.PrizeClaimedExternally{Identity: "wallet_a", RoomID: "r1"},
		},
		{
			name:     "get room info",
			frame:    `{"event":"get_room_info","data":{"roomId":"r1"}}`,
			expected: protocol.GetRoomInfo{RoomID: "r1"},
		},
		{
			name:     "ping with null data",
			frame:    `{"event":"ping","data":null}`,
			expected: protocol.Ping{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := protocol.Decode([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, msg)
			assert.Equal(t, tt.expected.Event(), msg.Event())
		})
	}
}

// TestDecode_Errors 測試錯誤輸入
func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		expected error
	}{
		{name: "not json", frame: `hello`, expected: protocol.ErrMalformed},
		{name: "missing event", frame: `{"data":{}}`, expected: protocol.ErrMalformed},
		{name: "unknown event", frame: `{"event":"unlock_door","data":{}}`, expected: protocol.ErrUnknownEvent},
		{name: "wrong payload type", frame: `{"event":"join_queue","data":{"identity":42}}`, expected: protocol.ErrMalformed},
		{name: "payload not object", frame: `{"event":"claim_prize","data":"x"}`, expected: protocol.ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := protocol.Decode([]byte(tt.frame))
			assert.ErrorIs(t, err, tt.expected)
			assert.Nil(t, msg)
		})
	}
}

// TestMessage_Encode 出站訊息外層格式
func TestMessage_Encode(t *testing.T) {
	payout := 1.0
	msg := protocol.Message{
		Event: protocol.EventMatchWon,
		Data:  protocol.MatchWon{WinnerID: "c1", WinnerIdentity: "wallet_a", Payout: &payout},
	}

	frame, err := msg.Encode()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(frame, &decoded))
	assert.Equal(t, "match_won", decoded["event"])

	data := decoded["data"].(map[string]any)
	assert.Equal(t, "wallet_a", data["winnerIdentity"])
	assert.Equal(t, 1.0, data["payout"])

	// 無押注時不輸出 payout
	msg.Data = protocol.MatchWon{WinnerID: "c1"}
	frame, err = msg.Encode()
	require.NoError(t, err)
	assert.NotContains(t, string(frame), "payout")
}

func TestNewError(t *testing.T) {
	msg := protocol.NewError(protocol.EventQueueError, "房間已滿")
	assert.Equal(t, "queue_error", msg.Event)
	assert.Equal(t, protocol.ErrorMessage{Message: "房間已滿"}, msg.Data)
}
