// Package matchroom 提供一個權威式的兩人對戰房間服務器。
//
// 兩名玩家透過 WebSocket 連上服務器，配對進同一個房間後，
// 在格狀關卡中撿取收集物，先湊齊指定數量並走到中央獎勵的人獲勝。
// 所有判定（撿取距離、重複撿取、領獎條件）都由服務器決定，客戶端只回報位置。
//
// # 房間生命週期
//
//	lobby ──(兩人到齊)──▶ active ──(領獎 / 斷線 / 關閉)──▶ ended
//	  │                     ▲
//	  └─(押注房間)─▶ staking ─(雙方確認押注)
//
// 押注房間在雙方確認押注前停留在 staking；任何一方離開就退回 lobby。
//
// # 押注與帳本
//
// 服務器不搬動資金，只記錄押注金額與外部帳本的對照鍵。
// 押注房間的勝者會留下一筆未領取獎勵，外部確認領取後清除。
// 帳本相關事件透過 NATS 發布（stake.created、prize.won、match.aborted 等）。
//
// # 使用範例
//
// 啟動服務器：
//
//	go run ./cmd/server -config configs/config.yaml
//
// 客戶端連接後會先收到 welcome，接著送出：
//
//	{"event":"join_queue","data":{"identity":"wallet_a"}}
//
// # 架構設計
//
// 系統採用分層架構設計：
//   - level：關卡產生（格子、收集物、獎勵位置）
//   - match：單場對局的權威判定
//   - room：房間狀態機與 60Hz 狀態推送
//   - router：配對佇列、連線與房間對照、獎勵帳本
//   - transport：WebSocket Hub
//   - handler：HTTP 查詢 API
//   - session：身分快取（記憶體或 Redis）
//   - notify：帳本事件（NATS）
//
// # 配置選項
//
// 配置以 YAML 載入（見 configs/config.yaml），命令行參數可覆蓋：
//   - -config：配置檔路徑
//   - -port：服務監聽端口（預設 8080）
//   - -log-level：日誌級別（debug/info/warn/error）
//   - -log-format：日誌格式（text/json）
package matchroom
