// Package match 實作單一房間的伺服器權威裁判。
//
// 收集物與獎勵的「檢查 → 翻轉」一律在同一把鎖內完成（test-and-set），
// 保證任何收集物或獎勵最多只會被一方取得。
package match
