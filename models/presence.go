package models

// Presence 代表一條綁定到某個連線的在線狀態
// 全域在線列表 (users:online) 和聊天室佔用集合 (room:<id>:users) 都使用此結構
type Presence struct {
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	ConnectionID string `json:"connectionId"`
}
