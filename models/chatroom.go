package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChatRoom 代表一個公開聊天室的元資料
// Participants 是持久的參與者列表：只會透過 join 增長，離開聊天室不會縮減
// (公開聊天室，離開的人之後仍需收到未讀通知)
type ChatRoom struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Name          string             `bson:"name" json:"name"`
	Participants  []string           `bson:"participants" json:"participants"` // 參與者的使用者 ID 列表
	IsActive      bool               `bson:"isActive" json:"isActive"`
	LastMessageAt *time.Time         `bson:"lastMessageAt,omitempty" json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// ChatRoomWithUnread 是聊天室列表 API 的回應項目，附帶該使用者的未讀數
type ChatRoomWithUnread struct {
	ChatRoom
	UnreadCount int64 `json:"unreadCount"`
}
