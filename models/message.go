package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message 代表一個聊天訊息
// 訊息建立後不可變，只有 ReadBy 會增長 (append-only set)
type Message struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Content   string             `bson:"content" json:"content"`
	SenderID  string             `bson:"senderId" json:"senderId"`
	RoomID    string             `bson:"roomId" json:"roomId"` // 聊天室ID
	IsRead    bool               `bson:"isRead" json:"isRead"`
	ReadBy    []string           `bson:"readBy" json:"readBy"` // 已讀使用者 ID 集合
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}
