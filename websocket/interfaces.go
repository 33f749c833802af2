package websocket

import (
	"context"

	"realchat/backend/models"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks realchat/backend/websocket Store

// Store 是 Coordinator 依賴的持久層操作 (由 database.Store 實作)
type Store interface {
	InsertMessage(ctx context.Context, content, senderID, roomID string) (models.Message, error)
	MarkMessageRead(ctx context.Context, messageID, userID string) error
	AddParticipant(ctx context.Context, roomID, userID string) error
	TouchLastMessage(ctx context.Context, roomID string) (*models.ChatRoom, error)
}

// Cache 是 Coordinator 依賴的短生命週期狀態操作 (由 cache.RedisCache 實作)
// 任何操作失敗都不應阻擋持久寫入或廣播，呼叫方記錄後繼續
type Cache interface {
	AppendMessage(ctx context.Context, roomID string, message models.Message) error
	AddOccupant(ctx context.Context, roomID string, p models.Presence) error
	RemoveOccupant(ctx context.Context, roomID, userID string) error
	GetOccupants(ctx context.Context, roomID string) ([]models.Presence, error)
	GetOccupantCount(ctx context.Context, roomID string) (int64, error)
	SetTyping(ctx context.Context, roomID, userID, username string) error
	ClearTyping(ctx context.Context, roomID, userID string) error
	IncrementUnread(ctx context.Context, roomID, userID string) error
	ResetUnread(ctx context.Context, roomID, userID string) error
	MarkOnline(ctx context.Context, p models.Presence) error
	MarkOffline(ctx context.Context, userID string) error
	ListOnline(ctx context.Context) ([]models.Presence, error)
}
