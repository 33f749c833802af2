package database

import (
	"context"
	"errors"
	"time"

	"realchat/backend/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound 表示查詢目標 (聊天室或訊息) 不存在
var ErrNotFound = errors.New("database: not found")

// Store 是聊天室與訊息的持久層
// 所有 read-modify-write 更新 ($addToSet) 都交給 MongoDB 原子運算子執行，
// 以容忍多個連線的並發 join / read
type Store struct{}

// NewStore 回傳一個持久層實例
func NewStore() *Store {
	return &Store{}
}

// InsertMessage 將新的聊天訊息插入到 MongoDB，新訊息一律未讀且 readBy 為空
func (s *Store) InsertMessage(ctx context.Context, content, senderID, roomID string) (models.Message, error) {
	now := time.Now().UTC()
	msg := models.Message{
		Content:   content,
		SenderID:  senderID,
		RoomID:    roomID,
		IsRead:    false,
		ReadBy:    []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	result, err := GetCollection("messages").InsertOne(ctx, msg)
	if err != nil {
		return models.Message{}, err
	}
	msg.ID = result.InsertedID.(primitive.ObjectID)
	return msg, nil
}

// MarkMessageRead 將使用者加入訊息的 readBy 集合 ($addToSet，重複呼叫為 no-op)
func (s *Store) MarkMessageRead(ctx context.Context, messageID, userID string) error {
	oid, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return ErrNotFound
	}

	result, err := GetCollection("messages").UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{
			"$addToSet": bson.M{"readBy": userID},
			"$set":      bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// AddParticipant 將使用者加入聊天室的持久參與者列表 ($addToSet，已存在則為 no-op)
// 注意：參與者列表只增不減，離開聊天室不會從這裡移除 (公開聊天室的未讀通知依賴它)
func (s *Store) AddParticipant(ctx context.Context, roomID, userID string) error {
	oid, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return ErrNotFound
	}

	result, err := GetCollection("chatrooms").UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{
			"$addToSet": bson.M{"participants": userID},
			"$set":      bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastMessage 更新聊天室的 lastMessageAt 並回傳更新後的聊天室
// (發送訊息時呼叫，回傳值帶有計算未讀名單所需的 participants)
func (s *Store) TouchLastMessage(ctx context.Context, roomID string) (*models.ChatRoom, error) {
	oid, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return nil, ErrNotFound
	}

	now := time.Now().UTC()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var room models.ChatRoom
	err = GetCollection("chatrooms").FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"lastMessageAt": now, "updatedAt": now}},
		opts,
	).Decode(&room)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &room, nil
}

// FindChatRoomByID 依 ID 查詢聊天室，不存在時回傳 ErrNotFound
func (s *Store) FindChatRoomByID(ctx context.Context, roomID string) (*models.ChatRoom, error) {
	oid, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return nil, ErrNotFound
	}

	var room models.ChatRoom
	err = GetCollection("chatrooms").FindOne(ctx, bson.M{"_id": oid}).Decode(&room)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &room, nil
}

// GetChatHistory 獲取指定聊天室的歷史訊息，由舊到新排序
func (s *Store) GetChatHistory(ctx context.Context, roomID string, limit, skip int64) ([]models.Message, error) {
	findOptions := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(limit).
		SetSkip(skip)

	cursor, err := GetCollection("messages").Find(ctx, bson.M{"roomId": roomID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, err
	}

	// 查詢用新到舊以便取「最近 N 筆」，回傳前反轉成由舊到新
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ListChatRooms 列出所有活躍聊天室，依最後訊息時間排序 (新的在前)
func (s *Store) ListChatRooms(ctx context.Context) ([]models.ChatRoom, error) {
	findOptions := options.Find().
		SetSort(bson.D{{Key: "lastMessageAt", Value: -1}, {Key: "createdAt", Value: -1}})

	cursor, err := GetCollection("chatrooms").Find(ctx, bson.M{"isActive": true}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rooms []models.ChatRoom
	if err = cursor.All(ctx, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// InsertChatRoom 建立新的聊天室
func (s *Store) InsertChatRoom(ctx context.Context, name string, participants []string) (models.ChatRoom, error) {
	now := time.Now().UTC()
	room := models.ChatRoom{
		Name:         name,
		Participants: participants,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	result, err := GetCollection("chatrooms").InsertOne(ctx, room)
	if err != nil {
		return models.ChatRoom{}, err
	}
	room.ID = result.InsertedID.(primitive.ObjectID)
	return room, nil
}

// ListUserIDs 列出所有使用者的 ID (建立公開聊天室時做為初始參與者)
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	cursor, err := GetCollection("users").Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID.Hex())
	}
	return ids, nil
}
