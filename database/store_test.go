package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// setupTestStore 以 testcontainers 啟動一次性的 MongoDB，啟動不了就跳過
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping MongoDB integration test in short mode")
	}

	ctx := context.Background()
	container, err := mongodb.Run(ctx, "mongo:6")
	if err != nil {
		t.Skipf("could not start MongoDB container: %v", err)
	}
	testcontainers.CleanupContainer(t, container)

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	require.NoError(t, client.Ping(ctx, readpref.Primary()))
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	MongoClient = client
	dbName = "realchat_test"
	require.NoError(t, ensureIndexes(ctx, client.Database(dbName)))
	return NewStore()
}

func TestAddParticipantIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	room, err := s.InsertChatRoom(ctx, "general", []string{"user-a"})
	require.NoError(t, err)
	roomID := room.ID.Hex()

	// $addToSet：重複加入同一使用者不得產生重複項
	require.NoError(t, s.AddParticipant(ctx, roomID, "user-b"))
	require.NoError(t, s.AddParticipant(ctx, roomID, "user-b"))
	require.NoError(t, s.AddParticipant(ctx, roomID, "user-a"))

	got, err := s.FindChatRoomByID(ctx, roomID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user-a", "user-b"}, got.Participants)

	assert.ErrorIs(t, s.AddParticipant(ctx, primitive.NewObjectID().Hex(), "user-a"), ErrNotFound)
	assert.ErrorIs(t, s.AddParticipant(ctx, "not-an-object-id", "user-a"), ErrNotFound)
}

func TestChatHistoryOrdering(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	room, err := s.InsertChatRoom(ctx, "general", nil)
	require.NoError(t, err)
	roomID := room.ID.Hex()

	for i := 1; i <= 3; i++ {
		_, err := s.InsertMessage(ctx, fmt.Sprintf("message %d", i), "user-a", roomID)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond) // createdAt 必須嚴格遞增，排序才可預期
	}

	history, err := s.GetChatHistory(ctx, roomID, 50, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "message 1", history[0].Content)
	assert.Equal(t, "message 3", history[2].Content)

	// limit 取「最近 N 筆」，仍由舊到新回傳
	recent, err := s.GetChatHistory(ctx, roomID, 2, 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "message 2", recent[0].Content)
	assert.Equal(t, "message 3", recent[1].Content)

	// skip 往更舊的方向翻頁
	older, err := s.GetChatHistory(ctx, roomID, 2, 1)
	require.NoError(t, err)
	require.Len(t, older, 2)
	assert.Equal(t, "message 1", older[0].Content)
	assert.Equal(t, "message 2", older[1].Content)

	empty, err := s.GetChatHistory(ctx, "room-without-messages", 50, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMarkMessageRead(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	msg, err := s.InsertMessage(ctx, "hello", "user-a", primitive.NewObjectID().Hex())
	require.NoError(t, err)
	assert.Empty(t, msg.ReadBy, "新訊息的 readBy 應為空")

	msgID := msg.ID.Hex()
	require.NoError(t, s.MarkMessageRead(ctx, msgID, "user-b"))
	require.NoError(t, s.MarkMessageRead(ctx, msgID, "user-b")) // 重複已讀為 no-op

	var stored struct {
		ReadBy []string `bson:"readBy"`
	}
	err = GetCollection("messages").FindOne(ctx, bson.M{"_id": msg.ID}).Decode(&stored)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-b"}, stored.ReadBy)

	assert.ErrorIs(t, s.MarkMessageRead(ctx, primitive.NewObjectID().Hex(), "user-b"), ErrNotFound)
	assert.ErrorIs(t, s.MarkMessageRead(ctx, "not-an-object-id", "user-b"), ErrNotFound)
}

func TestTouchLastMessage(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	room, err := s.InsertChatRoom(ctx, "general", []string{"user-a", "user-b"})
	require.NoError(t, err)
	assert.Nil(t, room.LastMessageAt)

	touched, err := s.TouchLastMessage(ctx, room.ID.Hex())
	require.NoError(t, err)
	require.NotNil(t, touched.LastMessageAt)
	// 回傳更新後的文件，帶計算未讀名單所需的參與者
	assert.ElementsMatch(t, []string{"user-a", "user-b"}, touched.Participants)

	_, err = s.TouchLastMessage(ctx, primitive.NewObjectID().Hex())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListChatRooms(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	older, err := s.InsertChatRoom(ctx, "older", nil)
	require.NoError(t, err)
	newer, err := s.InsertChatRoom(ctx, "newer", nil)
	require.NoError(t, err)
	inactive, err := s.InsertChatRoom(ctx, "archived", nil)
	require.NoError(t, err)

	_, err = GetCollection("chatrooms").UpdateOne(ctx,
		bson.M{"_id": inactive.ID}, bson.M{"$set": bson.M{"isActive": false}})
	require.NoError(t, err)

	// older 剛收到訊息，應排在最前面
	_, err = s.TouchLastMessage(ctx, older.ID.Hex())
	require.NoError(t, err)

	rooms, err := s.ListChatRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 2, "非活躍的聊天室不應出現在列表")
	assert.Equal(t, older.ID, rooms[0].ID)
	assert.Equal(t, newer.ID, rooms[1].ID)
}

func TestListUserIDs(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	res, err := GetCollection("users").InsertMany(ctx, []interface{}{
		bson.M{"username": "alice", "email": "alice@example.com"},
		bson.M{"username": "bob", "email": "bob@example.com"},
	})
	require.NoError(t, err)

	ids, err := s.ListUserIDs(ctx)
	require.NoError(t, err)

	want := make([]string, 0, len(res.InsertedIDs))
	for _, id := range res.InsertedIDs {
		want = append(want, id.(primitive.ObjectID).Hex())
	}
	assert.ElementsMatch(t, want, ids)
}
