package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"realchat/backend/models"
)

// setupTestCache 連到本地 Redis，連不上就跳過 (整合測試需要真實的 Redis)
func setupTestCache(t *testing.T) *RedisCache {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available at localhost:6379: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return New(client)
}

// testRoomID 每個測試用獨立的聊天室ID，互不污染
func testRoomID() string {
	return "test-room-" + uuid.NewString()
}

// testMessage 產生可預期 ID 的測試訊息 (第 n 筆的 ID 是 %024x 編碼的 n)
func testMessage(id int, roomID string) models.Message {
	oid, _ := primitive.ObjectIDFromHex(fmt.Sprintf("%024x", id))
	return models.Message{
		ID:       oid,
		Content:  fmt.Sprintf("message %d", id),
		SenderID: "user-a",
		RoomID:   roomID,
	}
}

func TestRecentMessagesRoundTrip(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()
	roomID := testRoomID()
	t.Cleanup(func() { c.client.Del(ctx, messagesKey(roomID)) })

	messages := []models.Message{testMessage(1, roomID), testMessage(2, roomID), testMessage(3, roomID)}
	require.NoError(t, c.CacheRecentMessages(ctx, roomID, messages))

	cached, ok, err := c.GetRecentMessages(ctx, roomID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, cached, 3)
	// 由舊到新
	assert.Equal(t, "message 1", cached[0].Content)
	assert.Equal(t, "message 2", cached[1].Content)
	assert.Equal(t, "message 3", cached[2].Content)
	assert.Equal(t, messages[0].ID, cached[0].ID)

	ttl, err := c.client.TTL(ctx, messagesKey(roomID)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0), "快取必須有過期時間")
}

func TestGetRecentMessagesMiss(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	cached, ok, err := c.GetRecentMessages(ctx, testRoomID())
	require.NoError(t, err)
	assert.False(t, ok, "不存在的聊天室應視為快取缺失")
	assert.Empty(t, cached)
}

func TestAppendMessageTrimsToLimit(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()
	roomID := testRoomID()
	t.Cleanup(func() { c.client.Del(ctx, messagesKey(roomID)) })

	for i := 1; i <= recentMessageLimit+10; i++ {
		require.NoError(t, c.AppendMessage(ctx, roomID, testMessage(i, roomID)))
	}

	cached, ok, err := c.GetRecentMessages(ctx, roomID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, cached, recentMessageLimit, "超出上限的舊訊息應被修剪")
	// 剩下的是最新的 50 筆，由舊到新
	assert.Equal(t, "message 11", cached[0].Content)
	assert.Equal(t, fmt.Sprintf("message %d", recentMessageLimit+10), cached[len(cached)-1].Content)
}

func TestOccupancyLifecycle(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()
	roomID := testRoomID()
	t.Cleanup(func() { c.client.Del(ctx, roomUsersKey(roomID)) })

	require.NoError(t, c.AddOccupant(ctx, roomID, models.Presence{UserID: "user-a", Username: "alice", ConnectionID: "conn-1"}))
	require.NoError(t, c.AddOccupant(ctx, roomID, models.Presence{UserID: "user-b", Username: "bob", ConnectionID: "conn-2"}))
	// 同一使用者重複加入只覆寫，不重複計數
	require.NoError(t, c.AddOccupant(ctx, roomID, models.Presence{UserID: "user-a", Username: "alice", ConnectionID: "conn-3"}))

	count, err := c.GetOccupantCount(ctx, roomID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	occupants, err := c.GetOccupants(ctx, roomID)
	require.NoError(t, err)
	userIDs := make(map[string]string, len(occupants))
	for _, p := range occupants {
		userIDs[p.UserID] = p.ConnectionID
	}
	assert.Equal(t, "conn-3", userIDs["user-a"], "重複加入應覆寫為最新的連線")
	assert.Equal(t, "conn-2", userIDs["user-b"])

	require.NoError(t, c.RemoveOccupant(ctx, roomID, "user-a"))
	count, err = c.GetOccupantCount(ctx, roomID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	// 移除不存在的使用者為 no-op
	require.NoError(t, c.RemoveOccupant(ctx, roomID, "user-missing"))
}

func TestTypingState(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()
	roomID := testRoomID()
	t.Cleanup(func() { c.client.Del(ctx, typingKey(roomID)) })

	require.NoError(t, c.SetTyping(ctx, roomID, "user-a", "alice"))
	require.NoError(t, c.SetTyping(ctx, roomID, "user-b", "bob"))

	typing, err := c.GetTypingUsers(ctx, roomID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, typing)

	ttl, err := c.client.TTL(ctx, typingKey(roomID)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, typingTTL, "打字狀態必須自動過期")

	require.NoError(t, c.ClearTyping(ctx, roomID, "user-a"))
	typing, err = c.GetTypingUsers(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, typing)
}

func TestUnreadCounter(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()
	roomID := testRoomID()
	t.Cleanup(func() { c.client.Del(ctx, unreadKey(roomID, "user-b")) })

	// 缺失的 key 視為 0
	count, err := c.GetUnread(ctx, roomID, "user-b")
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, c.IncrementUnread(ctx, roomID, "user-b"))
	require.NoError(t, c.IncrementUnread(ctx, roomID, "user-b"))
	require.NoError(t, c.IncrementUnread(ctx, roomID, "user-b"))

	count, err = c.GetUnread(ctx, roomID, "user-b")
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	require.NoError(t, c.ResetUnread(ctx, roomID, "user-b"))
	count, err = c.GetUnread(ctx, roomID, "user-b")
	require.NoError(t, err)
	assert.Zero(t, count)

	// 歸零後再歸零為 no-op
	require.NoError(t, c.ResetUnread(ctx, roomID, "user-b"))
}

func TestOnlineList(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()
	userA := "test-user-" + uuid.NewString()
	userB := "test-user-" + uuid.NewString()
	t.Cleanup(func() { c.client.HDel(ctx, onlineUsersKey(), userA, userB) })

	require.NoError(t, c.MarkOnline(ctx, models.Presence{UserID: userA, Username: "alice", ConnectionID: "conn-1"}))
	require.NoError(t, c.MarkOnline(ctx, models.Presence{UserID: userB, Username: "bob", ConnectionID: "conn-2"}))

	online, err := c.ListOnline(ctx)
	require.NoError(t, err)
	byID := make(map[string]models.Presence, len(online))
	for _, p := range online {
		byID[p.UserID] = p
	}
	require.Contains(t, byID, userA)
	require.Contains(t, byID, userB)
	assert.Equal(t, "alice", byID[userA].Username)

	require.NoError(t, c.MarkOffline(ctx, userA))
	online, err = c.ListOnline(ctx)
	require.NoError(t, err)
	for _, p := range online {
		assert.NotEqual(t, userA, p.UserID)
	}
}
