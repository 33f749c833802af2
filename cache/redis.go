package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"realchat/backend/models"

	"github.com/redis/go-redis/v9"
)

const (
	// 所有 key 都掛在這個命名空間下，避免跨應用污染
	keyPrefix = "realchat:"

	// 每個聊天室只保留最近 50 筆訊息，1 小時後過期 (純讀取快取，MongoDB 才是權威來源)
	recentMessageLimit = 50
	recentMessageTTL   = time.Hour

	// 打字狀態 5 秒自動過期：客戶端斷線也不會留下殘留的 typing 指示
	typingTTL = 5 * time.Second
)

// RedisCache 持有短生命週期的共享狀態：
// 最近訊息環、聊天室佔用集合、打字狀態、未讀計數、全域在線列表
// 每個操作各自原子，任何一個失敗都不應阻擋持久寫入或廣播
type RedisCache struct {
	client *redis.Client
}

// Connect 依 REDIS_URL 建立 Redis 連線並驗證連通性
func Connect(redisURL string) *RedisCache {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("Invalid REDIS_URL: %v", err)
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to ping Redis: %v", err)
	}

	log.Println("Connected to Redis successfully!")
	return New(client)
}

// New 以現有的 client 建立 RedisCache (測試用)
func New(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Close 關閉 Redis 連線
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func messagesKey(roomID string) string {
	return keyPrefix + "messages:" + roomID
}

func roomUsersKey(roomID string) string {
	return keyPrefix + "room:" + roomID + ":users"
}

func typingKey(roomID string) string {
	return keyPrefix + "typing:" + roomID
}

func unreadKey(roomID, userID string) string {
	return keyPrefix + "unread:" + userID + ":" + roomID
}

func onlineUsersKey() string {
	return keyPrefix + "users:online"
}

// ---- 最近訊息快取 ----

// CacheRecentMessages 以由舊到新的訊息序列重建聊天室的最近訊息快取
func (c *RedisCache) CacheRecentMessages(ctx context.Context, roomID string, messages []models.Message) error {
	key := messagesKey(roomID)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(messages))
	for _, msg := range messages {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		values = append(values, data)
	}

	// 依序 LPUSH，最新的訊息最後推入、落在串列頭
	if err := c.client.LPush(ctx, key, values...).Err(); err != nil {
		return err
	}
	if err := c.client.LTrim(ctx, key, 0, recentMessageLimit-1).Err(); err != nil {
		return err
	}
	return c.client.Expire(ctx, key, recentMessageTTL).Err()
}

// AppendMessage 將新訊息推入快取頭部，修剪到最近 50 筆並刷新過期時間
func (c *RedisCache) AppendMessage(ctx context.Context, roomID string, message models.Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	key := messagesKey(roomID)
	if err := c.client.LPush(ctx, key, data).Err(); err != nil {
		return err
	}
	if err := c.client.LTrim(ctx, key, 0, recentMessageLimit-1).Err(); err != nil {
		return err
	}
	return c.client.Expire(ctx, key, recentMessageTTL).Err()
}

// GetRecentMessages 讀取快取的最近訊息，由舊到新排序
// 第二個回傳值為 false 表示快取缺失/過期，呼叫方應改查 MongoDB
func (c *RedisCache) GetRecentMessages(ctx context.Context, roomID string) ([]models.Message, bool, error) {
	raw, err := c.client.LRange(ctx, messagesKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, false, err
	}
	if len(raw) == 0 {
		return nil, false, nil
	}

	// 串列頭是最新訊息，反向解碼還原由舊到新的順序
	messages := make([]models.Message, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var msg models.Message
		if err := json.Unmarshal([]byte(raw[i]), &msg); err != nil {
			return nil, false, fmt.Errorf("unmarshal cached message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, true, nil
}

// ---- 聊天室佔用集合 ----

// AddOccupant 將使用者加入聊天室的即時佔用集合
func (c *RedisCache) AddOccupant(ctx context.Context, roomID string, p models.Presence) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}
	return c.client.HSet(ctx, roomUsersKey(roomID), p.UserID, data).Err()
}

// RemoveOccupant 將使用者從聊天室的即時佔用集合移除
func (c *RedisCache) RemoveOccupant(ctx context.Context, roomID, userID string) error {
	return c.client.HDel(ctx, roomUsersKey(roomID), userID).Err()
}

// GetOccupants 取得聊天室目前的佔用者列表
func (c *RedisCache) GetOccupants(ctx context.Context, roomID string) ([]models.Presence, error) {
	entries, err := c.client.HGetAll(ctx, roomUsersKey(roomID)).Result()
	if err != nil {
		return nil, err
	}

	occupants := make([]models.Presence, 0, len(entries))
	for _, raw := range entries {
		var p models.Presence
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("unmarshal presence: %w", err)
		}
		occupants = append(occupants, p)
	}
	return occupants, nil
}

// GetOccupantCount 取得聊天室目前的佔用人數
func (c *RedisCache) GetOccupantCount(ctx context.Context, roomID string) (int64, error) {
	return c.client.HLen(ctx, roomUsersKey(roomID)).Result()
}

// ---- 打字狀態 ----

// SetTyping 標記使用者正在輸入，整個 hash 5 秒後過期
func (c *RedisCache) SetTyping(ctx context.Context, roomID, userID, username string) error {
	key := typingKey(roomID)
	if err := c.client.HSet(ctx, key, userID, username).Err(); err != nil {
		return err
	}
	return c.client.Expire(ctx, key, typingTTL).Err()
}

// ClearTyping 清除使用者的輸入狀態
func (c *RedisCache) ClearTyping(ctx context.Context, roomID, userID string) error {
	return c.client.HDel(ctx, typingKey(roomID), userID).Err()
}

// GetTypingUsers 取得聊天室中正在輸入的使用者名稱列表
func (c *RedisCache) GetTypingUsers(ctx context.Context, roomID string) ([]string, error) {
	entries, err := c.client.HGetAll(ctx, typingKey(roomID)).Result()
	if err != nil {
		return nil, err
	}

	usernames := make([]string, 0, len(entries))
	for _, name := range entries {
		usernames = append(usernames, name)
	}
	return usernames, nil
}

// ---- 未讀計數 ----

// IncrementUnread 將 (使用者, 聊天室) 的未讀計數加一 (INCR，缺失的 key 視為 0)
func (c *RedisCache) IncrementUnread(ctx context.Context, roomID, userID string) error {
	return c.client.Incr(ctx, unreadKey(roomID, userID)).Err()
}

// ResetUnread 將未讀計數歸零
// 與並發的 IncrementUnread 競爭時接受 last-write-wins：
// read 之後才 INCR 表示真的有新未讀訊息，留下非零計數是正確的
func (c *RedisCache) ResetUnread(ctx context.Context, roomID, userID string) error {
	return c.client.Del(ctx, unreadKey(roomID, userID)).Err()
}

// GetUnread 讀取未讀計數，key 不存在時回傳 0
func (c *RedisCache) GetUnread(ctx context.Context, roomID, userID string) (int64, error) {
	count, err := c.client.Get(ctx, unreadKey(roomID, userID)).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

// ---- 全域在線列表 ----

// MarkOnline 將使用者加入全域在線列表
func (c *RedisCache) MarkOnline(ctx context.Context, p models.Presence) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}
	return c.client.HSet(ctx, onlineUsersKey(), p.UserID, data).Err()
}

// MarkOffline 將使用者從全域在線列表移除
func (c *RedisCache) MarkOffline(ctx context.Context, userID string) error {
	return c.client.HDel(ctx, onlineUsersKey(), userID).Err()
}

// ListOnline 取得全域在線使用者列表
func (c *RedisCache) ListOnline(ctx context.Context) ([]models.Presence, error) {
	entries, err := c.client.HGetAll(ctx, onlineUsersKey()).Result()
	if err != nil {
		return nil, err
	}

	users := make([]models.Presence, 0, len(entries))
	for _, raw := range entries {
		var p models.Presence
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("unmarshal presence: %w", err)
		}
		users = append(users, p)
	}
	return users, nil
}
