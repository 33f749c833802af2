package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"realchat/backend/database"
	"realchat/backend/models"
)

// Coordinator 是即時協調層的核心：
// 針對每個連線事件，一致地更新 Session Registry + Redis 快取 + MongoDB，
// 並計算該事件的廣播/定向通知範圍
//
// 失敗政策：
//   - 持久寫入失敗 → 以 error 事件回報發送者，不做任何廣播 (不能出現幽靈訊息)
//   - 快取失敗 → 記錄後繼續，快取狀態只是建議性的
//   - 斷線路徑的錯誤一律吞掉，盡力清理即可
type Coordinator struct {
	store    Store
	cache    Cache
	hub      *Hub
	registry *Registry
}

// NewCoordinator 建立事件協調器
func NewCoordinator(store Store, cache Cache, hub *Hub) *Coordinator {
	return &Coordinator{
		store:    store,
		cache:    cache,
		hub:      hub,
		registry: NewRegistry(),
	}
}

// Dispatch 解析入站封包並分派給對應的事件處理器
// 可以被多條連線的 goroutine 並發呼叫
func (co *Coordinator) Dispatch(ctx context.Context, c *Client, raw []byte) {
	var event ClientEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		log.Printf("Error unmarshalling event from client %s: %v", c.ID, err)
		co.sendError(c, "invalid event payload")
		return
	}

	switch event.Event {
	case EventUserLogin:
		co.handleLogin(ctx, c, event.Data)
	case EventRoomJoin:
		co.handleJoin(ctx, c, event.Data)
	case EventRoomLeave:
		co.handleLeave(ctx, c, event.Data)
	case EventMessageSend:
		co.handleSend(ctx, c, event.Data)
	case EventTypingStart:
		co.handleTypingStart(ctx, c, event.Data)
	case EventTypingStop:
		co.handleTypingStop(ctx, c, event.Data)
	case EventMessageRead:
		co.handleRead(ctx, c, event.Data)
	default:
		log.Printf("Unknown event %q from client %s", event.Event, c.ID)
	}
}

// sendError 將失敗回報給原始發送者
func (co *Coordinator) sendError(c *Client, message string) {
	co.hub.SendToClient(c, ServerEvent{Event: EventError, Data: ErrorPayload{Message: message}})
}

// handleLogin 建立會話、標記在線，並向所有連線廣播最新的在線列表
func (co *Coordinator) handleLogin(ctx context.Context, c *Client, data json.RawMessage) {
	var p LoginPayload
	if err := json.Unmarshal(data, &p); err != nil || p.UserID == "" || p.Username == "" {
		co.sendError(c, "userId and username are required")
		return
	}

	co.registry.Register(c.ID, p.UserID, p.Username)
	log.Printf("User logged in: %s (%s), connection %s", p.Username, p.UserID, c.ID)

	if err := co.cache.MarkOnline(ctx, models.Presence{UserID: p.UserID, Username: p.Username, ConnectionID: c.ID}); err != nil {
		log.Printf("Error marking user %s online: %v", p.UserID, err)
	}

	onlineUsers, err := co.cache.ListOnline(ctx)
	if err != nil {
		log.Printf("Error listing online users: %v", err)
		return
	}
	co.hub.BroadcastAll(ServerEvent{Event: EventUsersOnline, Data: onlineUsers})
}

// handleJoin 將使用者加入聊天室：
// 持久參與者列表 ($addToSet) → 會話目前聊天室 → 佔用集合 → 人數與入場廣播
// 持久寫入失敗時整個 join 失敗，不更新佔用也不廣播
func (co *Coordinator) handleJoin(ctx context.Context, c *Client, data json.RawMessage) {
	var p RoomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" || p.UserID == "" {
		co.sendError(c, "roomId and userId are required")
		return
	}

	if _, ok := co.registry.Get(c.ID); !ok {
		co.sendError(c, "not logged in")
		return
	}

	if err := co.store.AddParticipant(ctx, p.RoomID, p.UserID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			co.sendError(c, "room not found")
		} else {
			log.Printf("Error adding participant %s to room %s: %v", p.UserID, p.RoomID, err)
			co.sendError(c, "failed to join room")
		}
		return
	}

	co.registry.SetCurrentRoom(c.ID, p.RoomID)
	co.hub.Join(c, p.RoomID)
	log.Printf("User %s joined room %s", p.Username, p.RoomID)

	if err := co.cache.AddOccupant(ctx, p.RoomID, models.Presence{UserID: p.UserID, Username: p.Username, ConnectionID: c.ID}); err != nil {
		log.Printf("Error adding occupant %s to room %s: %v", p.UserID, p.RoomID, err)
	}

	co.broadcastUserCount(ctx, p.RoomID)
	co.hub.BroadcastRoom(p.RoomID, ServerEvent{
		Event: EventUserJoined,
		Data:  UserRefPayload{UserID: p.UserID, Username: p.Username},
	}, c)
}

// handleLeave 將使用者移出聊天室的即時狀態
// 持久參與者列表刻意不縮減：離開的人之後仍要收到未讀通知
func (co *Coordinator) handleLeave(ctx context.Context, c *Client, data json.RawMessage) {
	var p RoomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" || p.UserID == "" {
		co.sendError(c, "roomId and userId are required")
		return
	}

	co.hub.Leave(c, p.RoomID)
	co.registry.SetCurrentRoom(c.ID, "")
	log.Printf("User %s left room %s", p.Username, p.RoomID)

	if err := co.cache.RemoveOccupant(ctx, p.RoomID, p.UserID); err != nil {
		log.Printf("Error removing occupant %s from room %s: %v", p.UserID, p.RoomID, err)
	}

	co.broadcastUserCount(ctx, p.RoomID)
	co.hub.BroadcastRoom(p.RoomID, ServerEvent{
		Event: EventUserLeft,
		Data:  UserRefPayload{UserID: p.UserID, Username: p.Username},
	}, c)
}

// handleSend 持久化訊息並扇出：
//  1. MongoDB 寫入訊息 (失敗則整個事件失敗，不廣播)
//  2. 更新聊天室 lastMessageAt 並取回持久參與者列表
//  3. 推入最近訊息快取 (失敗則降級)
//  4. 對「是持久參與者、不是發送者、目前不在聊天室」的每個人累加未讀，
//     且若該使用者在線則定向推送 unread:increment
//  5. 向聊天室廣播已持久化的完整訊息
func (co *Coordinator) handleSend(ctx context.Context, c *Client, data json.RawMessage) {
	var p SendPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Content == "" || p.SenderID == "" || p.RoomID == "" {
		co.sendError(c, "content, senderId and roomId are required")
		return
	}

	msg, err := co.store.InsertMessage(ctx, p.Content, p.SenderID, p.RoomID)
	if err != nil {
		log.Printf("Error saving message to room %s: %v", p.RoomID, err)
		co.sendError(c, "failed to save message")
		return
	}

	room, err := co.store.TouchLastMessage(ctx, p.RoomID)
	if err != nil {
		// 訊息已持久化，廣播照常進行；但拿不到參與者列表就無法計算未讀名單
		log.Printf("Error updating lastMessageAt for room %s: %v", p.RoomID, err)
		room = nil
	}

	if err := co.cache.AppendMessage(ctx, p.RoomID, msg); err != nil {
		log.Printf("Error caching message for room %s: %v", p.RoomID, err)
	}

	if room != nil {
		co.fanOutUnread(ctx, room, msg)
	}

	co.hub.BroadcastRoom(p.RoomID, ServerEvent{Event: EventMessageReceive, Data: msg}, nil)
}

// fanOutUnread 對不在聊天室的持久參與者累加未讀並定向通知
// 資格規則：是持久參與者 ∧ 不是發送者 ∧ 目前不是佔用者
func (co *Coordinator) fanOutUnread(ctx context.Context, room *models.ChatRoom, msg models.Message) {
	occupants, err := co.cache.GetOccupants(ctx, msg.RoomID)
	if err != nil {
		// 無法判定誰在聊天室裡，寧可略過這一輪未讀計數也不要錯算在場的人
		log.Printf("Error getting occupants for room %s: %v", msg.RoomID, err)
		return
	}

	occupied := make(map[string]bool, len(occupants))
	for _, o := range occupants {
		occupied[o.UserID] = true
	}

	for _, participantID := range room.Participants {
		if participantID == msg.SenderID || occupied[participantID] {
			continue
		}

		if err := co.cache.IncrementUnread(ctx, msg.RoomID, participantID); err != nil {
			log.Printf("Error incrementing unread for user %s in room %s: %v", participantID, msg.RoomID, err)
		}

		// 使用者在線但不在這個聊天室 → 定向推送未讀通知
		if connectionID, ok := co.registry.LookupConnection(participantID); ok {
			co.hub.SendTo(connectionID, ServerEvent{
				Event: EventUnreadIncrement,
				Data:  UnreadPayload{RoomID: msg.RoomID},
			})
		}
	}
}

// handleTypingStart 標記輸入狀態並通知聊天室裡的其他人
func (co *Coordinator) handleTypingStart(ctx context.Context, c *Client, data json.RawMessage) {
	var p TypingPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" || p.UserID == "" {
		return
	}

	// 只有在該聊天室中的會話才能發出輸入指示
	sess, ok := co.registry.Get(c.ID)
	if !ok || sess.CurrentRoomID != p.RoomID {
		return
	}

	if err := co.cache.SetTyping(ctx, p.RoomID, p.UserID, p.Username); err != nil {
		log.Printf("Error setting typing state for user %s: %v", p.UserID, err)
	}

	co.hub.BroadcastRoom(p.RoomID, ServerEvent{
		Event: EventUserTyping,
		Data:  UserRefPayload{UserID: p.UserID, Username: p.Username},
	}, c)
}

// handleTypingStop 清除輸入狀態並通知聊天室裡的其他人
func (co *Coordinator) handleTypingStop(ctx context.Context, c *Client, data json.RawMessage) {
	var p TypingPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" || p.UserID == "" {
		return
	}

	sess, ok := co.registry.Get(c.ID)
	if !ok || sess.CurrentRoomID != p.RoomID {
		return
	}

	if err := co.cache.ClearTyping(ctx, p.RoomID, p.UserID); err != nil {
		log.Printf("Error clearing typing state for user %s: %v", p.UserID, err)
	}

	co.hub.BroadcastRoom(p.RoomID, ServerEvent{
		Event: EventUserStopTyping,
		Data:  UserRefPayload{UserID: p.UserID},
	}, c)
}

// handleRead 將使用者加入訊息的 readBy 並將該聊天室的未讀計數歸零
// 純本地簿記，不需要對外廣播
func (co *Coordinator) handleRead(ctx context.Context, c *Client, data json.RawMessage) {
	var p ReadPayload
	if err := json.Unmarshal(data, &p); err != nil || p.MessageID == "" || p.RoomID == "" || p.UserID == "" {
		co.sendError(c, "messageId, roomId and userId are required")
		return
	}

	if err := co.store.MarkMessageRead(ctx, p.MessageID, p.UserID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			co.sendError(c, "message not found")
		} else {
			log.Printf("Error marking message %s read: %v", p.MessageID, err)
			co.sendError(c, "failed to mark message read")
		}
		return
	}

	if err := co.cache.ResetUnread(ctx, p.RoomID, p.UserID); err != nil {
		log.Printf("Error resetting unread for user %s in room %s: %v", p.UserID, p.RoomID, err)
	}
}

// HandleDisconnect 做斷線收尾：
// 若會話還在某個聊天室，先清佔用並廣播人數與 user:left；
// 然後下線、移除會話、廣播最新在線列表
// 所有錯誤都吞掉 — 斷線的客戶端無法重試，目標是盡力清理
func (co *Coordinator) HandleDisconnect(ctx context.Context, c *Client) {
	sess, ok := co.registry.Remove(c.ID)
	if !ok {
		return // 從未登入的連線
	}
	log.Printf("User disconnected: %s (%s)", sess.Username, sess.UserID)

	if sess.CurrentRoomID != "" {
		if err := co.cache.RemoveOccupant(ctx, sess.CurrentRoomID, sess.UserID); err != nil {
			log.Printf("Error removing occupant on disconnect: %v", err)
		}

		co.broadcastUserCount(ctx, sess.CurrentRoomID)
		co.hub.BroadcastRoom(sess.CurrentRoomID, ServerEvent{
			Event: EventUserLeft,
			Data:  UserRefPayload{UserID: sess.UserID, Username: sess.Username},
		}, c)
	}

	if err := co.cache.MarkOffline(ctx, sess.UserID); err != nil {
		log.Printf("Error marking user %s offline: %v", sess.UserID, err)
	}

	onlineUsers, err := co.cache.ListOnline(ctx)
	if err != nil {
		log.Printf("Error listing online users on disconnect: %v", err)
		return
	}
	co.hub.BroadcastAll(ServerEvent{Event: EventUsersOnline, Data: onlineUsers})
}

// broadcastUserCount 向聊天室廣播最新的佔用人數
func (co *Coordinator) broadcastUserCount(ctx context.Context, roomID string) {
	count, err := co.cache.GetOccupantCount(ctx, roomID)
	if err != nil {
		log.Printf("Error getting occupant count for room %s: %v", roomID, err)
		return
	}
	co.hub.BroadcastRoom(roomID, ServerEvent{
		Event: EventRoomUserCount,
		Data:  UserCountPayload{RoomID: roomID, Count: count},
	}, nil)
}
