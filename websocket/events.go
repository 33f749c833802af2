package websocket

import "encoding/json"

// 入站事件名稱 — 與前端約定的線上協定
const (
	EventUserLogin   = "user:login"
	EventRoomJoin    = "room:join"
	EventRoomLeave   = "room:leave"
	EventMessageSend = "message:send"
	EventTypingStart = "typing:start"
	EventTypingStop  = "typing:stop"
	EventMessageRead = "message:read"
)

// 出站事件名稱
const (
	EventUsersOnline     = "users:online"
	EventRoomUserCount   = "room:user-count"
	EventUserJoined      = "user:joined"
	EventUserLeft        = "user:left"
	EventMessageReceive  = "message:receive"
	EventUnreadIncrement = "unread:increment"
	EventUserTyping      = "user:typing"
	EventUserStopTyping  = "user:stop-typing"
	EventError           = "error"
)

// ClientEvent 是入站事件的封包：{"event": 名稱, "data": 酬載}
// data 先保留原始 JSON，由各事件的處理器自行解碼
type ClientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ServerEvent 是出站事件的封包，與入站同構
type ServerEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// LoginPayload 對應 user:login
type LoginPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// RoomPayload 對應 room:join 與 room:leave
type RoomPayload struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// SendPayload 對應 message:send
type SendPayload struct {
	Content  string `json:"content"`
	SenderID string `json:"senderId"`
	RoomID   string `json:"roomId"`
}

// TypingPayload 對應 typing:start 與 typing:stop (stop 不帶 username)
type TypingPayload struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

// ReadPayload 對應 message:read
type ReadPayload struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
}

// UserCountPayload 對應 room:user-count
type UserCountPayload struct {
	RoomID string `json:"roomId"`
	Count  int64  `json:"count"`
}

// UserRefPayload 對應 user:joined / user:left / user:typing / user:stop-typing
type UserRefPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

// UnreadPayload 對應 unread:increment (針對單一使用者的定向通知)
type UnreadPayload struct {
	RoomID string `json:"roomId"`
}

// ErrorPayload 對應 error，回報給原始發送者
type ErrorPayload struct {
	Message string `json:"message"`
}
