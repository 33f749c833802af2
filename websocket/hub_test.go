package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// newTestClient 建立一個不綁真實連線的客戶端，事件直接從 send 通道讀出驗證
func newTestClient(id string) *Client {
	return &Client{
		ID:   id,
		send: make(chan ServerEvent, 32),
		done: make(chan struct{}),
	}
}

// drainEvents 非阻塞地收走客戶端目前收到的所有事件
func drainEvents(c *Client) []ServerEvent {
	var events []ServerEvent
	for {
		select {
		case ev := <-c.send:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestHubBroadcastRoomExcludesSender(t *testing.T) {
	hub := NewHub()
	a := newTestClient("conn-a")
	b := newTestClient("conn-b")
	c := newTestClient("conn-c")
	for _, cl := range []*Client{a, b, c} {
		hub.Register(cl)
	}
	hub.Join(a, "room-1")
	hub.Join(b, "room-1")
	hub.Join(c, "room-2")

	hub.BroadcastRoom("room-1", ServerEvent{Event: EventMessageReceive}, a)

	assert.Empty(t, drainEvents(a), "排除的連線不應該收到事件")
	assert.Len(t, drainEvents(b), 1)
	assert.Empty(t, drainEvents(c), "其他聊天室的連線不應該收到事件")
}

func TestHubBroadcastRoomWithoutExclusion(t *testing.T) {
	hub := NewHub()
	a := newTestClient("conn-a")
	b := newTestClient("conn-b")
	hub.Register(a)
	hub.Register(b)
	hub.Join(a, "room-1")
	hub.Join(b, "room-1")

	hub.BroadcastRoom("room-1", ServerEvent{Event: EventUserJoined}, nil)

	assert.Len(t, drainEvents(a), 1)
	assert.Len(t, drainEvents(b), 1)
}

func TestHubLeaveStopsDelivery(t *testing.T) {
	hub := NewHub()
	a := newTestClient("conn-a")
	b := newTestClient("conn-b")
	hub.Register(a)
	hub.Register(b)
	hub.Join(a, "room-1")
	hub.Join(b, "room-1")

	hub.Leave(b, "room-1")
	hub.BroadcastRoom("room-1", ServerEvent{Event: EventMessageReceive}, nil)

	assert.Len(t, drainEvents(a), 1)
	assert.Empty(t, drainEvents(b))
}

func TestHubSendTo(t *testing.T) {
	hub := NewHub()
	a := newTestClient("conn-a")
	hub.Register(a)

	ok := hub.SendTo("conn-a", ServerEvent{Event: EventUnreadIncrement})
	assert.True(t, ok)
	assert.Len(t, drainEvents(a), 1)

	ok = hub.SendTo("conn-missing", ServerEvent{Event: EventUnreadIncrement})
	assert.False(t, ok, "不存在的連線應該回傳 false")
}

func TestHubBroadcastAll(t *testing.T) {
	hub := NewHub()
	a := newTestClient("conn-a")
	b := newTestClient("conn-b")
	hub.Register(a)
	hub.Register(b)

	hub.BroadcastAll(ServerEvent{Event: EventUsersOnline})

	assert.Len(t, drainEvents(a), 1)
	assert.Len(t, drainEvents(b), 1)
}

func TestHubUnregisterRemovesFromRooms(t *testing.T) {
	hub := NewHub()
	a := newTestClient("conn-a")
	b := newTestClient("conn-b")
	hub.Register(a)
	hub.Register(b)
	hub.Join(a, "room-1")
	hub.Join(b, "room-1")

	hub.Unregister(a)
	hub.BroadcastRoom("room-1", ServerEvent{Event: EventMessageReceive}, nil)

	assert.Empty(t, drainEvents(a))
	assert.Len(t, drainEvents(b), 1)
}

func TestHubEvictsSlowClient(t *testing.T) {
	hub := NewHub()
	slow := &Client{
		ID:   "conn-slow",
		send: make(chan ServerEvent, 1),
		done: make(chan struct{}),
	}
	hub.Register(slow)

	// 塞滿發送緩衝後再送一次，客戶端應該被淘汰
	hub.SendTo("conn-slow", ServerEvent{Event: EventMessageReceive})
	hub.SendTo("conn-slow", ServerEvent{Event: EventMessageReceive})

	ok := hub.SendTo("conn-slow", ServerEvent{Event: EventMessageReceive})
	assert.False(t, ok, "被淘汰的連線應該已從 Hub 移除")
}
