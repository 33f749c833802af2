package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	r.Register("conn-1", "user-a", "alice")

	sess, ok := r.Get("conn-1")
	assert.True(t, ok)
	assert.Equal(t, "user-a", sess.UserID)
	assert.Equal(t, "alice", sess.Username)
	assert.Empty(t, sess.CurrentRoomID, "新會話不應該在任何聊天室中")

	connID, ok := r.LookupConnection("user-a")
	assert.True(t, ok)
	assert.Equal(t, "conn-1", connID)

	_, ok = r.LookupConnection("user-b")
	assert.False(t, ok, "未註冊的使用者應該查不到連線")
}

func TestRegistryLastRegistrationWins(t *testing.T) {
	r := NewRegistry()

	// 同一使用者重複登入，路由應該指向最新的連線
	r.Register("conn-old", "user-a", "alice")
	r.Register("conn-new", "user-a", "alice")

	connID, ok := r.LookupConnection("user-a")
	assert.True(t, ok)
	assert.Equal(t, "conn-new", connID)
}

func TestRegistryStaleDisconnectDoesNotClobber(t *testing.T) {
	r := NewRegistry()

	r.Register("conn-old", "user-a", "alice")
	r.Register("conn-new", "user-a", "alice")

	// 舊連線的斷線不可清掉新連線的反向索引
	sess, ok := r.Remove("conn-old")
	assert.True(t, ok)
	assert.Equal(t, "user-a", sess.UserID)

	connID, ok := r.LookupConnection("user-a")
	assert.True(t, ok)
	assert.Equal(t, "conn-new", connID)

	// 新連線的斷線才會清掉反向索引
	_, ok = r.Remove("conn-new")
	assert.True(t, ok)
	_, ok = r.LookupConnection("user-a")
	assert.False(t, ok)
}

func TestRegistryRemoveUnknownIsNoop(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Remove("conn-unknown")
	assert.False(t, ok)
}

func TestRegistrySetCurrentRoom(t *testing.T) {
	r := NewRegistry()
	r.Register("conn-1", "user-a", "alice")

	r.SetCurrentRoom("conn-1", "room-1")
	sess, _ := r.Get("conn-1")
	assert.Equal(t, "room-1", sess.CurrentRoomID)

	// 離開聊天室後清空
	r.SetCurrentRoom("conn-1", "")
	sess, _ = r.Get("conn-1")
	assert.Empty(t, sess.CurrentRoomID)

	// 未知連線為 no-op，不應該 panic
	r.SetCurrentRoom("conn-unknown", "room-1")
}
