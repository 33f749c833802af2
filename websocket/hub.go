package websocket

import (
	"log"
	"sync"
)

// Hub 維護所有活躍的 WebSocket 客戶端與廣播用的聊天室成員集合
// 這裡的成員集合只決定「廣播送給誰」；聊天室的即時佔用狀態由快取維護
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client          // connectionID -> client
	rooms   map[string]map[*Client]bool // 按聊天室ID索引的客戶端
}

// NewHub 創建並返回一個新的 Hub 實例
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[*Client]bool),
	}
}

// Register 將新連線加入 Hub
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
	log.Printf("Client %s registered. Total clients: %d", c.ID, len(h.clients))
}

// Unregister 將連線從 Hub 與所有聊天室移除
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)
	for roomID, members := range h.rooms {
		if members[c] {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, roomID) // 如果房間沒有客戶端了，就刪除房間
			}
		}
	}
	log.Printf("Client %s unregistered. Total clients: %d", c.ID, len(h.clients))
}

// Join 將連線加入聊天室的廣播集合
func (h *Hub) Join(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][c] = true
}

// Leave 將連線從聊天室的廣播集合移除
func (h *Hub) Leave(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[roomID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// BroadcastRoom 將事件廣播給聊天室中的所有連線，except 不為 nil 時排除該連線
func (h *Hub) BroadcastRoom(roomID string, event ServerEvent, except *Client) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		if c != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.deliver(c, event)
	}
}

// BroadcastAll 將事件廣播給所有連線 (例如全域在線列表更新)
func (h *Hub) BroadcastAll(event ServerEvent) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.deliver(c, event)
	}
}

// SendTo 將事件定向發送給指定連線，連線不存在時回傳 false
func (h *Hub) SendTo(connectionID string, event ServerEvent) bool {
	h.mu.RLock()
	c, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	h.deliver(c, event)
	return true
}

// SendToClient 將事件直接發送給客戶端 (錯誤回報等)
func (h *Hub) SendToClient(c *Client, event ServerEvent) {
	h.deliver(c, event)
}

// deliver 非阻塞送出；發送緩衝已滿表示客戶端跟不上，直接淘汰
// 淘汰只關閉 done 信號，不關閉 send 通道，並發的廣播者才不會寫入已關閉的通道
func (h *Hub) deliver(c *Client, event ServerEvent) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- event:
	case <-c.done:
	default:
		log.Printf("Client %s send channel is full, dropping client", c.ID)
		h.Unregister(c)
		c.closeSend()
	}
}
