package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// 將訊息寫入到遠端對等點的最長時間
	writeWait = 10 * time.Second

	// 允許從遠端對等點讀取下一個 pong 訊息的最長時間。
	pongWait = 60 * time.Second

	// 發送 ping 訊息給遠端對等點的週期。
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// upgrader 用於將 HTTP 連線升級為 WebSocket 連線
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 設定true:允許所有來源的連線
		return true
	},
}

// Client 代表一個 WebSocket 客戶端連線
// 身份 (userId/username/目前聊天室) 不放在這裡，由 Session Registry 管理
type Client struct {
	ID          string           // 連線唯一識別 (socket id 的對應物)
	hub         *Hub             // 負責訊息的扇出
	coordinator *Coordinator     // 負責事件的語意處理
	conn        *websocket.Conn  // WebSocket 連線物件，透過它來讀寫訊息
	send        chan ServerEvent // 出站事件的緩衝通道
	done        chan struct{}    // 關閉信號，通知 writePump 結束
	closeOnce   sync.Once
}

// closeSend 發出關閉信號，可安全地重複呼叫
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump 讀取客戶端傳來的事件，交給 Coordinator 分派
func (c *Client) readPump() {
	defer func() {
		// 斷線清理：先讓 Coordinator 做佔用/在線狀態與廣播的收尾，再從 Hub 移除
		c.coordinator.HandleDisconnect(context.Background(), c)
		c.hub.Unregister(c)
		c.closeSend()
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, p, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Println("Client disconnected gracefully.")
			} else {
				log.Printf("Error reading message: %v", err)
			}
			break
		}

		c.coordinator.Dispatch(context.Background(), c, p)
	}
}

// writePump 接收 Hub 扇出來的事件，序列化後傳給客戶端
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case event := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			jsonEvent, err := json.Marshal(event)
			if err != nil {
				log.Printf("Error marshalling event: %v", err)
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, jsonEvent); err != nil {
				log.Printf("Error writing message: %v", err)
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		// 接收定時器以保持連線活躍並檢測客戶端是否仍在線。
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS 回傳處理 WebSocket 連線請求的 handler
// 連線建立後是匿名的，身份由後續的 user:login 事件建立
func ServeWS(coordinator *Coordinator, hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("Failed to upgrade to WebSocket: %v", err)
			return
		}

		client := &Client{
			ID:          uuid.NewString(),
			hub:         hub,
			coordinator: coordinator,
			conn:        conn,
			send:        make(chan ServerEvent, 256),
			done:        make(chan struct{}),
		}
		hub.Register(client)

		go client.writePump()
		client.readPump() // readPump 會在連線關閉時自動清理
	}
}
