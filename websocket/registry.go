package websocket

import "sync"

// Session 代表一條已識別的連線：登入時建立、join/leave 時變動、斷線時銷毀
// 只存在於行程記憶體中，重啟後由連線事件重建
type Session struct {
	ConnectionID  string
	UserID        string
	Username      string
	CurrentRoomID string // 空字串表示目前不在任何聊天室
}

// Registry 維護 連線 -> 會話 與 使用者 -> 連線 的雙向索引
// 後者用於定向推播 (unread:increment 只發給特定使用者的連線)
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session // connectionID -> session
	byUser   map[string]string   // userID -> connectionID
}

// NewRegistry 建立空的會話註冊表
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]string),
	}
}

// Register 為連線建立 (或覆寫) 會話
// 同一使用者重複登入時，反向索引以最後一次註冊為準：
// 舊連線的路由從此失效 (last-writer-wins，明確的政策而非 bug)
func (r *Registry) Register(connectionID, userID, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[connectionID] = &Session{
		ConnectionID: connectionID,
		UserID:       userID,
		Username:     username,
	}
	r.byUser[userID] = connectionID
}

// SetCurrentRoom 記錄連線目前正在觀看的聊天室，空字串表示離開
// 每條連線同一時間最多只在一個聊天室
func (r *Registry) SetCurrentRoom(connectionID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[connectionID]; ok {
		s.CurrentRoomID = roomID
	}
}

// Get 回傳連線的會話副本，未登入的連線回傳 false
func (r *Registry) Get(connectionID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connectionID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// LookupConnection 查詢使用者目前的連線，離線時回傳 false
func (r *Registry) LookupConnection(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connectionID, ok := r.byUser[userID]
	return connectionID, ok
}

// Remove 刪除連線的會話並回傳它
// 反向索引只有在仍指向這條連線時才刪除：
// 過期連線的斷線不可清掉新連線的路由
func (r *Registry) Remove(connectionID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connectionID]
	if !ok {
		return Session{}, false
	}
	delete(r.sessions, connectionID)
	if r.byUser[s.UserID] == connectionID {
		delete(r.byUser, s.UserID)
	}
	return *s, true
}
