package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"realchat/backend/cache"
	"realchat/backend/config"
	"realchat/backend/database"
	"realchat/backend/middleware"
	"realchat/backend/models"
	"realchat/backend/utils"

	"github.com/gorilla/mux"
)

var (
	store      *database.Store
	redisCache *cache.RedisCache
)

// Init 注入 REST 處理器共用的持久層與快取
func Init(s *database.Store, c *cache.RedisCache) {
	store = s
	redisCache = c
}

// CreateChatRoomRequest 定義創建聊天室的請求體
type CreateChatRoomRequest struct {
	Name         string   `json:"name"`
	Participants []string `json:"participants"` // 建立者等初始參與者的使用者 ID 列表
}

// userIDFromBearer 解析 Authorization 標頭的使用者 ID，沒有或無效時回傳空字串
// 聊天室列表對未登入者也開放，所以這裡不強制 (強制認證的路由走 JWTMiddleware)
func userIDFromBearer(r *http.Request) string {
	cfg := config.LoadConfig()
	userID, err := middleware.UserIDFromRequest(r, cfg.JWTSecret)
	if err != nil {
		return ""
	}
	return userID.Hex()
}

// ListChatRooms 處理獲取聊天室列表的請求
// 公開聊天室對所有人可見；帶有效 token 時：
//   - 自動把該使用者加入每個聊天室的持久參與者列表 (之後才收得到未讀通知)
//   - 附上每個聊天室的未讀訊息數 (從快取讀取，缺失視為 0)
func ListChatRooms(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rooms, err := store.ListChatRooms(ctx)
	if err != nil {
		log.Printf("Error listing chatrooms: %v", err)
		sendJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	userID := userIDFromBearer(r)

	result := make([]models.ChatRoomWithUnread, 0, len(rooms))
	for _, room := range rooms {
		item := models.ChatRoomWithUnread{ChatRoom: room}

		if userID != "" {
			roomID := room.ID.Hex()
			if err := store.AddParticipant(ctx, roomID, userID); err != nil {
				log.Printf("Error auto-adding participant %s to room %s: %v", userID, roomID, err)
			}

			count, err := redisCache.GetUnread(ctx, roomID, userID)
			if err != nil {
				log.Printf("Error getting unread count for room %s: %v", roomID, err)
				count = 0 // 快取失敗時降級為 0，不阻擋列表
			}
			item.UnreadCount = count
		}

		result = append(result, item)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"chatRooms": result})
}

// CreateChatRoom 處理創建聊天室的請求
// 公開聊天室：建立時把所有已知使用者都加入參與者列表，
// 之後註冊的使用者由 ListChatRooms 的自動加入補上
func CreateChatRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		sendJSONError(w, "Room name is required", http.StatusBadRequest)
		return
	}

	// JWTMiddleware 已驗證過 token，這裡取出建立者身份
	creatorID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		sendJSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	allUserIDs, err := store.ListUserIDs(ctx)
	if err != nil {
		log.Printf("Error listing user IDs: %v", err)
		sendJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// 合併建立者、指定參與者與所有使用者並去重
	merged := append([]string{creatorID.Hex()}, append(req.Participants, allUserIDs...)...)
	seen := make(map[string]bool)
	participants := make([]string, 0, len(merged))
	for _, id := range merged {
		if id != "" && !seen[id] {
			seen[id] = true
			participants = append(participants, id)
		}
	}

	room, err := store.InsertChatRoom(ctx, strings.TrimSpace(req.Name), participants)
	if err != nil {
		log.Printf("Error inserting new chatroom: %v", err)
		sendJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	log.Printf("Chatroom created: %s (%d participants)", room.Name, len(room.Participants))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"chatRoom": models.ChatRoomWithUnread{ChatRoom: room},
	})
}

// LeaveChatRoom 處理使用者透過 REST 退出聊天室的請求
// 只確認聊天室存在，刻意不從 participants 移除：
// 公開聊天室，離開的人之後仍需收到未讀通知 (即時佔用狀態由 socket 事件處理)
func LeaveChatRoom(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	roomID := vars["id"]
	if roomID == "" {
		sendJSONError(w, "Room ID is required", http.StatusBadRequest)
		return
	}

	// 退出者的身份由 JWTMiddleware 驗證過的 token 決定，不信任請求體
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		sendJSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	room, err := store.FindChatRoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			sendJSONError(w, "Chat room not found", http.StatusNotFound)
		} else {
			log.Printf("Error finding chatroom %s: %v", roomID, err)
			sendJSONError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	log.Printf("User %s left room %s via REST (participants kept: %d)", userID.Hex(), roomID, len(room.Participants))
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":  "Left chat room",
		"chatRoom": room,
	})
}
