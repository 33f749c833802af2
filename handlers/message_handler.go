package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"realchat/backend/database"
	"realchat/backend/models"
	"realchat/backend/utils"
)

// MessagesResponse 代表訊息列表的回應結構
type MessagesResponse struct {
	Messages []models.Message `json:"messages"`
}

// CreateMessageRequest 定義 REST 發送訊息的請求體
// 發送者身份來自 JWTMiddleware 驗證過的 token，不放在請求體
type CreateMessageRequest struct {
	Content string `json:"content"`
	RoomID  string `json:"roomId"`
}

// GetMessages 處理獲取聊天室歷史訊息的請求
// 第一頁 (skip=0) 先讀快取；缺失/過期時改查 MongoDB，並將結果回填快取
func GetMessages(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	if roomID == "" {
		sendJSONError(w, "Room ID is required", http.StatusBadRequest)
		return
	}

	limit := int64(50)
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil && v > 0 {
			limit = v
		}
	}
	skip := int64(0)
	if s := r.URL.Query().Get("skip"); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil && v > 0 {
			skip = v
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// 先檢查快取 (只涵蓋最近一頁)
	if skip == 0 {
		cached, ok, err := redisCache.GetRecentMessages(ctx, roomID)
		if err != nil {
			log.Printf("Error reading message cache for room %s: %v", roomID, err)
		} else if ok {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(MessagesResponse{Messages: cached})
			return
		}
	}

	// 快取缺失，改查 MongoDB
	messages, err := store.GetChatHistory(ctx, roomID, limit, skip)
	if err != nil {
		log.Printf("Error getting chat history for room %s: %v", roomID, err)
		sendJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	// 回填快取，之後的讀取就不用再打資料庫
	if skip == 0 && len(messages) > 0 {
		if err := redisCache.CacheRecentMessages(ctx, roomID, messages); err != nil {
			log.Printf("Error repopulating message cache for room %s: %v", roomID, err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(MessagesResponse{Messages: messages})
}

// CreateMessage 處理 REST 發送訊息的請求
// 與 socket 的 message:send 使用完全相同的持久化合約：
// MongoDB 寫入 → 更新聊天室 lastMessageAt → 推入最近訊息快取
// (不經過 socket 扇出，unread 計數由下一次 socket 發送或輪詢補上)
func CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Content == "" || req.RoomID == "" {
		sendJSONError(w, "content and roomId are required", http.StatusBadRequest)
		return
	}

	senderID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		sendJSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	msg, err := store.InsertMessage(ctx, req.Content, senderID.Hex(), req.RoomID)
	if err != nil {
		log.Printf("Error inserting message: %v", err)
		sendJSONError(w, "Failed to send message", http.StatusInternalServerError)
		return
	}

	if _, err := store.TouchLastMessage(ctx, req.RoomID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			log.Printf("Room %s not found while updating lastMessageAt", req.RoomID)
		} else {
			log.Printf("Error updating lastMessageAt for room %s: %v", req.RoomID, err)
		}
	}

	if err := redisCache.AppendMessage(ctx, req.RoomID, msg); err != nil {
		log.Printf("Error caching message for room %s: %v", req.RoomID, err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]models.Message{"message": msg})
}
