package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"realchat/backend/config"
	"realchat/backend/utils"
)

// UserIDFromRequest 從 Authorization: Bearer <token> 標頭解析使用者 ID
// 可選認證的端點 (如聊天室列表) 也共用這個解析
func UserIDFromRequest(r *http.Request, jwtSecret string) (primitive.ObjectID, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return primitive.NilObjectID, errors.New("authorization header required")
	}

	// Authorization: Bearer <token>
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return primitive.NilObjectID, errors.New("invalid authorization header format")
	}

	return utils.GetUserIDFromToken(parts[1], jwtSecret)
}

// JWTMiddleware 驗證 JWT Token 並將使用者 ID 放入 context
func JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := config.LoadConfig()

		userID, err := UserIDFromRequest(r, cfg.JWTSecret)
		if err != nil {
			log.Printf("Rejected request to %s: %v", r.URL.Path, err)
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		// 將使用者 ID 存儲到請求的 context 中
		ctx := context.WithValue(r.Context(), utils.UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
