// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/authman/internal/model"
	"github.com/hitoshi/authman/internal/token"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// claimsContextKey はリクエストコンテキストに検証済みクレームを格納するためのキー。
var claimsContextKey = contextKey("claims")

// TokenValidator はアクセストークンの検証に必要なインターフェース。
// auth.Serviceの部分集合として定義する。
type TokenValidator interface {
	ValidateToken(tokenString string) (*token.Claims, error)
}

// NewBearerAuthMiddleware はAuthorization: Bearerヘッダーからアクセストークンを
// 読み取り、署名・期限を検証するミドルウェアを返す。
// 検証済みクレームをリクエストコンテキストに注入する。
// 未認証リクエストには統一エラーフォーマットで401を返す。
// observeが非nilの場合、検証処理の所要時間を成否にかかわらず通知する。
func NewBearerAuthMiddleware(validator TokenValidator, observe func(time.Duration)) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.ErrInvalidToken)
				return
			}

			start := time.Now()
			claims, err := validator.ValidateToken(tokenString)
			if observe != nil {
				observe(time.Since(start))
			}
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.ErrInvalidToken)
				return
			}

			// 外側のロギングミドルウェアが読めるようにアカウントIDを書き込む
			if slot, ok := r.Context().Value(accountIDSlotKey).(*accountIDSlot); ok {
				slot.id = claims.Subject
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}

// WithClaims は検証済みクレームを格納したコンテキストを返す。
// ミドルウェアを通さないハンドラーテストでの利用を想定する。
func WithClaims(ctx context.Context, claims *token.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext はリクエストコンテキストから検証済みクレームを取得する。
func ClaimsFromContext(ctx context.Context) (*token.Claims, error) {
	claims, ok := ctx.Value(claimsContextKey).(*token.Claims)
	if !ok || claims == nil {
		return nil, fmt.Errorf("claims not found in context")
	}
	return claims, nil
}

// AccountIDFromContext はリクエストコンテキストから認証済みアカウントIDを取得する。
func AccountIDFromContext(ctx context.Context) (string, error) {
	claims, err := ClaimsFromContext(ctx)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
