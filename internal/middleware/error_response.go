package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/authman/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, authErr *model.AuthError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     authErr.Code,
		Message:  authErr.Message,
		Category: authErr.Category,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.AuthError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
	})
}

// WriteAuthError はエンジンの終端エラーをHTTPステータスにマッピングして書き込む。
// 未知のエラーは詳細を漏らさず500として扱う。
func WriteAuthError(w http.ResponseWriter, err error) {
	var authErr *model.AuthError
	if !errors.As(err, &authErr) {
		WriteInternalServerError(w)
		return
	}
	WriteErrorResponse(w, statusForAuthError(authErr), authErr)
}

// statusForAuthError はエラーコードをHTTPステータスにマッピングする。
func statusForAuthError(authErr *model.AuthError) int {
	switch authErr.Code {
	case model.ErrCodeAccountExists, model.ErrCodeIdentityExists:
		return http.StatusConflict
	case model.ErrCodeInvalidCredentials, model.ErrCodeInvalidToken:
		return http.StatusUnauthorized
	case model.ErrCodeInvalidProvider:
		return http.StatusBadRequest
	case model.ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
