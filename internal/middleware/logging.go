package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// accountIDSlot はロギングミドルウェアが事前に仕込む書き込み先。
// コンテキストは内側へしか流れないため、内側の認証ミドルウェアが
// 検証したアカウントIDをここに書き込み、外側のロガーが応答後に読む。
type accountIDSlot struct {
	id string
}

// accountIDSlotKey はaccountIDSlotをコンテキストに格納するためのキー。
var accountIDSlotKey = contextKey("accountIDSlot")

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// NewLoggingMiddleware はリクエストのJSON構造化ログを出力するミドルウェアを返す。
// ログにはmethod、path、status、duration_ms、account_id（認証済みの場合）を含む。
// パスワードやトークン本体は決してログに含めない。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			slot := &accountIDSlot{}
			r = r.WithContext(context.WithValue(r.Context(), accountIDSlotKey, slot))

			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			durationMs := float64(duration.Nanoseconds()) / float64(time.Millisecond)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", durationMs),
			}

			// 内側の認証ミドルウェアが書き込んだアカウントIDを追加
			if slot.id != "" {
				attrs = append(attrs, slog.String("account_id", slot.id))
			} else if accountID, err := AccountIDFromContext(r.Context()); err == nil && accountID != "" {
				// ロガーが認証ミドルウェアより内側に配置された場合
				attrs = append(attrs, slog.String("account_id", accountID))
			}

			// ステータスコードに応じてログレベルを変更
			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}

			args := make([]any, len(attrs))
			for i, attr := range attrs {
				args[i] = attr
			}

			logger.Log(r.Context(), level, "http_request", args...)
		})
	}
}
