// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/authman/internal/auth"
	"github.com/hitoshi/authman/internal/metrics"
	"github.com/hitoshi/authman/internal/middleware"
	"github.com/hitoshi/authman/internal/model"
	"github.com/hitoshi/authman/internal/token"
)

const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, email, password, givenName, familyName string) (*auth.TokenPair, error)
	Authenticate(ctx context.Context, email, password string) (*auth.TokenPair, error)
	ValidateToken(tokenString string) (*token.Claims, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	RevokeAll(ctx context.Context, accountID string) error
	AddIdentity(ctx context.Context, accountID string, provider model.Provider, secret string) error
	GetAccount(ctx context.Context, accountID string) (*model.Account, error)
	GetLoginURL(state string) string
	HandleGoogleCallback(ctx context.Context, code string) (*auth.TokenPair, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieSecure bool
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service   AuthServiceInterface
	collector metrics.MetricsCollector
	config    AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, collector metrics.MetricsCollector, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:   service,
		collector: collector,
		config:    config,
	}
}

// tokenPairResponse は認証成功時のレスポンスボディ。
type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func writeTokenPair(w http.ResponseWriter, statusCode int, pair *auth.TokenPair) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
	})
}

// registerRequest はアカウント登録のリクエストボディ。
type registerRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// Register は新規アカウントを登録し、トークンペアを返す。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "リクエストボディが不正です。")
		return
	}
	if !validEmail(req.Email) {
		writeValidationError(w, "emailの形式が不正です。")
		return
	}
	if len(req.Password) < 8 {
		writeValidationError(w, "パスワードは8文字以上で指定してください。")
		return
	}

	pair, err := h.service.Register(r.Context(), req.Email, req.Password, req.GivenName, req.FamilyName)
	if err != nil {
		h.collector.RecordRegistration(metrics.OutcomeFailure)
		slog.Warn("registration failed", slog.String("error", err.Error()))
		middleware.WriteAuthError(w, err)
		return
	}

	h.collector.RecordRegistration(metrics.OutcomeSuccess)
	writeTokenPair(w, http.StatusCreated, pair)
}

// loginRequest はパスワード認証のリクエストボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login はemailとパスワードで認証し、トークンペアを返す。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "リクエストボディが不正です。")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeValidationError(w, "emailとpasswordは必須です。")
		return
	}

	pair, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.collector.RecordAuthentication(metrics.OutcomeFailure)
		// 失敗理由はログにも残さない（emailはログ可、パスワードは不可）
		slog.Warn("authentication failed")
		middleware.WriteAuthError(w, err)
		return
	}

	h.collector.RecordAuthentication(metrics.OutcomeSuccess)
	writeTokenPair(w, http.StatusOK, pair)
}

// refreshRequest はトークン再発行のリクエストボディ。
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh は有効なリフレッシュトークンと引き換えに新しいアクセストークンを返す。
// POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeValidationError(w, "refresh_tokenは必須です。")
		return
	}

	accessToken, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.collector.RecordTokenRefresh(metrics.OutcomeFailure)
		middleware.WriteAuthError(w, err)
		return
	}

	h.collector.RecordTokenRefresh(metrics.OutcomeSuccess)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"access_token": accessToken,
		"token_type":   "Bearer",
	})
}

// Validate はアクセストークンの検証結果を返す。
// 検証とレイテンシ計測はBearerAuthMiddlewareが行い、ここではクレームを返すのみ。
// GET /auth/validate
func (h *AuthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.ClaimsFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.ErrInvalidToken)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"account_id": claims.Subject,
		"email":      claims.Email,
		"expires_at": claims.ExpiresAt.Unix(),
	})
}

// Revoke は認証済みアカウントの全リフレッシュトークンを失効させる。
// POST /auth/revoke
func (h *AuthHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.ErrInvalidToken)
		return
	}

	if err := h.service.RevokeAll(r.Context(), accountID); err != nil {
		middleware.WriteAuthError(w, err)
		return
	}

	h.collector.RecordRevocation()
	w.WriteHeader(http.StatusNoContent)
}

// addIdentityRequest は認証方法追加のリクエストボディ。
type addIdentityRequest struct {
	Provider string `json:"provider"`
	Secret   string `json:"secret"`
}

// AddIdentity は認証済みアカウントに認証方法を追加する。
// POST /auth/identities
func (h *AuthHandler) AddIdentity(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.ErrInvalidToken)
		return
	}

	var req addIdentityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Secret == "" {
		writeValidationError(w, "providerとsecretは必須です。")
		return
	}

	// 未知のprovider値は境界で拒否する
	provider, err := model.ParseProvider(req.Provider)
	if err != nil {
		middleware.WriteAuthError(w, model.ErrInvalidProvider)
		return
	}

	if err := h.service.AddIdentity(r.Context(), accountID, provider, req.Secret); err != nil {
		middleware.WriteAuthError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// Me は認証済みアカウントのプロフィールを返す。
// 認証情報（パスワードハッシュ等）は決して含めない。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.ErrInvalidToken)
		return
	}

	account, err := h.service.GetAccount(r.Context(), accountID)
	if err != nil {
		middleware.WriteAuthError(w, err)
		return
	}

	resp := map[string]interface{}{
		"id":          account.ID,
		"email":       account.Email,
		"given_name":  account.GivenName,
		"family_name": account.FamilyName,
		"created_at":  account.CreatedAt,
	}
	if account.AvatarURL != nil {
		resp["avatar_url"] = *account.AvatarURL
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GoogleLogin はGoogle OAuthフローを開始する。
// GET /auth/google/login
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	url := h.service.GetLoginURL(state)
	if url == "" {
		middleware.WriteAuthError(w, model.ErrInvalidProvider)
		return
	}
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// GoogleCallback はOAuthコールバックを処理し、トークンペアを返す。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch")
		writeValidationError(w, "stateパラメータが不正です。")
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		writeValidationError(w, "認可コードがありません。")
		return
	}

	// 3. 認証処理
	pair, err := h.service.HandleGoogleCallback(r.Context(), code)
	if err != nil {
		h.collector.RecordAuthentication(metrics.OutcomeFailure)
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		middleware.WriteAuthError(w, err)
		return
	}

	h.collector.RecordAuthentication(metrics.OutcomeSuccess)
	writeTokenPair(w, http.StatusOK, pair)
}

// writeValidationError は入力検証エラーの統一レスポンスを書き込む。
func writeValidationError(w http.ResponseWriter, message string) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.AuthError{
		Code:     "VALIDATION_ERROR",
		Message:  message,
		Category: "validation",
	})
}

// validEmail はemailの形式を簡易検証する。厳密な検証は確認メール側で行う前提。
func validEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1 && len(email) <= 254
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
