package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/authman/internal/auth"
	"github.com/hitoshi/authman/internal/metrics"
	"github.com/hitoshi/authman/internal/middleware"
	"github.com/hitoshi/authman/internal/model"
	"github.com/hitoshi/authman/internal/token"
)

// --- モック定義 ---

type mockAuthService struct {
	registerFn       func(ctx context.Context, email, password, givenName, familyName string) (*auth.TokenPair, error)
	authenticateFn   func(ctx context.Context, email, password string) (*auth.TokenPair, error)
	validateTokenFn  func(tokenString string) (*token.Claims, error)
	refreshFn        func(ctx context.Context, refreshToken string) (string, error)
	revokeAllFn      func(ctx context.Context, accountID string) error
	addIdentityFn    func(ctx context.Context, accountID string, provider model.Provider, secret string) error
	getAccountFn     func(ctx context.Context, accountID string) (*model.Account, error)
	getLoginURLFn    func(state string) string
	googleCallbackFn func(ctx context.Context, code string) (*auth.TokenPair, error)
}

func (m *mockAuthService) Register(ctx context.Context, email, password, givenName, familyName string) (*auth.TokenPair, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, email, password, givenName, familyName)
	}
	return &auth.TokenPair{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (m *mockAuthService) Authenticate(ctx context.Context, email, password string) (*auth.TokenPair, error) {
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, email, password)
	}
	return &auth.TokenPair{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (m *mockAuthService) ValidateToken(tokenString string) (*token.Claims, error) {
	if m.validateTokenFn != nil {
		return m.validateTokenFn(tokenString)
	}
	return nil, model.ErrInvalidToken
}

func (m *mockAuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, refreshToken)
	}
	return "new-access", nil
}

func (m *mockAuthService) RevokeAll(ctx context.Context, accountID string) error {
	if m.revokeAllFn != nil {
		return m.revokeAllFn(ctx, accountID)
	}
	return nil
}

func (m *mockAuthService) AddIdentity(ctx context.Context, accountID string, provider model.Provider, secret string) error {
	if m.addIdentityFn != nil {
		return m.addIdentityFn(ctx, accountID, provider, secret)
	}
	return nil
}

func (m *mockAuthService) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	if m.getAccountFn != nil {
		return m.getAccountFn(ctx, accountID)
	}
	return nil, model.ErrInvalidToken
}

func (m *mockAuthService) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockAuthService) HandleGoogleCallback(ctx context.Context, code string) (*auth.TokenPair, error) {
	if m.googleCallbackFn != nil {
		return m.googleCallbackFn(ctx, code)
	}
	return nil, errors.New("not implemented")
}

func newTestHandler(svc AuthServiceInterface) *AuthHandler {
	collector := metrics.NewCollector(prometheus.NewRegistry())
	return NewAuthHandler(svc, collector, AuthHandlerConfig{})
}

// withTestClaims は検証済みクレームをリクエストコンテキストに注入する。
func withTestClaims(r *http.Request, accountID string) *http.Request {
	claims := &token.Claims{}
	claims.Subject = accountID
	return r.WithContext(middleware.WithClaims(r.Context(), claims))
}

// --- Register ---

func TestRegister_Success_Returns201WithTokenPair(t *testing.T) {
	h := newTestHandler(&mockAuthService{})

	body := `{"email":"alice@example.com","password":"password123","given_name":"Alice","family_name":"Example"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var resp tokenPairResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Error("expected non-empty token pair in response")
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("token_type = %q, want %q", resp.TokenType, "Bearer")
	}
}

func TestRegister_InvalidBody_Returns400(t *testing.T) {
	h := newTestHandler(&mockAuthService{})

	tests := []struct {
		name string
		body string
	}{
		{"not json", "not json"},
		{"missing email", `{"password":"password123"}`},
		{"bad email", `{"email":"no-at-sign","password":"password123"}`},
		{"short password", `{"email":"alice@example.com","password":"short"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			h.Register(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestRegister_DuplicateEmail_Returns409(t *testing.T) {
	h := newTestHandler(&mockAuthService{
		registerFn: func(ctx context.Context, email, password, givenName, familyName string) (*auth.TokenPair, error) {
			return nil, model.ErrAccountExists
		},
	})

	body := `{"email":"alice@example.com","password":"password123"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

// --- Login ---

func TestLogin_InvalidCredentials_Returns401(t *testing.T) {
	h := newTestHandler(&mockAuthService{
		authenticateFn: func(ctx context.Context, email, password string) (*auth.TokenPair, error) {
			return nil, model.ErrInvalidCredentials
		},
	})

	body := `{"email":"alice@example.com","password":"wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["code"] != "INVALID_CREDENTIALS" {
		t.Errorf("code = %q, want %q", resp["code"], "INVALID_CREDENTIALS")
	}
}

func TestLogin_StoreUnavailable_Returns503(t *testing.T) {
	h := newTestHandler(&mockAuthService{
		authenticateFn: func(ctx context.Context, email, password string) (*auth.TokenPair, error) {
			return nil, model.ErrStoreUnavailable
		},
	})

	body := `{"email":"alice@example.com","password":"password123"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

// --- Refresh ---

func TestRefresh_Success_ReturnsNewAccessToken(t *testing.T) {
	h := newTestHandler(&mockAuthService{
		refreshFn: func(ctx context.Context, refreshToken string) (string, error) {
			if refreshToken != "valid-refresh-token" {
				t.Errorf("refreshToken = %q, want %q", refreshToken, "valid-refresh-token")
			}
			return "fresh-access-token", nil
		},
	})

	body := `{"refresh_token":"valid-refresh-token"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Refresh(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["access_token"] != "fresh-access-token" {
		t.Errorf("access_token = %q, want %q", resp["access_token"], "fresh-access-token")
	}
}

func TestRefresh_InvalidToken_Returns401(t *testing.T) {
	h := newTestHandler(&mockAuthService{
		refreshFn: func(ctx context.Context, refreshToken string) (string, error) {
			return "", model.ErrInvalidToken
		},
	})

	body := `{"refresh_token":"revoked-token"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Refresh(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRefresh_MissingToken_Returns400(t *testing.T) {
	h := newTestHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	h.Refresh(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

// --- AddIdentity ---

func TestAddIdentity_UnknownProvider_Returns400(t *testing.T) {
	h := newTestHandler(&mockAuthService{})

	body := `{"provider":"facebook","secret":"something"}`
	req := withTestClaims(httptest.NewRequest(http.MethodPost, "/auth/identities", strings.NewReader(body)), "account-1")
	rec := httptest.NewRecorder()

	h.AddIdentity(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["code"] != "INVALID_PROVIDER" {
		t.Errorf("code = %q, want %q", resp["code"], "INVALID_PROVIDER")
	}
}

func TestAddIdentity_DuplicateProvider_Returns409(t *testing.T) {
	h := newTestHandler(&mockAuthService{
		addIdentityFn: func(ctx context.Context, accountID string, provider model.Provider, secret string) error {
			return model.ErrIdentityExists
		},
	})

	body := `{"provider":"password","secret":"new-password"}`
	req := withTestClaims(httptest.NewRequest(http.MethodPost, "/auth/identities", strings.NewReader(body)), "account-1")
	rec := httptest.NewRecorder()

	h.AddIdentity(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

// --- GoogleCallback ---

func TestGoogleCallback_StateMismatch_Returns400(t *testing.T) {
	h := newTestHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=xxx&state=attacker", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "legitimate"})
	rec := httptest.NewRecorder()

	h.GoogleCallback(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGoogleCallback_Success_ReturnsTokenPair(t *testing.T) {
	h := newTestHandler(&mockAuthService{
		googleCallbackFn: func(ctx context.Context, code string) (*auth.TokenPair, error) {
			return &auth.TokenPair{AccessToken: "access", RefreshToken: "refresh"}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=auth-code&state=xyz", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "xyz"})
	rec := httptest.NewRecorder()

	h.GoogleCallback(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp tokenPairResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.AccessToken != "access" {
		t.Errorf("access_token = %q, want %q", resp.AccessToken, "access")
	}
}
