// Package auth は認証エンジン（登録・認証・トークン検証・更新・失効）を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/authman/internal/model"
	"github.com/hitoshi/authman/internal/password"
	"github.com/hitoshi/authman/internal/refresh"
	"github.com/hitoshi/authman/internal/repository"
	"github.com/hitoshi/authman/internal/token"
)

// TokenPair は認証成功時に発行されるアクセストークンとリフレッシュトークンの組。
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// OAuthUserInfo はOAuthプロバイダーから取得した検証済みユーザー情報を表す。
type OAuthUserInfo struct {
	Subject    string // プロバイダー側のユーザーID
	Email      string
	GivenName  string
	FamilyName string
	Picture    string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 将来的に複数IdPに対応するための抽象化。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、検証済みユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	accountRepo  repository.AccountRepository
	identityRepo repository.IdentityRepository
	hasher       *password.Hasher
	signer       *token.Signer
	refresher    *refresh.Issuer
	oauth        OAuthProvider // nilの場合はパスワード認証のみ
}

// NewService はServiceを生成する。oauthはnil可（パスワード認証のみで動作）。
func NewService(
	accountRepo repository.AccountRepository,
	identityRepo repository.IdentityRepository,
	hasher *password.Hasher,
	signer *token.Signer,
	refresher *refresh.Issuer,
	oauth OAuthProvider,
) *Service {
	return &Service{
		accountRepo:  accountRepo,
		identityRepo: identityRepo,
		hasher:       hasher,
		signer:       signer,
		refresher:    refresher,
		oauth:        oauth,
	}
}

// storeErr はストレージ障害をErrStoreUnavailableとして返しつつ原因を保持する。
func storeErr(err error) error {
	return fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
}

// Register はパスワード認証の新規アカウントを登録し、トークンペアを発行する。
// email重複はErrAccountExists。事前チェックは利便性のためで、
// 最終的な一意性保証はストア側の制約が担う。
func (s *Service) Register(ctx context.Context, email, plainPassword, givenName, familyName string) (*TokenPair, error) {
	// 1. 登録済みemailの事前チェック
	existing, err := s.accountRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, storeErr(err)
	}
	if existing != nil {
		return nil, model.ErrAccountExists
	}

	// 2. パスワードをハッシュ化
	credential, err := s.hasher.Hash(plainPassword)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrHashingFailure, err)
	}

	// 3. アカウントとidentityを同一トランザクションで作成
	now := time.Now()
	account := &model.Account{
		ID:         uuid.New().String(),
		Email:      email,
		GivenName:  givenName,
		FamilyName: familyName,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	identity := &model.Identity{
		ID:         uuid.New().String(),
		AccountID:  account.ID,
		Provider:   model.ProviderPassword,
		Credential: credential,
		CreatedAt:  now,
	}

	if err := s.accountRepo.CreateWithIdentity(ctx, account, identity); err != nil {
		var authErr *model.AuthError
		if errors.As(err, &authErr) {
			// 事前チェック後に競合した場合もストア側の判定を優先する
			return nil, err
		}
		return nil, storeErr(err)
	}

	slog.Info("account registered",
		slog.String("account_id", account.ID),
		slog.String("provider", string(model.ProviderPassword)),
	)

	return s.issueTokenPair(ctx, account)
}

// Authenticate はemailとパスワードでアカウントを認証し、トークンペアを発行する。
// アカウント不在・identity不在・パスワード不一致はすべてErrInvalidCredentialsに
// 集約する（登録済みemailの列挙を防ぐ）。
func (s *Service) Authenticate(ctx context.Context, email, plainPassword string) (*TokenPair, error) {
	account, err := s.accountRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, storeErr(err)
	}
	if account == nil {
		return nil, model.ErrInvalidCredentials
	}

	identity, err := s.identityRepo.FindByAccountAndProvider(ctx, account.ID, model.ProviderPassword)
	if err != nil {
		return nil, storeErr(err)
	}
	if identity == nil {
		return nil, model.ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(plainPassword, identity.Credential)
	if err != nil {
		// 保存済みハッシュが壊れている場合は利用者の誤りではない
		return nil, fmt.Errorf("%w: %v", model.ErrHashingFailure, err)
	}
	if !ok {
		return nil, model.ErrInvalidCredentials
	}

	slog.Info("account authenticated",
		slog.String("account_id", account.ID),
		slog.String("provider", string(model.ProviderPassword)),
	)

	return s.issueTokenPair(ctx, account)
}

// ValidateToken はアクセストークンを検証し、クレームを返す。
// 失敗理由は区別せずすべてErrInvalidTokenに集約する。
func (s *Service) ValidateToken(tokenString string) (*token.Claims, error) {
	claims, err := s.signer.Validate(tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidToken, err)
	}
	return claims, nil
}

// Refresh は有効なリフレッシュトークンと引き換えに新しいアクセストークンを発行する。
// リフレッシュトークン自体は使い回せる（ローテーションしない）。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	record, err := s.refresher.Validate(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, model.ErrInvalidToken) {
			return "", err
		}
		return "", storeErr(err)
	}

	account, err := s.accountRepo.FindByID(ctx, record.AccountID)
	if err != nil {
		return "", storeErr(err)
	}
	if account == nil {
		// トークンは有効だがアカウントが消えている。外部にはトークン不正として返す。
		return "", model.ErrInvalidToken
	}

	accessToken, err := s.signer.Issue(account.ID, account.Email)
	if err != nil {
		return "", fmt.Errorf("failed to issue access token: %w", err)
	}

	return accessToken, nil
}

// RevokeAll は指定アカウントの全リフレッシュトークンを失効させる（全端末ログアウト）。
func (s *Service) RevokeAll(ctx context.Context, accountID string) error {
	if err := s.refresher.RevokeAll(ctx, accountID); err != nil {
		return storeErr(err)
	}
	return nil
}

// AddIdentity は既存アカウントに認証方法を追加する。
// パスワードの場合はsecretをハッシュ化して保存し、Googleの場合は
// プロバイダー側ユーザーIDをそのまま保存する。
// 同一providerのidentityが既にある場合はErrIdentityExists。
func (s *Service) AddIdentity(ctx context.Context, accountID string, provider model.Provider, secret string) error {
	credential := secret
	if provider == model.ProviderPassword {
		hashed, err := s.hasher.Hash(secret)
		if err != nil {
			return fmt.Errorf("%w: %v", model.ErrHashingFailure, err)
		}
		credential = hashed
	}

	identity := &model.Identity{
		ID:         uuid.New().String(),
		AccountID:  accountID,
		Provider:   provider,
		Credential: credential,
		CreatedAt:  time.Now(),
	}

	if err := s.identityRepo.Add(ctx, identity); err != nil {
		var authErr *model.AuthError
		if errors.As(err, &authErr) {
			return err
		}
		return storeErr(err)
	}

	slog.Info("identity added",
		slog.String("account_id", accountID),
		slog.String("provider", string(provider)),
	)
	return nil
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	if s.oauth == nil {
		return ""
	}
	return s.oauth.GetLoginURL(state)
}

// HandleGoogleCallback はGoogle OAuthコールバックを処理し、トークンペアを発行する。
// 未登録emailの場合はアカウントとgoogle identityを自動作成する。
// 登録済みemailでgoogle identityがない場合はidentityを追加で紐付ける。
func (s *Service) HandleGoogleCallback(ctx context.Context, code string) (*TokenPair, error) {
	if s.oauth == nil {
		return nil, model.ErrInvalidProvider
	}

	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	account, err := s.accountRepo.FindByEmail(ctx, userInfo.Email)
	if err != nil {
		return nil, storeErr(err)
	}

	now := time.Now()

	if account == nil {
		// 新規ユーザー: アカウントとidentityを同時に作成
		account = &model.Account{
			ID:         uuid.New().String(),
			Email:      userInfo.Email,
			GivenName:  userInfo.GivenName,
			FamilyName: userInfo.FamilyName,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if userInfo.Picture != "" {
			account.AvatarURL = &userInfo.Picture
		}
		identity := &model.Identity{
			ID:         uuid.New().String(),
			AccountID:  account.ID,
			Provider:   model.ProviderGoogle,
			Credential: userInfo.Subject,
			CreatedAt:  now,
		}

		if err := s.accountRepo.CreateWithIdentity(ctx, account, identity); err != nil {
			var authErr *model.AuthError
			if errors.As(err, &authErr) {
				return nil, err
			}
			return nil, storeErr(err)
		}

		slog.Info("account registered",
			slog.String("account_id", account.ID),
			slog.String("provider", string(model.ProviderGoogle)),
		)
		return s.issueTokenPair(ctx, account)
	}

	identity, err := s.identityRepo.FindByAccountAndProvider(ctx, account.ID, model.ProviderGoogle)
	if err != nil {
		return nil, storeErr(err)
	}

	if identity == nil {
		// 既存アカウントへのgoogle identity紐付け
		if err := s.AddIdentity(ctx, account.ID, model.ProviderGoogle, userInfo.Subject); err != nil {
			return nil, err
		}
	} else if identity.Credential != userInfo.Subject {
		// 同じemailだがプロバイダー側ユーザーIDが一致しない
		return nil, model.ErrInvalidCredentials
	}

	// プロバイダー側の最新プロフィール（名前・アバター）を反映する
	if syncAccountProfile(account, userInfo) {
		account.UpdatedAt = now
		if err := s.accountRepo.UpdateProfile(ctx, account); err != nil {
			// 同期失敗でログイン自体は失敗させない
			slog.Warn("failed to sync account profile",
				slog.String("account_id", account.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	slog.Info("account authenticated",
		slog.String("account_id", account.ID),
		slog.String("provider", string(model.ProviderGoogle)),
	)
	return s.issueTokenPair(ctx, account)
}

// syncAccountProfile はOAuthプロバイダーの検証済みプロフィールをaccountに反映する。
// いずれかの項目が変わった場合にtrueを返す。空の項目では上書きしない。
func syncAccountProfile(account *model.Account, userInfo *OAuthUserInfo) bool {
	changed := false
	if userInfo.GivenName != "" && account.GivenName != userInfo.GivenName {
		account.GivenName = userInfo.GivenName
		changed = true
	}
	if userInfo.FamilyName != "" && account.FamilyName != userInfo.FamilyName {
		account.FamilyName = userInfo.FamilyName
		changed = true
	}
	if userInfo.Picture != "" && (account.AvatarURL == nil || *account.AvatarURL != userInfo.Picture) {
		account.AvatarURL = &userInfo.Picture
		changed = true
	}
	return changed
}

// GetAccount は指定IDのアカウントを取得する。見つからない場合はErrInvalidToken。
// 有効なアクセストークンのsubに対応するアカウントの取得に使う。
func (s *Service) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		return nil, storeErr(err)
	}
	if account == nil {
		return nil, model.ErrInvalidToken
	}
	return account, nil
}

// issueTokenPair はアクセストークンとリフレッシュトークンの組を発行する。
func (s *Service) issueTokenPair(ctx context.Context, account *model.Account) (*TokenPair, error) {
	accessToken, err := s.signer.Issue(account.ID, account.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	refreshToken, err := s.refresher.Issue(ctx, account.ID)
	if err != nil {
		return nil, storeErr(err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken.Token,
	}, nil
}
