package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/authman/internal/model"
	"github.com/hitoshi/authman/internal/repository"
)

// Issuer はリフレッシュトークンのライフサイクル（発行・検証・一括失効）を管理する。
type Issuer struct {
	repo repository.RefreshTokenRepository
	ttl  time.Duration
	now  func() time.Time
}

// NewIssuer はIssuerを生成する。ttlは発行するトークンの有効期間。
func NewIssuer(repo repository.RefreshTokenRepository, ttl time.Duration) *Issuer {
	return &Issuer{
		repo: repo,
		ttl:  ttl,
		now:  time.Now,
	}
}

// Issue は指定アカウントのリフレッシュトークンを生成・永続化して返す。
func (i *Issuer) Issue(ctx context.Context, accountID string) (*model.RefreshToken, error) {
	tokenValue, err := Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	now := i.now()
	token := &model.RefreshToken{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Token:     tokenValue,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.ttl),
	}

	if err := i.repo.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to persist refresh token: %w", err)
	}

	return token, nil
}

// Validate は提示されたトークン値を検証し、有効な場合にレコードを返す。
// 不在・期限切れ・失効済みはすべてmodel.ErrInvalidTokenとして返し、
// 原因の内訳は公開しない。
func (i *Issuer) Validate(ctx context.Context, tokenValue string) (*model.RefreshToken, error) {
	token, err := i.repo.FindByToken(ctx, tokenValue)
	if err != nil {
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}
	if token == nil || !token.Active(i.now()) {
		return nil, model.ErrInvalidToken
	}

	return token, nil
}

// RevokeAll は指定アカウントの有効な全トークンを失効させる。
// 失効対象がなくてもエラーにはならない（冪等）。
func (i *Issuer) RevokeAll(ctx context.Context, accountID string) error {
	count, err := i.repo.RevokeAllByAccountID(ctx, accountID, i.now())
	if err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}

	slog.Info("refresh tokens revoked",
		slog.String("account_id", accountID),
		slog.Int("count", count),
	)
	return nil
}
