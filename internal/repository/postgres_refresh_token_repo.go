package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/authman/internal/model"
)

// PostgresRefreshTokenRepo はPostgreSQLを使用したリフレッシュトークンリポジトリ。
type PostgresRefreshTokenRepo struct {
	db *sql.DB
}

// NewPostgresRefreshTokenRepo はPostgresRefreshTokenRepoを生成する。
func NewPostgresRefreshTokenRepo(db *sql.DB) *PostgresRefreshTokenRepo {
	return &PostgresRefreshTokenRepo{db: db}
}

// Create はリフレッシュトークンを保存する。
func (r *PostgresRefreshTokenRepo) Create(ctx context.Context, token *model.RefreshToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, account_id, token, issued_at, expires_at, revoked, revocation_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		token.ID, token.AccountID, token.Token, token.IssuedAt, token.ExpiresAt,
		token.Revoked, token.RevocationTime,
	)
	if err != nil {
		return fmt.Errorf("failed to insert refresh token: %w", err)
	}

	return nil
}

// FindByToken はトークン値でリフレッシュトークンを検索する。
// 失効済み・期限切れも含めて返す。見つからない場合はnilを返す。
func (r *PostgresRefreshTokenRepo) FindByToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	rt := &model.RefreshToken{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, token, issued_at, expires_at, revoked, revocation_time
		 FROM refresh_tokens WHERE token = $1`,
		token,
	).Scan(&rt.ID, &rt.AccountID, &rt.Token, &rt.IssuedAt, &rt.ExpiresAt,
		&rt.Revoked, &rt.RevocationTime)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find refresh token: %w", err)
	}

	return rt, nil
}

// RevokeAllByAccountID は指定アカウントの有効な全トークンを失効させる。
// 失効済みトークンのrevocation_timeは上書きしない。失効させた件数を返す。
func (r *PostgresRefreshTokenRepo) RevokeAllByAccountID(ctx context.Context, accountID string, at time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens
		 SET revoked = TRUE, revocation_time = $2
		 WHERE account_id = $1 AND revoked = FALSE`,
		accountID, at,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rowsAffected), nil
}

// compile-time interface check
var _ RefreshTokenRepository = (*PostgresRefreshTokenRepo)(nil)
