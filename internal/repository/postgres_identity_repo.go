package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/authman/internal/model"
)

// PostgresIdentityRepo はPostgreSQLを使用したidentityリポジトリ。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

// FindByAccountAndProvider はアカウントIDとproviderでidentityを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByAccountAndProvider(ctx context.Context, accountID string, provider model.Provider) (*model.Identity, error) {
	identity := &model.Identity{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, provider, credential, created_at
		 FROM identities WHERE account_id = $1 AND provider = $2`,
		accountID, string(provider),
	).Scan(&identity.ID, &identity.AccountID, &identity.Provider, &identity.Credential, &identity.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	return identity, nil
}

// Add は既存アカウントにidentityを追加する。
// 同一(account, provider)が既に存在する場合はmodel.ErrIdentityExistsを返す。
func (r *PostgresIdentityRepo) Add(ctx context.Context, identity *model.Identity) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO identities (id, account_id, provider, credential, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		identity.ID, identity.AccountID, identity.Provider, identity.Credential, identity.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrIdentityExists
		}
		return fmt.Errorf("failed to insert identity: %w", err)
	}

	return nil
}

// compile-time interface check
var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
