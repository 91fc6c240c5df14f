// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/authman/internal/model"
)

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindByEmail はemailでアカウントを検索する。大文字小文字は区別しない。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// CreateWithIdentity はアカウントとidentityを同一トランザクションで作成する。
	// email重複の場合はmodel.ErrAccountExistsを返し、どちらの行も残さない。
	CreateWithIdentity(ctx context.Context, account *model.Account, identity *model.Identity) error

	// UpdateProfile はアカウントのプロフィール項目（名前・アバター）を更新する。
	UpdateProfile(ctx context.Context, account *model.Account) error
}

// IdentityRepository は認証方法（identity）の永続化インターフェース。
type IdentityRepository interface {
	// FindByAccountAndProvider はアカウントIDとproviderでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByAccountAndProvider(ctx context.Context, accountID string, provider model.Provider) (*model.Identity, error)

	// Add は既存アカウントにidentityを追加する。
	// 同一(account, provider)が既に存在する場合はmodel.ErrIdentityExistsを返す。
	Add(ctx context.Context, identity *model.Identity) error
}

// RefreshTokenRepository はリフレッシュトークンの永続化インターフェース。
// トークンは物理削除せず、revokedフラグで論理失効させる。
type RefreshTokenRepository interface {
	// Create はリフレッシュトークンを保存する。
	Create(ctx context.Context, token *model.RefreshToken) error

	// FindByToken はトークン値でリフレッシュトークンを検索する。
	// 失効済み・期限切れも含めて返す。見つからない場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.RefreshToken, error)

	// RevokeAllByAccountID は指定アカウントの有効な全トークンを失効させる。
	// 失効済みトークンのrevocation_timeは上書きしない。失効させた件数を返す。
	RevokeAllByAccountID(ctx context.Context, accountID string, at time.Time) (int, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
