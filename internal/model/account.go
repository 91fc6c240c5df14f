// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// Provider は認証方法の種別を表す。
type Provider string

const (
	// ProviderPassword はパスワード認証を示す。
	ProviderPassword Provider = "password"
	// ProviderGoogle はGoogleアカウントによる認証を示す。
	ProviderGoogle Provider = "google"
)

// ParseProvider は文字列をProviderに変換する。
// 未知の値は暗黙に変換せず、エラーとして拒否する。
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderPassword:
		return ProviderPassword, nil
	case ProviderGoogle:
		return ProviderGoogle, nil
	default:
		return "", fmt.Errorf("unknown identity provider: %q", s)
	}
}

// Account はサービス利用者のアカウントを表す。
// emailはアカウント全体で一意（大文字小文字を区別しない）。
type Account struct {
	ID         string
	Email      string
	GivenName  string
	FamilyName string
	AvatarURL  *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Identity はアカウントと認証方法の紐付けを表す。
// 1アカウントにつき同一providerのidentityは最大1件。
// Credentialはprovider=passwordの場合はArgon2idハッシュ、
// 外部IdPの場合はプロバイダー発行の不透明トークンを保持する。
// 一度保存されたCredentialを呼び出し元へ完全な形で返してはならない。
type Identity struct {
	ID         string
	AccountID  string
	Provider   Provider
	Credential string
	CreatedAt  time.Time
}

// RefreshToken は長期間有効な失効可能トークンを表す。
// 物理削除は行わず、revokedフラグによるソフト失効のみを行う
// （過去セッションの監査を可能にするため）。
type RefreshToken struct {
	ID             string
	AccountID      string
	Token          string
	IssuedAt       time.Time
	ExpiresAt      time.Time
	Revoked        bool
	RevocationTime *time.Time
}

// Active はトークンが現時点で有効かどうかを返す。
// 失効済みトークンはExpiresAtに関わらず常に無効。
func (t *RefreshToken) Active(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
