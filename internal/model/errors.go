// Package model はドメインモデルを定義する。
package model

import "fmt"

// AuthError は認証ドメインの統一エラーフォーマットを表す。
// RPC/HTTP層でのステータスマッピングに使う原因カテゴリを含む。
type AuthError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, conflict, validation, system
}

// Error はerrorインターフェースを実装する。
func (e *AuthError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAccountExists      = "ACCOUNT_ALREADY_EXISTS"
	ErrCodeIdentityExists     = "IDENTITY_ALREADY_EXISTS"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeInvalidToken       = "INVALID_TOKEN"
	ErrCodeInvalidProvider    = "INVALID_PROVIDER"
	ErrCodeHashingFailure     = "HASHING_FAILURE"
	ErrCodeStoreUnavailable   = "STORE_UNAVAILABLE"
)

// エンジンが返す終端エラー。errors.Isによる比較で分岐する。
var (
	// ErrAccountExists は登録済みemailへの再登録を表す。利用者が修正可能。
	ErrAccountExists = &AuthError{
		Code:     ErrCodeAccountExists,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "conflict",
	}

	// ErrIdentityExists は同一(account, provider)のidentityが既に存在することを表す。
	ErrIdentityExists = &AuthError{
		Code:     ErrCodeIdentityExists,
		Message:  "この認証方法は既にアカウントに紐付いています。",
		Category: "conflict",
	}

	// ErrInvalidCredentials は認証失敗を表す。
	// アカウント不在・identity不在・パスワード不一致を意図的に区別しない
	// （登録済みemailの列挙攻撃を防ぐため）。
	ErrInvalidCredentials = &AuthError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
	}

	// ErrInvalidToken はアクセストークンの署名・期限・構造の不正、
	// またはリフレッシュトークンの不在・期限切れ・失効を表す。
	// 原因の内訳は外部に公開しない。
	ErrInvalidToken = &AuthError{
		Code:     ErrCodeInvalidToken,
		Message:  "トークンが無効です。",
		Category: "auth",
	}

	// ErrInvalidProvider は境界で拒否された未知のprovider値を表す。
	ErrInvalidProvider = &AuthError{
		Code:     ErrCodeInvalidProvider,
		Message:  "サポートされていない認証プロバイダーです。",
		Category: "validation",
	}

	// ErrHashingFailure はハッシュプリミティブ自体の失敗を表す。
	// 利用者の誤りではなくシステム障害として扱う。
	ErrHashingFailure = &AuthError{
		Code:     ErrCodeHashingFailure,
		Message:  "認証情報の処理に失敗しました。",
		Category: "system",
	}

	// ErrStoreUnavailable はストレージ障害またはトランザクション中断を表す。
	// 呼び出し側がリトライ可能な条件として返し、内部では握りつぶさない。
	ErrStoreUnavailable = &AuthError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "データストアが利用できません。",
		Category: "system",
	}
)
