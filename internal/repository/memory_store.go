package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/authman/internal/model"
)

// MemoryStore は全リポジトリインターフェースのインメモリ実装。
// 単体テストとローカル動作確認用で、プロセス終了でデータは消える。
type MemoryStore struct {
	mu            sync.RWMutex
	accounts      map[string]*model.Account      // id -> account
	identities    map[string]*model.Identity     // id -> identity
	refreshTokens map[string]*model.RefreshToken // token値 -> record
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:      make(map[string]*model.Account),
		identities:    make(map[string]*model.Identity),
		refreshTokens: make(map[string]*model.RefreshToken),
	}
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (s *MemoryStore) FindByID(ctx context.Context, id string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	copied := *account
	return &copied, nil
}

// FindByEmail はemailでアカウントを検索する。大文字小文字は区別しない。
func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, account := range s.accounts {
		if strings.EqualFold(account.Email, email) {
			copied := *account
			return &copied, nil
		}
	}
	return nil, nil
}

// CreateWithIdentity はアカウントとidentityを原子的に作成する。
func (s *MemoryStore) CreateWithIdentity(ctx context.Context, account *model.Account, identity *model.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if strings.EqualFold(existing.Email, account.Email) {
			return model.ErrAccountExists
		}
	}
	for _, existing := range s.identities {
		if existing.AccountID == identity.AccountID && existing.Provider == identity.Provider {
			return model.ErrIdentityExists
		}
	}

	accountCopy := *account
	identityCopy := *identity
	s.accounts[account.ID] = &accountCopy
	s.identities[identity.ID] = &identityCopy
	return nil
}

// UpdateProfile はアカウントのプロフィール項目を更新する。
func (s *MemoryStore) UpdateProfile(ctx context.Context, account *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.accounts[account.ID]
	if !ok {
		return model.ErrStoreUnavailable
	}
	existing.GivenName = account.GivenName
	existing.FamilyName = account.FamilyName
	existing.AvatarURL = account.AvatarURL
	existing.UpdatedAt = account.UpdatedAt
	return nil
}

// FindByAccountAndProvider はアカウントIDとproviderでidentityを検索する。
func (s *MemoryStore) FindByAccountAndProvider(ctx context.Context, accountID string, provider model.Provider) (*model.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, identity := range s.identities {
		if identity.AccountID == accountID && identity.Provider == provider {
			copied := *identity
			return &copied, nil
		}
	}
	return nil, nil
}

// Add は既存アカウントにidentityを追加する。
func (s *MemoryStore) Add(ctx context.Context, identity *model.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.identities {
		if existing.AccountID == identity.AccountID && existing.Provider == identity.Provider {
			return model.ErrIdentityExists
		}
	}

	copied := *identity
	s.identities[identity.ID] = &copied
	return nil
}

// Create はリフレッシュトークンを保存する。
func (s *MemoryStore) Create(ctx context.Context, token *model.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *token
	s.refreshTokens[token.Token] = &copied
	return nil
}

// FindByToken はトークン値でリフレッシュトークンを検索する。
func (s *MemoryStore) FindByToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rt, ok := s.refreshTokens[token]
	if !ok {
		return nil, nil
	}
	copied := *rt
	return &copied, nil
}

// RevokeAllByAccountID は指定アカウントの有効な全トークンを失効させる。
func (s *MemoryStore) RevokeAllByAccountID(ctx context.Context, accountID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, rt := range s.refreshTokens {
		if rt.AccountID == accountID && !rt.Revoked {
			rt.Revoked = true
			revokedAt := at
			rt.RevocationTime = &revokedAt
			count++
		}
	}
	return count, nil
}

// compile-time interface checks
var (
	_ AccountRepository      = (*MemoryStore)(nil)
	_ IdentityRepository     = (*MemoryStore)(nil)
	_ RefreshTokenRepository = (*MemoryStore)(nil)
)
