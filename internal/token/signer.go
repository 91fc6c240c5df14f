// Package token はHS256署名付きJWTアクセストークンの発行と検証を提供する。
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer はアクセストークンのiss固定値。
const Issuer = "authentication"

// Claims はアクセストークンに含まれるクレーム。
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Signer は共有シークレットによるHS256署名器。
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner はSignerを生成する。ttlは発行するトークンの有効期間。
func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue は指定アカウントのアクセストークンを発行する。
// subにアカウントID、emailに現在のemailを埋め込む。
func (s *Signer) Issue(accountID, email string) (string, error) {
	now := s.now()

	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Validate はトークン文字列を検証し、クレームを返す。
// 署名不正・期限切れ・構造不正・alg不一致はすべてエラーとして返し、
// 原因の区別は呼び出し側に公開しない。
func (s *Signer) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	return claims, nil
}
