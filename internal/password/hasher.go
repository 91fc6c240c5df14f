// Package password はArgon2idによるパスワードハッシュの生成と検証を提供する。
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const algorithmID = "argon2id"

// Params はArgon2idのコストパラメータ。
type Params struct {
	Memory      uint32 // KiB単位
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams はOWASP推奨に沿ったデフォルトパラメータを返す。
func DefaultParams() Params {
	return Params{
		Memory:      19 * 1024,
		Time:        2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher はArgon2idハッシュの生成器。
// パラメータは生成時に固定し、以後変更しない。
type Hasher struct {
	params Params
}

// NewHasher は指定パラメータのHasherを生成する。
func NewHasher(params Params) *Hasher {
	return &Hasher{params: params}
}

// Hash はパスワードをハッシュ化し、PHC形式の文字列を返す。
// ソルトは呼び出しごとにCSPRNGで生成するため、同一パスワードでも
// 毎回異なる文字列になる。
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := argon2.IDKey(
		[]byte(password),
		salt,
		h.params.Time,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	encoded := fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)

	return encoded, nil
}

// Verify はパスワードがPHC形式のハッシュと一致するかを検証する。
// 比較は定数時間で行う。ハッシュの形式が不正な場合はエラーを返す。
// 検証時のパラメータは保存済みハッシュ側の値を使うため、
// Hasherのパラメータを強化しても既存ハッシュの検証は壊れない。
func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	params, salt, hash, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(password),
		salt,
		params.Time,
		params.Memory,
		params.Parallelism,
		uint32(len(hash)),
	)

	return subtle.ConstantTimeCompare(computed, hash) == 1, nil
}

// decodePHC はPHC形式（$argon2id$v=19$m=...,t=...,p=...$salt$hash）を分解する。
func decodePHC(encodedHash string) (Params, []byte, []byte, error) {
	var params Params

	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" {
		return params, nil, nil, errors.New("invalid PHC format")
	}
	if parts[1] != algorithmID {
		return params, nil, nil, errors.New("unsupported algorithm")
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || version != argon2.Version {
		return params, nil, nil, errors.New("unsupported argon2 version")
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d",
		&params.Memory, &params.Time, &params.Parallelism); err != nil {
		return params, nil, nil, errors.New("invalid cost parameters")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params, nil, nil, errors.New("invalid salt encoding")
	}

	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return params, nil, nil, errors.New("invalid hash encoding")
	}
	if len(hash) == 0 {
		return params, nil, nil, errors.New("empty hash")
	}

	return params, salt, hash, nil
}
