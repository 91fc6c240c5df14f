// Package refresh はリフレッシュトークン文字列の生成を提供する。
package refresh

import (
	"crypto/rand"
	"fmt"
)

// TokenLength はリフレッシュトークンの文字数。
const TokenLength = 256

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Generate は英数字のみからなる長さTokenLengthのトークンをCSPRNGで生成する。
// 偏りを避けるため、62の倍数に収まらないバイト値は棄却して引き直す。
func Generate() (string, error) {
	// 256以下で最大の62の倍数
	const max = byte(len(alphabet) * (256 / len(alphabet)))

	out := make([]byte, 0, TokenLength)
	buf := make([]byte, TokenLength)

	for len(out) < TokenLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= max {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == TokenLength {
				break
			}
		}
	}

	return string(out), nil
}
