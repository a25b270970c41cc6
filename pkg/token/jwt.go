// Package token 提供了用于签发和验证会话令牌 (JWT) 的功能。
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionTokenManager 签发不透明的会话令牌，替代由连接元数据推导的会话标识。
type SessionTokenManager struct {
	secretKey []byte        // secretKey 用于签名和验证 token 的密钥
	ttl       time.Duration // ttl 定义了令牌的有效期
}

// SessionClaims 在标准声明之外携带会话 ID。
type SessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// NewSessionTokenManager 创建一个新的 SessionTokenManager。
// secret 为空时返回 nil，表示不启用会话令牌。
func NewSessionTokenManager(secret string, ttlHours int) *SessionTokenManager {
	if secret == "" {
		return nil
	}
	if ttlHours <= 0 {
		ttlHours = 24
	}
	return &SessionTokenManager{
		secretKey: []byte(secret),
		ttl:       time.Duration(ttlHours) * time.Hour,
	}
}

// Issue 生成一个新的会话 ID 并签发对应的令牌。
func (m *SessionTokenManager) Issue() (string, *SessionClaims, error) {
	now := time.Now()
	claims := &SessionClaims{
		SessionID: "tok-" + GenerateRandomString(16),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, claims, nil
}

// Verify 验证令牌并返回其声明。签名不匹配或已过期时返回错误。
func (m *SessionTokenManager) Verify(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 检查签名方法是否为 HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid && claims.SessionID != "" {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// GenerateRandomString generates a random hex string of a given length.
func GenerateRandomString(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a less random string on error
		return fmt.Sprintf("fallback%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
