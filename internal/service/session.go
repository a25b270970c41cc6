package service

import (
	"context"
	"encoding/hex"
	"errors"

	"costsense-go/internal/model"
	"costsense-go/pkg/log"
	"costsense-go/pkg/token"

	"golang.org/x/crypto/blake2b"
)

// ErrSessionTokensDisabled 表示未配置 session.token_secret。
var ErrSessionTokensDisabled = errors.New("session tokens are not enabled")

// SessionResolver 为请求确定会话 ID。
// 默认由 IP、User-Agent 和 Accept-Language 推导，共享出口的客户端可能落到同一会话；
// 携带有效的会话令牌时使用令牌中的会话 ID。
type SessionResolver struct {
	tokens *token.SessionTokenManager
}

// NewSessionResolver 创建会话解析器，tokens 为 nil 时只使用连接元数据。
func NewSessionResolver(tokens *token.SessionTokenManager) *SessionResolver {
	return &SessionResolver{tokens: tokens}
}

// SessionID 返回请求对应的会话 ID。无效令牌会被忽略。
func (r *SessionResolver) SessionID(client model.ClientInfo) string {
	if client.SessionToken != "" && r.tokens != nil {
		claims, err := r.tokens.Verify(client.SessionToken)
		if err == nil {
			return claims.SessionID
		}
		log.Debugw("Ignoring invalid session token", "error", err)
	}
	sum := blake2b.Sum256([]byte(client.IP + "|" + client.UserAgent + "|" + client.AcceptLanguage))
	return "meta-" + hex.EncodeToString(sum[:16])
}

// Issue 签发新的会话令牌。
func (r *SessionResolver) Issue() (string, *token.SessionClaims, error) {
	if r.tokens == nil {
		return "", nil, ErrSessionTokensDisabled
	}
	return r.tokens.Issue()
}

// TokensEnabled 报告是否可以签发会话令牌。
func (r *SessionResolver) TokensEnabled() bool {
	return r.tokens != nil
}

type requestIDKey struct{}

// WithRequestID 把请求 ID 放入上下文。
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext 取出请求 ID，不存在时返回空字符串。
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
