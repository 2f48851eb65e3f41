package credentials

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// ErrEmptyToken 未配置访问令牌
var ErrEmptyToken = errors.New("credentials: access token is empty")

// TokenInfo 令牌的本地解析结果
type TokenInfo struct {
	JWT       bool
	Subject   string
	Issuer    string
	ExpiresAt time.Time // 零值表示无 exp
}

// Expired 判断令牌在 now 时刻是否已过期
func (i TokenInfo) Expired(now time.Time) bool {
	return i.JWT && !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// ExpiresWithin 判断令牌是否会在 d 内过期
func (i TokenInfo) ExpiresWithin(now time.Time, d time.Duration) bool {
	return i.JWT && !i.ExpiresAt.IsZero() && now.Add(d).After(i.ExpiresAt)
}

// Inspect 解析令牌声明。三段式以外的令牌视为不透明令牌，不返回错误。
func Inspect(token string) (TokenInfo, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return TokenInfo{}, ErrEmptyToken
	}
	if strings.Count(token, ".") != 2 {
		return TokenInfo{}, nil
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return TokenInfo{}, err
	}

	info := TokenInfo{JWT: true, Subject: claims.Subject, Issuer: claims.Issuer}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

// Redact 返回可写入日志的令牌摘要
func Redact(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****" + token[len(token)-4:]
}

// Check 记录令牌状态，连接前调用。返回 false 表示令牌已确定不可用。
func Check(token string, now time.Time, logger *zap.Logger) bool {
	if logger == nil {
		logger = zap.NewNop()
	}
	info, err := Inspect(token)
	switch {
	case errors.Is(err, ErrEmptyToken):
		logger.Warn("no access token configured, backend may reject the connection")
		return true
	case err != nil:
		logger.Warn("access token looks like a JWT but could not be parsed",
			zap.String("token", Redact(token)), zap.Error(err))
		return true
	case info.Expired(now):
		logger.Error("access token has expired",
			zap.String("subject", info.Subject),
			zap.Time("expires_at", info.ExpiresAt))
		return false
	case info.ExpiresWithin(now, 24*time.Hour):
		logger.Warn("access token expires soon",
			zap.String("subject", info.Subject),
			zap.Time("expires_at", info.ExpiresAt))
	}
	return true
}
