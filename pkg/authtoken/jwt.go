package authtoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// 令牌由身份服务签发（HS256，sub 为用户 UUID），这里只负责校验并取出 owner。
// Generate 用于本地开发和测试签发令牌。

var (
	ErrTokenInvalid = errors.New("令牌无效")
	ErrOwnerInvalid = errors.New("令牌中的用户标识无效")
)

// Claims 自定义 JWT 负载
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// OwnerID 返回规范化后的用户 UUID
func (c *Claims) OwnerID() (string, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return "", ErrOwnerInvalid
	}
	return id.String(), nil
}

// Generate 为 ownerID 签发令牌，ttl <= 0 时默认 24 小时
func Generate(secret, issuer, ownerID string, ttl time.Duration) (string, error) {
	id, err := uuid.Parse(ownerID)
	if err != nil {
		return "", ErrOwnerInvalid
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.String(),
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Parse 解析并验证令牌，issuer 为空时不校验签发方
func Parse(secret, issuer, tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
