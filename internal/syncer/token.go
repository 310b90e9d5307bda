package syncer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DeviceClaims 设备令牌声明
type DeviceClaims struct {
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

// TokenSource 签发 HS256 设备令牌，过期前复用
type TokenSource struct {
	secret   []byte
	deviceID string
	chwID    string
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewTokenSource 创建令牌源；secret 为空时返回 nil（不发送 Authorization）
func NewTokenSource(secret, deviceID, chwID string, ttl time.Duration) *TokenSource {
	if secret == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenSource{
		secret:   []byte(secret),
		deviceID: deviceID,
		chwID:    chwID,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Token 返回有效令牌（剩余有效期不足 1 分钟时重新签发）
func (s *TokenSource) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != "" && now.Add(time.Minute).Before(s.expires) {
		return s.token, nil
	}

	expires := now.Add(s.ttl)
	claims := DeviceClaims{
		DeviceID: s.deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.chwID,
			Issuer:    "afya-device",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign device token: %w", err)
	}

	s.token = signed
	s.expires = expires
	return signed, nil
}

// ParseDeviceToken 校验并解析设备令牌（后端或测试使用）
func ParseDeviceToken(tokenString, secret string) (*DeviceClaims, error) {
	claims := &DeviceClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid device token")
	}
	return claims, nil
}
