// Package token 提供了用于签发和验证语音会话票据 (JWT) 的功能。
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrTicketUsed 表示票据已经被使用过一次。
var ErrTicketUsed = errors.New("voice ticket already used")

// VoiceTicketManager 负责签发和验证一次性的语音会话票据。
type VoiceTicketManager struct {
	secretKey []byte        // secretKey 用于签名和验证 token 的密钥
	ticketDur time.Duration // ticketDur 定义了票据的有效期
}

// TicketClaims 是语音票据携带的数据。ID (jti) 用于保证票据只能使用一次。
type TicketClaims struct {
	Model string `json:"model"`
	jwt.RegisteredClaims
}

// NewVoiceTicketManager 创建一个新的 VoiceTicketManager 实例。
// expireMinutes 小于等于 0 时使用 10 分钟。
func NewVoiceTicketManager(secret string, expireMinutes int) *VoiceTicketManager {
	if expireMinutes <= 0 {
		expireMinutes = 10
	}
	return &VoiceTicketManager{
		secretKey: []byte(secret),
		ticketDur: time.Duration(expireMinutes) * time.Minute,
	}
}

// TTL 返回票据的有效期。
func (m *VoiceTicketManager) TTL() time.Duration {
	return m.ticketDur
}

// GenerateTicket 为指定模型签发一个新票据。
func (m *VoiceTicketManager) GenerateTicket(model string) (string, *TicketClaims, error) {
	now := time.Now()
	claims := &TicketClaims{
		Model: model,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ticketDur)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// VerifyTicket 验证票据的签名与有效期，成功时返回 claims。
func (m *VoiceTicketManager) VerifyTicket(tokenString string) (*TicketClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TicketClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 检查签名方法是否为 HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*TicketClaims); ok && token.Valid && claims.ID != "" {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
