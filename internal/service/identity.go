package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"collaborative-whiteboard/internal/domain"
)

// IdentityService 负责签发和解析身份令牌。
// 客户端在任何房间交互之前先换取一次身份令牌（不透明 ID + 显示名），
// 之后建立 WebSocket 连接时出示该令牌，连接期间不再逐条消息校验。
type IdentityService struct {
	secret      []byte
	expiryHours int
}

// NewIdentityService 创建 IdentityService 实例。
func NewIdentityService(secret string, expiryHours int) (*IdentityService, error) {
	if secret == "" {
		return nil, fmt.Errorf("identity token secret cannot be empty")
	}
	if expiryHours <= 0 {
		expiryHours = 24
	}
	return &IdentityService{secret: []byte(secret), expiryHours: expiryHours}, nil
}

// Issue 为给定显示名签发身份令牌。id 为空时由服务端生成。
func (s *IdentityService) Issue(id string, name string) (string, domain.Identity, error) {
	if id == "" {
		id = uuid.NewString()
	}
	identity := domain.Identity{ID: id, Name: name}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  identity.ID,
		"name": identity.Name,
		"iat":  now.Unix(),
		"exp":  now.Add(time.Duration(s.expiryHours) * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", domain.Identity{}, fmt.Errorf("sign identity token: %w", err)
	}
	return signed, identity, nil
}

// Parse 验证令牌并还原其中的身份。
func (s *IdentityService) Parse(tokenStr string) (domain.Identity, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("identity token validation failed: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return domain.Identity{}, fmt.Errorf("invalid identity token claims")
	}
	id, _ := claims["sub"].(string)
	name, _ := claims["name"].(string)
	if id == "" {
		return domain.Identity{}, fmt.Errorf("identity token missing subject")
	}
	return domain.Identity{ID: id, Name: name}, nil
}
