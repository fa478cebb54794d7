package chatbot

import "nadlan-chat-go/pkg/token"

// IdentityVerifier 把 bearer 凭证解码为用户 ID。
type IdentityVerifier interface {
	Verify(credential string) (userID string, err error)
}

type jwtVerifier struct {
	manager *token.JWTManager
}

// NewJWTVerifier 用 JWTManager 构造一个 IdentityVerifier。
func NewJWTVerifier(manager *token.JWTManager) IdentityVerifier {
	return &jwtVerifier{manager: manager}
}

func (v *jwtVerifier) Verify(credential string) (string, error) {
	claims, err := v.manager.VerifyToken(credential)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}
