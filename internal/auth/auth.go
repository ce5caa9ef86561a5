package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/tbuckley/go-chat-gateway/internal/types"
)

// ErrUnauthorized is returned for any credential that does not resolve to a
// user identity: malformed, expired, or signed with the wrong key.
var ErrUnauthorized = errors.New("unauthorized")

const (
	userIdClaim = "user-id"
	expClaim    = "exp"
)

// SessionVerifier resolves a bearer credential to a user identity.
type SessionVerifier interface {
	Verify(token string) (types.User, error)
}

// SessionManager additionally issues credentials, used by the login surface.
type SessionManager interface {
	SessionVerifier
	Issue(user types.User, exp time.Duration) (string, error)
}

// JWTSessions issues and verifies HS256 session tokens.
type JWTSessions struct {
	signingKey []byte
}

func NewJWTSessions(signingKey []byte) *JWTSessions {
	return &JWTSessions{signingKey: signingKey}
}

func (j *JWTSessions) Issue(user types.User, exp time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: user.Id,
		expClaim:    time.Now().Add(exp).Unix(),
	})

	return token.SignedString(j.signingKey)
}

func (j *JWTSessions) Verify(tokenString string) (types.User, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.signingKey, nil
	})
	if err != nil {
		return types.User{}, fmt.Errorf("%w: parse token: %v", ErrUnauthorized, err)
	}

	if !token.Valid {
		return types.User{}, fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return types.User{}, fmt.Errorf("%w: invalid token claims", ErrUnauthorized)
	}

	userId, ok := claims[userIdClaim].(string)
	if !ok || userId == "" {
		return types.User{}, fmt.Errorf("%w: invalid user id claim", ErrUnauthorized)
	}

	return types.User{Id: userId}, nil
}
