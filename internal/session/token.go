package session

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// TokenProvider derives the session user from HS256 access tokens issued by
// the authentication service. The token carries the user id in "sub" and the
// account role in "role".
type TokenProvider struct {
	*MemoryProvider
	secret []byte
}

func NewTokenProvider(secret string) *TokenProvider {
	return &TokenProvider{
		MemoryProvider: NewMemoryProvider(),
		secret:         []byte(secret),
	}
}

// SetToken verifies the token and signs the embedded user in. An invalid
// token leaves the current session untouched.
func (p *TokenProvider) SetToken(token string) error {
	tok, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return fmt.Errorf("verify token: %w", err)
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return errors.New("verify token: unexpected claims shape")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return errors.New("verify token: missing sub claim")
	}
	role, _ := claims["role"].(string)

	p.SignIn(User{ID: sub, Role: RoleFromString(role)})
	return nil
}

// ClearToken signs the current user out.
func (p *TokenProvider) ClearToken() {
	p.SignOut()
}
