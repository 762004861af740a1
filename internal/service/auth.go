package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ecofood/foodshare/internal/model"
)

var ErrInvalidToken = errors.New("invalid token")

// actorClaims is the token the identity service issues: the account ID in
// "sub" and the account role in "role".
type actorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService checks bearer tokens issued by the identity service. It never
// sees credentials.
type AuthService struct {
	jwtSecret []byte
}

func NewAuthService(jwtSecret string) *AuthService {
	return &AuthService{jwtSecret: []byte(jwtSecret)}
}

// GenerateJWT signs a token for actor. Only development tooling and tests
// mint tokens; production tokens come from the identity service.
func (s *AuthService) GenerateJWT(actor model.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := actorClaims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *AuthService) VerifyJWT(tokenString string) (model.Actor, error) {
	claims := &actorClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return model.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return model.Actor{}, ErrInvalidToken
	}

	if claims.Subject == "" || !model.ValidRole(claims.Role) {
		return model.Actor{}, fmt.Errorf("%w: missing subject or role", ErrInvalidToken)
	}
	return model.Actor{ID: claims.Subject, Role: claims.Role}, nil
}
