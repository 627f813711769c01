package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"

	"dnshelper/internal/support"
)

const (
	tokenIssuer   = "dnshelper"
	tokenLifetime = 12 * time.Hour
)

var (
	secretOnce sync.Once
	secret     []byte

	ErrInvalidToken = errors.New("auth: invalid token")
)

func signingKey() []byte {
	secretOnce.Do(func() {
		if s := support.GetEnv("JWT_SECRET", ""); s != "" {
			secret = []byte(s)
			return
		}
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic(fmt.Sprintf("auth: generate jwt secret: %v", err))
		}
		log.Warn("JWT_SECRET is not set, tokens will not survive a restart")
	})
	return secret
}

// GenerateJWT issues an HS256 token for subject with the given role.
func GenerateJWT(subject, role string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"iss":  tokenIssuer,
		"iat":  now.Unix(),
		"exp":  now.Add(tokenLifetime).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey())
}

// ValidateJWT checks signature, algorithm, issuer and expiry and returns the claims.
func ValidateJWT(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return signingKey(), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
