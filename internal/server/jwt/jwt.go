package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "filamentdb"

// ErrEmptySecret возвращается при создании сервиса без секрета
var ErrEmptySecret = errors.New("jwt secret must not be empty")

// Service provides device token generation and validation
type Service struct {
	now    func() time.Time
	secret []byte
	ttl    time.Duration
}

// Claims represents JWT claims of a device token
type Claims struct {
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

// NewService creates a new JWT service.
// ttl = 0 issues tokens without expiry
func NewService(secret string, ttl time.Duration) (*Service, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Service{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue creates a signed HS256 token for the device
func (s *Service) Issue(deviceID string) (string, error) {
	if deviceID == "" {
		return "", fmt.Errorf("device id must not be empty")
	}

	now := s.now()
	claims := Claims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   deviceID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// Validate parses the token and checks signature, algorithm and expiry
func (s *Service) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.DeviceID == "" {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}
