package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrExpired means the token was well-formed and correctly signed but
	// its lifetime has elapsed.
	ErrExpired = errors.New("token expired")
	// ErrInvalid covers every structural or cryptographic mismatch.
	ErrInvalid = errors.New("invalid token")
)

// UserInfo is the identity payload carried by access tokens.
type UserInfo struct {
	Username string `json:"username"`
	Roles    []int  `json:"roles"`
}

type AccessClaims struct {
	UserInfo UserInfo `json:"UserInfo"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Codec signs and verifies one kind of token. Access and refresh tokens use
// two Codec values with independent secrets and lifetimes; a token signed by
// one never validates against the other.
type Codec struct {
	secret []byte
	TTL    time.Duration
}

func New(secret string, ttl time.Duration) Codec {
	return Codec{secret: []byte(secret), TTL: ttl}
}

func (c Codec) registered(now time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.TTL)),
	}
}

func (c Codec) SignAccess(username string, roles []int) (string, error) {
	claims := AccessClaims{
		UserInfo:         UserInfo{Username: username, Roles: roles},
		RegisteredClaims: c.registered(time.Now()),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(c.secret)
}

func (c Codec) SignRefresh(username string) (string, error) {
	claims := RefreshClaims{
		Username:         username,
		RegisteredClaims: c.registered(time.Now()),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(c.secret)
}

func (c Codec) ParseAccess(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.parse(raw, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (c Codec) ParseRefresh(raw string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.parse(raw, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (c Codec) parse(raw string, claims jwt.Claims) error {
	t, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpired
		}
		return ErrInvalid
	}
	if !t.Valid {
		return ErrInvalid
	}
	return nil
}
