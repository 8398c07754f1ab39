package utils // package utils provides helpers for issuing and reading session tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in the "role" claim.
const (
	RoleCustomer = "CUSTOMER" // browser session that owns a hold
	RoleSupport  = "SUPPORT"  // staff looking attempts up
)

// SessionToken is a signed JWT binding a browser to its hold session.
type SessionToken struct {
	Token string
	Exp   time.Time
}

// SessionClaims are the claims read back from a session token.
type SessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// NewSessionToken signs an HS256 token whose subject is sessionID.
func NewSessionToken(secret, sessionID, role string, ttl time.Duration) (SessionToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := SessionClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return SessionToken{}, err
	}
	return SessionToken{Token: signed, Exp: exp}, nil
}

// ParseSessionToken validates raw and returns its claims.  Only HMAC
// signatures are accepted, and a token without a subject is rejected.
func ParseSessionToken(secret, raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !tok.Valid || claims.Subject == "" {
		return nil, errors.New("invalid session token")
	}
	return claims, nil
}
