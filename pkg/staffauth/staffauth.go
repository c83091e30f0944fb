package staffauth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultTTL = 12 * time.Hour

type Claims struct {
	jwt.RegisteredClaims

	// Role is "staff" or "supervisor".
	Role string `json:"role"`
}

type Session struct {
	StaffID   string
	Role      string
	ExpiresAt time.Time
}

// Issue signs a session token for staffID valid for ttl.
func Issue(staffID, role, secret string, now time.Time, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("missing session secret")
	}
	if strings.TrimSpace(staffID) == "" {
		return "", fmt.Errorf("missing staff id")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   staffID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Verify validates a staff session token (JWT, HS256) and returns the staff
// identity it carries.
func Verify(tokenString, secret string, now time.Time) (*Session, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("missing token")
	}
	if secret == "" {
		return nil, fmt.Errorf("missing session secret")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	claims := &Claims{}
	tok, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	staffID := strings.TrimSpace(claims.Subject)
	if staffID == "" {
		return nil, fmt.Errorf("missing subject in token")
	}
	role := claims.Role
	if role == "" {
		role = "staff"
	}
	return &Session{
		StaffID:   staffID,
		Role:      role,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
