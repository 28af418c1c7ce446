package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoToken = errors.New("no token supplied")

// Claims is the identity payload minted by the account service. The
// coordinator only verifies it; issuance lives elsewhere.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates the signature and expiration of a token.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// FromRequest extracts and verifies the token from the Authorization header
// or, for browser WebSocket clients that cannot set headers, from the
// "token" query parameter.
func (v *Verifier) FromRequest(r *http.Request) (*Claims, error) {
	raw := r.Header.Get("Authorization")
	if raw != "" {
		raw = strings.TrimPrefix(raw, "Bearer ")
	} else {
		raw = r.URL.Query().Get("token")
	}
	if raw == "" {
		return nil, ErrNoToken
	}
	return v.Verify(raw)
}

// GenerateToken creates a signed token for a user. Used by tests and local
// tooling; production tokens come from the account service.
func GenerateToken(secret, userID, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "face2face",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
