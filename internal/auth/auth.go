package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates bearer tokens on the assessment front door. Tokens are
// HS256, signed with a shared secret, and must carry the dispatch scope to
// call mutating endpoints.
type Verifier struct {
	secret        []byte
	requiredScope string
}

func NewVerifier(secret, requiredScope string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("auth secret required")
	}
	return &Verifier{secret: []byte(secret), requiredScope: requiredScope}, nil
}

// VerifyRequest checks the Authorization header. It returns nil only for a
// valid, in-scope token.
func (v *Verifier) VerifyRequest(r *http.Request) error {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return errors.New("bearer token required")
	}
	tokenStr := strings.TrimPrefix(header, "Bearer ")

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return fmt.Errorf("token parse error: %w", err)
	}
	if !token.Valid {
		return errors.New("invalid token")
	}

	if v.requiredScope == "" {
		return nil
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return errors.New("invalid claims")
	}
	scope, _ := claims["scope"].(string)
	for _, s := range strings.Fields(scope) {
		if s == v.requiredScope {
			return nil
		}
	}
	return errors.New("missing required scope")
}

// Middleware rejects unauthenticated requests with 401.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := v.VerifyRequest(r); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
