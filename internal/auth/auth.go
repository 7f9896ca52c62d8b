package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleOperator = "operator"
	RoleAdmin    = "admin"

	DevPrincipalHeader = "X-Local-Dev-Principal"
	DefaultIssuer      = "leadops"
)

var ErrUnauthenticated = errors.New("authentication required")

type ctxKey string

const ctxKeyPrincipal ctxKey = "leadops.principal"

// Principal is the verified caller attached to the request context.
type Principal struct {
	Subject string
	Roles   []string
}

func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if r == role || r == RoleAdmin {
			return true
		}
	}
	return false
}

func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(ctxKeyPrincipal).(*Principal)
	return p
}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret string
	Issuer string
	// DevAllowLocal trusts DevPrincipalHeader as an operator identity.
	DevAllowLocal bool
}

// Verifier validates HS256 operator tokens.
type Verifier struct {
	secret   []byte
	issuer   string
	devLocal bool
	now      func() time.Time
}

func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.Secret == "" && !cfg.DevAllowLocal {
		return nil, fmt.Errorf("auth secret required unless dev local auth is enabled")
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &Verifier{
		secret:   []byte(cfg.Secret),
		issuer:   issuer,
		devLocal: cfg.DevAllowLocal,
		now:      time.Now,
	}, nil
}

// Issue signs a token for subject; leadctl uses it to mint operator credentials.
func (v *Verifier) Issue(subject string, roles []string, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", fmt.Errorf("auth secret not configured")
	}
	if strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("token subject required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := v.now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func (v *Verifier) Verify(tokenStr string) (*Principal, error) {
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("no signing secret configured")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("token parse error: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return &Principal{Subject: claims.Subject, Roles: claims.Roles}, nil
}

// VerifyRequest resolves the caller from the dev header or a bearer token.
func (v *Verifier) VerifyRequest(r *http.Request) (*Principal, error) {
	if v.devLocal {
		if who := r.Header.Get(DevPrincipalHeader); who != "" {
			return &Principal{Subject: who, Roles: []string{RoleOperator}}, nil
		}
	}
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return nil, ErrUnauthenticated
	}
	return v.Verify(strings.TrimSpace(authz[7:]))
}

// RequireRole rejects requests without a verified principal holding role.
func (v *Verifier) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := v.VerifyRequest(r)
			if err != nil {
				log.Printf("[auth] rejected %s %s: %v", r.Method, r.URL.Path, err)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !p.HasRole(role) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q}`, msg)
}
