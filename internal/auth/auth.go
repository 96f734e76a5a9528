package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"arena-quiz-service/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const hostContextKey = "host"

// ErrInvalidToken is returned for missing, expired or forged tokens.
var ErrInvalidToken = errors.New("invalid token")

// Claims carried by host tokens.
type Claims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Admin  bool   `json:"admin"`
	jwt.RegisteredClaims
}

// Authenticator issues and validates HS256 host tokens.
type Authenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewAuthenticator(secret, issuer string) (*Authenticator, error) {
	if secret == "" {
		return nil, fmt.Errorf("auth: jwt secret is required")
	}
	return &Authenticator{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Issue signs a token for host that expires after ttl.
func (a *Authenticator) Issue(host domain.Host, ttl time.Duration) (string, error) {
	now := a.now()
	claims := &Claims{
		UserID: host.UserID,
		Name:   host.DisplayName,
		Admin:  host.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   host.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Validate parses a token and returns the host it identifies.
func (a *Authenticator) Validate(raw string) (domain.Host, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return domain.Host{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return domain.Host{}, ErrInvalidToken
	}
	return domain.Host{UserID: claims.UserID, DisplayName: claims.Name, IsAdmin: claims.Admin}, nil
}

// Middleware rejects requests without a valid bearer token and stores the host in
// the gin context.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		host, err := a.Validate(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(hostContextKey, host)
		c.Next()
	}
}

// HostFromContext returns the host stored by Middleware.
func HostFromContext(c *gin.Context) (domain.Host, bool) {
	v, ok := c.Get(hostContextKey)
	if !ok {
		return domain.Host{}, false
	}
	host, ok := v.(domain.Host)
	return host, ok
}
