// Package identity resolves raw request credentials into a Principal. The
// isolation core trusts nothing beyond this output contract: any missing or
// malformed claim resolves to "no access", never to an implicit default.
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/clinicore/clinic-platform/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrNoCredentials is returned when the request carries no bearer token
	ErrNoCredentials = errors.New("no credentials presented")

	// ErrInvalidToken is returned for malformed, expired or mis-signed tokens
	ErrInvalidToken = errors.New("invalid token")
)

// Resolver parses platform-issued JWTs into Principals
type Resolver struct {
	secret []byte
	issuer string
}

// NewResolver creates a resolver for tokens signed with the given secret
func NewResolver(secret, issuer string) *Resolver {
	return &Resolver{secret: []byte(secret), issuer: issuer}
}

// Resolve extracts and validates the bearer token from the request and
// returns the Principal it describes.
func (r *Resolver) Resolve(req *http.Request) (*models.Principal, error) {
	header := req.Header.Get("Authorization")
	if header == "" {
		return nil, ErrNoCredentials
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, ErrNoCredentials
	}
	return r.ResolveToken(token)
}

// ResolveToken validates a raw token string and builds the Principal
func (r *Resolver) ResolveToken(raw string) (*models.Principal, error) {
	claims := &models.JWTClaims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return r.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role", ErrInvalidToken)
	}
	// Only the platform role may omit a tenant claim.
	if claims.Role != models.RoleSuperAdmin && claims.TenantID == nil {
		return nil, fmt.Errorf("%w: missing tenant claim", ErrInvalidToken)
	}

	return &models.Principal{
		UserID:          claims.UserID,
		Role:            claims.Role,
		TenantID:        claims.TenantID,
		CompanyID:       claims.CompanyID,
		PrimaryBranchID: claims.PrimaryBranchID,
	}, nil
}
