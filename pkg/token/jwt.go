package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/platinummonkey/tenantgate/pkg/apperr"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Tokens is a signed access and refresh token pair
type Tokens struct {
	JWTToken     string `json:"jwtToken"`
	RefreshToken string `json:"refreshToken"`
}

// AccessClaims are the verified claims of an access token. Exactly one of the
// tenant shapes is populated, depending on the builder that produced the payload.
type AccessClaims struct {
	jwt.RegisteredClaims
	Type      string         `json:"typ"`
	Email     string         `json:"email"`
	FirstName string         `json:"firstName"`
	LastName  string         `json:"lastName"`
	TenantID  string         `json:"tenantId,omitempty"`
	Roles     []TypedRoleRef `json:"roles,omitempty"`
	Tenants   []TenantRef    `json:"tenants,omitempty"`
}

// HasTenantData reports whether the token lists tenant memberships
func (c *AccessClaims) HasTenantData() bool {
	return c.TenantID != "" || c.Tenants != nil
}

// BelongsTo reports whether the token lists a membership in tenantID
func (c *AccessClaims) BelongsTo(tenantID string) bool {
	if c.TenantID != "" {
		return c.TenantID == tenantID
	}
	for _, t := range c.Tenants {
		if t.TenantID == tenantID {
			return true
		}
	}
	return false
}

// RefreshClaims are the verified claims of a refresh token
type RefreshClaims struct {
	jwt.RegisteredClaims
	Type  string `json:"typ"`
	Email string `json:"email"`
}

// Service signs and verifies tokens
type Service interface {
	Sign(payload TokensPayload) (*Tokens, error)
	SignAccess(payload AccessPayload) (string, error)
	VerifyAccess(tokenString string) (*AccessClaims, error)
	VerifyRefresh(tokenString string) (*RefreshClaims, error)
}

// JWTConfig configures JWTService
type JWTConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// JWTService signs HS256 tokens
type JWTService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewJWTService creates a signer
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 characters")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	return &JWTService{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}, nil
}

func (s *JWTService) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := s.now()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

// Sign signs both tokens of payload
func (s *JWTService) Sign(payload TokensPayload) (*Tokens, error) {
	access, err := s.SignAccess(payload.Access)
	if err != nil {
		return nil, err
	}

	refresh, err := jwt.NewWithClaims(jwt.SigningMethodHS256, RefreshClaims{
		RegisteredClaims: s.registered(payload.Refresh.Sub, s.refreshTTL),
		Type:             tokenTypeRefresh,
		Email:            payload.Refresh.Email,
	}).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &Tokens{JWTToken: access, RefreshToken: refresh}, nil
}

// SignAccess signs an access token for payload
func (s *JWTService) SignAccess(payload AccessPayload) (string, error) {
	if payload == nil {
		return "", errors.New("access payload is required")
	}

	base := payload.Base()
	claims := AccessClaims{
		RegisteredClaims: s.registered(base.Sub, s.accessTTL),
		Type:             tokenTypeAccess,
		Email:            base.Email,
		FirstName:        base.FirstName,
		LastName:         base.LastName,
	}

	switch p := payload.(type) {
	case SingleTenantPayload:
		claims.TenantID = p.TenantID
		claims.Roles = make([]TypedRoleRef, len(p.Roles))
		for i, r := range p.Roles {
			claims.Roles[i] = TypedRoleRef{RoleID: r.RoleID}
		}
	case MultiTenantPayload:
		claims.Tenants = p.Tenants
		if claims.Tenants == nil {
			claims.Tenants = []TenantRef{}
		}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// VerifyAccess verifies an access token. Every failure is Unauthorized.
func (s *JWTService) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Type != tokenTypeAccess {
		return nil, apperr.Unauthorized(domain, apperr.CodeInvalidToken, "not an access token")
	}
	return claims, nil
}

// VerifyRefresh verifies a refresh token. Every failure is Unauthorized.
func (s *JWTService) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Type != tokenTypeRefresh {
		return nil, apperr.Unauthorized(domain, apperr.CodeInvalidToken, "not a refresh token")
	}
	return claims, nil
}

func (s *JWTService) parse(tokenString string, claims jwt.Claims) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return apperr.Unauthorized(domain, apperr.CodeInvalidToken, err.Error())
	}
	return nil
}
