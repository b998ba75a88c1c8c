package sso

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/platinummonkey/tenantgate/pkg/config"
)

const (
	defaultProviderCacheSize = 128
	defaultProviderCacheTTL  = 10 * time.Minute
)

// ProviderFactory builds gosaml2 service providers from tenant configurations.
// Built providers are cached by configuration id and version, so an update to a
// configuration is picked up on its next use.
type ProviderFactory struct {
	settings config.SAMLConfig
	cache    *lru.LRU[string, *saml2.SAMLServiceProvider]
}

// NewProviderFactory creates a factory for the service provider settings
func NewProviderFactory(settings config.SAMLConfig) *ProviderFactory {
	size := settings.ProviderCacheSize
	if size <= 0 {
		size = defaultProviderCacheSize
	}
	ttl := settings.ProviderCacheTTL
	if ttl <= 0 {
		ttl = defaultProviderCacheTTL
	}

	return &ProviderFactory{
		settings: settings,
		cache:    lru.NewLRU[string, *saml2.SAMLServiceProvider](size, nil, ttl),
	}
}

func cacheKey(cfg *SAMLConfiguration) string {
	return cfg.ID + ":" + strconv.Itoa(cfg.Version)
}

// Provider returns the service provider for cfg
func (f *ProviderFactory) Provider(cfg *SAMLConfiguration) (*saml2.SAMLServiceProvider, error) {
	key := cacheKey(cfg)
	if sp, ok := f.cache.Get(key); ok {
		return sp, nil
	}

	sp, err := f.build(cfg)
	if err != nil {
		return nil, err
	}
	f.cache.Add(key, sp)
	return sp, nil
}

// Len returns the number of cached providers
func (f *ProviderFactory) Len() int {
	return f.cache.Len()
}

func (f *ProviderFactory) build(cfg *SAMLConfiguration) (*saml2.SAMLServiceProvider, error) {
	if cfg.EntryPoint == "" {
		return nil, errors.New("entry point is required")
	}
	cert, err := ParseCertificate(cfg.Certificate)
	if err != nil {
		return nil, err
	}

	audience := f.settings.AudienceURI
	if audience == "" {
		audience = f.settings.ServiceProviderIssuer
	}

	return &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      cfg.EntryPoint,
		ServiceProviderIssuer:       f.settings.ServiceProviderIssuer,
		AssertionConsumerServiceURL: f.settings.ACSURL,
		AudienceURI:                 audience,
		IDPCertificateStore: &dsig.MemoryX509CertificateStore{
			Roots: []*x509.Certificate{cert},
		},
	}, nil
}

// ParseCertificate accepts a PEM certificate or the bare base64 DER body that
// identity providers usually show in their admin consoles.
func ParseCertificate(raw string) (*x509.Certificate, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("certificate is required")
	}

	var der []byte
	if block, _ := pem.Decode([]byte(raw)); block != nil {
		der = block.Bytes
	} else {
		body := strings.Join(strings.Fields(raw), "")
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode certificate: %w", err)
		}
		der = decoded
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}
