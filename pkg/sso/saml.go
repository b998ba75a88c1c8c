package sso

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	saml2 "github.com/russellhaering/gosaml2"

	"github.com/platinummonkey/tenantgate/pkg/auth"
)

// AssertionValidator verifies an encoded SAMLResponse against a provider
type AssertionValidator interface {
	Validate(ctx context.Context, sp *saml2.SAMLServiceProvider, cfg *SAMLConfiguration, samlResponse string) (*Assertion, error)
}

// Gosaml2Validator verifies signatures, conditions and audience with gosaml2
type Gosaml2Validator struct{}

// NewGosaml2Validator creates a validator
func NewGosaml2Validator() *Gosaml2Validator {
	return &Gosaml2Validator{}
}

// Validate implements AssertionValidator. samlResponse is the base64 form value.
func (v *Gosaml2Validator) Validate(_ context.Context, sp *saml2.SAMLServiceProvider, cfg *SAMLConfiguration, samlResponse string) (*Assertion, error) {
	if samlResponse == "" {
		return nil, errors.New("missing SAMLResponse")
	}

	info, err := sp.RetrieveAssertionInfo(samlResponse)
	if err != nil {
		return nil, fmt.Errorf("failed to validate assertion: %w", err)
	}

	if info.WarningInfo != nil {
		if info.WarningInfo.InvalidTime {
			return nil, errors.New("assertion has invalid time")
		}
		if info.WarningInfo.NotInAudience {
			return nil, errors.New("assertion not in expected audience")
		}
	}

	attrs := make(map[string][]string, len(info.Values))
	for _, attr := range info.Values {
		for _, v := range attr.Values {
			attrs[attr.Name] = append(attrs[attr.Name], v.Value)
		}
	}

	return mapAssertion(info.NameID, attrs, cfg.FieldsMapping), nil
}

// mapAssertion resolves the email and copies custom name attributes onto the
// standard OIDs the authentication service reads.
func mapAssertion(nameID string, attrs map[string][]string, mapping FieldsMapping) *Assertion {
	a := &Assertion{NameID: nameID, Attributes: attrs}

	emailAttr := mapping.Email
	if emailAttr == "" {
		emailAttr = "email"
	}
	if values := attrs[emailAttr]; len(values) > 0 {
		a.Email = strings.TrimSpace(values[0])
	}
	if a.Email == "" {
		a.Email = strings.TrimSpace(nameID)
	}

	for oid, name := range map[string]string{
		auth.OIDFirstName: mapping.FirstName,
		auth.OIDLastName:  mapping.LastName,
	} {
		if name == "" || len(attrs[oid]) > 0 {
			continue
		}
		if values, ok := attrs[name]; ok {
			attrs[oid] = values
		}
	}
	return a
}

// Metadata renders the service provider metadata for sp
func Metadata(sp *saml2.SAMLServiceProvider) ([]byte, error) {
	descriptor, err := sp.Metadata()
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata: %w", err)
	}

	out, err := xml.MarshalIndent(descriptor, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
