package sso

import "time"

// FieldsMapping names the assertion attributes that carry profile fields when the
// identity provider does not use the standard OIDs.
type FieldsMapping struct {
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// SAMLConfiguration is a tenant's identity provider
type SAMLConfiguration struct {
	ID            string        `json:"id"`
	TenantID      string        `json:"tenantId"`
	EntryPoint    string        `json:"entryPoint"`
	Certificate   string        `json:"certificate"`
	Enabled       bool          `json:"enabled"`
	FieldsMapping FieldsMapping `json:"fieldsMapping"`
	Version       int           `json:"version"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Assertion is the verified content of an identity provider response
type Assertion struct {
	NameID     string
	Email      string
	Attributes map[string][]string
}

// InitiateRequest starts a login for the ambient tenant
type InitiateRequest struct {
	RedirectURL         string `json:"redirectUrl"`
	SAMLConfigurationID string `json:"samlConfigurationId"`
}

// SetupRequest creates or replaces the tenant's SAML configuration. ID and Version
// are set when replacing.
type SetupRequest struct {
	ID            string        `json:"id,omitempty"`
	Version       int           `json:"version,omitempty"`
	EntryPoint    string        `json:"entryPoint"`
	Certificate   string        `json:"certificate"`
	FieldsMapping FieldsMapping `json:"fieldsMapping"`
	Enabled       bool          `json:"enabled"`
}

// SetupResponse acknowledges a stored configuration
type SetupResponse struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
	Message string `json:"message"`
}
