package sso

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// RelayState is round-tripped through the identity provider. It crosses a public
// redirect, so a decoded value is untrusted until Validate passes.
type RelayState struct {
	TenantID            string `json:"tenantId"`
	RedirectURL         string `json:"redirectUrl"`
	SAMLConfigurationID string `json:"samlConfigurationId"`
}

// Validate checks every field the assertion consumer relies on
func (rs *RelayState) Validate() error {
	if rs.SAMLConfigurationID == "" {
		return errors.New("samlConfigurationId is required")
	}
	if _, err := uuid.Parse(rs.SAMLConfigurationID); err != nil {
		return fmt.Errorf("samlConfigurationId is not a UUID: %w", err)
	}
	if rs.TenantID == "" {
		return errors.New("tenantId is required")
	}
	if _, err := uuid.Parse(rs.TenantID); err != nil {
		return fmt.Errorf("tenantId is not a UUID: %w", err)
	}
	return ValidateRedirectURL(rs.RedirectURL)
}

// ValidateRedirectURL accepts absolute http and https URLs only
func ValidateRedirectURL(raw string) error {
	if raw == "" {
		return errors.New("redirectUrl is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("redirectUrl is malformed: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("redirectUrl must be an absolute http(s) URL")
	}
	return nil
}

// EncodeRelayState serializes rs as unpadded base64url JSON
func EncodeRelayState(rs RelayState) (string, error) {
	raw, err := json.Marshal(rs)
	if err != nil {
		return "", fmt.Errorf("failed to encode relay state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeRelayState parses a relay state blob. Padded input is accepted; unknown
// JSON fields are rejected. The result still needs Validate.
func DecodeRelayState(blob string) (*RelayState, error) {
	blob = strings.TrimRight(strings.TrimSpace(blob), "=")
	if blob == "" {
		return nil, errors.New("relay state is empty")
	}

	raw, err := base64.RawURLEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("relay state is not base64url: %w", err)
	}

	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	var rs RelayState
	if err := dec.Decode(&rs); err != nil {
		return nil, fmt.Errorf("relay state is not valid JSON: %w", err)
	}
	return &rs, nil
}
