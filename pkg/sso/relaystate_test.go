package sso

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRelayState() RelayState {
	return RelayState{
		TenantID:            testTenantID,
		RedirectURL:         "https://app.example.com/after?tab=1",
		SAMLConfigurationID: testConfigID,
	}
}

func TestRelayState_RoundTrip(t *testing.T) {
	blob, err := EncodeRelayState(validRelayState())
	require.NoError(t, err)
	assert.NotContains(t, blob, "=")

	rs, err := DecodeRelayState(blob)
	require.NoError(t, err)
	require.NoError(t, rs.Validate())
	assert.Equal(t, validRelayState(), *rs)
}

func TestDecodeRelayState_AcceptsPadding(t *testing.T) {
	raw := `{"tenantId":"` + testTenantID + `","redirectUrl":"https://a.example.com","samlConfigurationId":"` + testConfigID + `"}`
	padded := base64.URLEncoding.EncodeToString([]byte(raw))

	rs, err := DecodeRelayState(padded)
	require.NoError(t, err)
	assert.Equal(t, "https://a.example.com", rs.RedirectURL)
}

func TestDecodeRelayState_Rejects(t *testing.T) {
	tests := map[string]string{
		"empty":         "",
		"not base64":    "%%%",
		"not json":      base64.RawURLEncoding.EncodeToString([]byte("hello")),
		"unknown field": base64.RawURLEncoding.EncodeToString([]byte(`{"tenantId":"x","admin":true}`)),
	}
	for name, blob := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeRelayState(blob)
			assert.Error(t, err)
		})
	}
}

func TestRelayState_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RelayState)
	}{
		{"missing configuration id", func(rs *RelayState) { rs.SAMLConfigurationID = "" }},
		{"configuration id not a uuid", func(rs *RelayState) { rs.SAMLConfigurationID = "cfg-1" }},
		{"missing tenant", func(rs *RelayState) { rs.TenantID = "" }},
		{"tenant not a uuid", func(rs *RelayState) { rs.TenantID = "acme" }},
		{"missing redirect", func(rs *RelayState) { rs.RedirectURL = "" }},
		{"relative redirect", func(rs *RelayState) { rs.RedirectURL = "/after" }},
		{"javascript redirect", func(rs *RelayState) { rs.RedirectURL = "javascript:alert(1)" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := validRelayState()
			tt.mutate(&rs)
			assert.Error(t, rs.Validate())
		})
	}
}
