package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/tenantgate/pkg/apperr"
)

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.True(t, h.Compare(hash, "correct horse"))
	assert.False(t, h.Compare(hash, "battery staple"))
	assert.False(t, h.Compare("not-a-hash", "correct horse"))

	_, err = h.Hash("")
	assert.Error(t, err)

	_, err = h.Hash(strings.Repeat("p", 73))
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestNewBcryptHasherClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(99).cost)
	assert.Equal(t, 12, NewBcryptHasher(12).cost)
}

func TestGenerateNumericCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		code, err := GenerateNumericCode(6)
		require.NoError(t, err)
		assert.Regexp(t, `^[0-9]{6}$`, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1)

	_, err := GenerateNumericCode(0)
	assert.Error(t, err)
}

func TestCodesEqual(t *testing.T) {
	assert.True(t, codesEqual("123456", "123456"))
	assert.False(t, codesEqual("123456", "123457"))
	assert.False(t, codesEqual("123456", "12345"))
	assert.False(t, codesEqual("123456", ""))
}

func TestValidEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"a@b.com", true},
		{" A@B.com ", true},
		{"first.last+tag@sub.example.org", true},
		{"", false},
		{"plain", false},
		{"a@localhost", false},
		{"Ann <a@b.com>", false},
		{"a@b@c.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidEmail(tt.email))
		})
	}
}
