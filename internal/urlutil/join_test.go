package urlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinPath(t *testing.T) {
	tests := []struct {
		name  string
		base  string
		elems []string
		want  string
	}{
		{"dev provider endpoint", "http://localhost:8080/dev-idp", []string{"/token"}, "http://localhost:8080/dev-idp/token"},
		{"base with trailing slash", "http://localhost:8080/dev-idp/", []string{"/authorize"}, "http://localhost:8080/dev-idp/authorize"},
		{"host only", "https://app.example.com", []string{"auth", "callback"}, "https://app.example.com/auth/callback"},
		{"trailing slash kept", "https://app.example.com", []string{"dev-idp/"}, "https://app.example.com/dev-idp/"},
		{"no elements", "https://app.example.com", nil, "https://app.example.com"},
		{"query preserved", "https://id.example.com/base?tenant=a", []string{"userinfo"}, "https://id.example.com/base/userinfo?tenant=a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JoinPath(tt.base, tt.elems...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJoinPath_InvalidBase(t *testing.T) {
	_, err := JoinPath("://missing-scheme", "token")
	assert.Error(t, err)
}
