package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"bearer wins", map[string]string{"Authorization": "Bearer bearer-token ", "X-Worker-Token": "header-token"}, "bearer-token"},
		{"lowercase scheme", map[string]string{"Authorization": "bearer abc"}, "abc"},
		{"fallback header", map[string]string{"X-Worker-Token": " header-token "}, "header-token"},
		{"basic auth ignored", map[string]string{"Authorization": "Basic dXNlcjpwYXNz"}, ""},
		{"nothing", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "http://vodpipe.test/internal", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ExtractToken(r, "X-Worker-Token"))
		})
	}
}

func TestAuthorizeToken(t *testing.T) {
	assert.True(t, AuthorizeToken("secret", "secret"))
	assert.False(t, AuthorizeToken("secret", "other"))
	assert.False(t, AuthorizeToken("", "secret"))
	assert.False(t, AuthorizeToken("", ""))
	assert.False(t, AuthorizeToken("x", "  "))
}
