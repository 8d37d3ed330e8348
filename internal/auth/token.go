// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package auth checks shared-secret credentials on internal endpoints.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// ExtractToken returns the credential of r:
// 1. Authorization: Bearer <token>
// 2. the fallback header, when set
func ExtractToken(r *http.Request, fallbackHeader string) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if fallbackHeader != "" {
		return strings.TrimSpace(r.Header.Get(fallbackHeader))
	}
	return ""
}

// AuthorizeToken reports whether got matches expected in constant time.
// Empty tokens never match.
func AuthorizeToken(got, expected string) bool {
	if strings.TrimSpace(expected) == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}
