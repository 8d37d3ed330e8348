// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"net/url"
	"slices"
)

const masked = "***"

func mask(s string) string {
	if s == "" {
		return ""
	}
	return masked
}

// maskDSN hides the password of a URL-style DSN; file paths pass through.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), masked)
	}
	return u.String()
}

// Redacted returns a copy that is safe to print or log.
func (c AppConfig) Redacted() AppConfig {
	out := c
	out.Server.CORSOrigins = slices.Clone(c.Server.CORSOrigins)
	out.HLS.Resolutions = slices.Clone(c.HLS.Resolutions)

	out.Server.WorkerToken = mask(c.Server.WorkerToken)
	out.Redis.Password = mask(c.Redis.Password)
	out.Storage.SecretAccessKey = mask(c.Storage.SecretAccessKey)
	out.Storage.SigningSecret = mask(c.Storage.SigningSecret)
	out.Database.DSN = maskDSN(c.Database.DSN)
	return out
}
