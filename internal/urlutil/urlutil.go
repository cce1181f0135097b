// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

// Package urlutil canonicalises saved URLs so that trivially different forms
// of the same link dedupe to a single SharedContent row.
package urlutil

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/keepstack/keepstack/internal/errs"
	"github.com/keepstack/keepstack/internal/models"
)

// trackingParams are stripped during normalization. Any other query
// parameter is kept, since it may be load-bearing (video ids, post ids).
var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"ref":          {},
	"fbclid":       {},
	"gclid":        {},
	"mc_cid":       {},
	"mc_eid":       {},
}

// Normalize canonicalises a URL:
//
//   - scheme forced to https
//   - host lowercased, leading "www." stripped
//   - tracking query parameters removed, remaining params kept in their
//     original order
//   - fragment dropped
//   - trailing slash on the path dropped
//
// Inputs without a scheme get https prepended before parsing. Returns a
// Validation error for unparseable or hostless input.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errs.E(errs.Validation, "url is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", errs.Wrap(errs.Validation, "invalid url", err)
	}
	if u.Host == "" {
		return "", errs.E(errs.Validation, "url has no host")
	}

	u.Scheme = "https"
	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	u.Host = host

	if u.RawQuery != "" {
		kept := make([]string, 0, 4)
		for _, pair := range strings.Split(u.RawQuery, "&") {
			if pair == "" {
				continue
			}
			key := pair
			if i := strings.IndexByte(pair, '='); i >= 0 {
				key = pair[:i]
			}
			if _, tracked := trackingParams[strings.ToLower(key)]; tracked {
				continue
			}
			kept = append(kept, pair)
		}
		u.RawQuery = strings.Join(kept, "&")
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")

	return u.String(), nil
}

// Hash returns the hex SHA-256 of a normalized URL. Callers must pass the
// output of Normalize; hashing a raw URL would defeat deduplication.
func Hash(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// DetectPlatform classifies a normalized URL by host.
func DetectPlatform(normalized string) models.SourcePlatform {
	u, err := url.Parse(normalized)
	if err != nil {
		return models.PlatformUnknown
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch {
	case host == "instagram.com" || strings.HasSuffix(host, ".instagram.com"):
		return models.PlatformInstagram
	case host == "youtube.com" || strings.HasSuffix(host, ".youtube.com"),
		host == "youtu.be":
		return models.PlatformYouTube
	default:
		return models.PlatformUnknown
	}
}
