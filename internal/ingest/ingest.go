// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

// Package ingest fetches platform metadata for saved URLs: oEmbed where the
// platform offers it, OpenGraph tags otherwise. Fetch failures are
// retryable; a page without useful metadata is not an error, the pipeline
// falls back to the URL itself.
package ingest

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/keepstack/keepstack/internal/errs"
	"github.com/keepstack/keepstack/internal/logging"
	"github.com/keepstack/keepstack/internal/models"
)

// Metadata is what ingestion learned about a URL. Any field may be nil.
type Metadata struct {
	Title           *string
	Caption         *string
	Description     *string
	ThumbnailURL    *string
	DurationSeconds *int
}

// Fetcher retrieves metadata for one URL.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string

	// oembedEndpoint is the YouTube oEmbed base; overridable in tests.
	oembedEndpoint string
}

// NewFetcher builds a metadata fetcher with sane timeouts.
func NewFetcher() *Fetcher {
	return &Fetcher{
		httpClient:     &http.Client{Timeout: 15 * time.Second},
		userAgent:      "keepstack/1.0 (+https://github.com/keepstack/keepstack)",
		oembedEndpoint: "https://www.youtube.com/oembed",
	}
}

// Fetch dispatches on platform. YouTube uses the documented oEmbed endpoint;
// everything else falls back to OpenGraph scraping.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, platform models.SourcePlatform) (*Metadata, error) {
	switch platform {
	case models.PlatformYouTube:
		meta, err := f.fetchYouTubeOEmbed(ctx, rawURL)
		if err == nil {
			return meta, nil
		}
		logging.Ctx(ctx).Warn().Err(err).Str("url", rawURL).
			Msg("oEmbed fetch failed, falling back to opengraph")
		return f.fetchOpenGraph(ctx, rawURL)
	default:
		return f.fetchOpenGraph(ctx, rawURL)
	}
}

type oembedResponse struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

func (f *Fetcher) fetchYouTubeOEmbed(ctx context.Context, videoURL string) (*Metadata, error) {
	endpoint := f.oembedEndpoint + "?format=json&url=" + url.QueryEscape(videoURL)
	body, err := f.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var resp oembedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errs.Wrap(errs.Unavailable, "malformed oembed response", err)
	}

	meta := &Metadata{}
	if resp.Title != "" {
		meta.Title = &resp.Title
	}
	if resp.ThumbnailURL != "" {
		meta.ThumbnailURL = &resp.ThumbnailURL
	}
	if resp.AuthorName != "" {
		desc := "By " + resp.AuthorName
		meta.Description = &desc
	}
	return meta, nil
}

// OpenGraph meta tags appear with property/content in either attribute
// order; both patterns are tried per property.
var (
	ogPatternA = `<meta[^>]+property=["']%s["'][^>]+content=["']([^"']*)["']`
	ogPatternB = `<meta[^>]+content=["']([^"']*)["'][^>]+property=["']%s["']`
)

func ogTag(html, property string) string {
	for _, pattern := range []string{ogPatternA, ogPatternB} {
		re := regexp.MustCompile(strings.Replace(pattern, "%s", regexp.QuoteMeta(property), 1))
		if m := re.FindStringSubmatch(html); m != nil {
			return htmlUnescape(m[1])
		}
	}
	return ""
}

var htmlEscapes = strings.NewReplacer(
	"&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&#x27;", "'",
)

func htmlUnescape(s string) string {
	return htmlEscapes.Replace(s)
}

func (f *Fetcher) fetchOpenGraph(ctx context.Context, pageURL string) (*Metadata, error) {
	body, err := f.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	html := string(body)

	meta := &Metadata{}
	if title := ogTag(html, "og:title"); title != "" {
		meta.Title = &title
	} else if m := regexp.MustCompile(`<title[^>]*>([^<]+)</title>`).FindStringSubmatch(html); m != nil {
		t := strings.TrimSpace(htmlUnescape(m[1]))
		if t != "" {
			meta.Title = &t
		}
	}
	if desc := ogTag(html, "og:description"); desc != "" {
		meta.Description = &desc
	}
	if thumb := ogTag(html, "og:image"); thumb != "" {
		meta.ThumbnailURL = &thumb
	}
	// Instagram puts the caption into og:description; mirror it so the
	// enrichment text has the richer field populated.
	if meta.Caption == nil && meta.Description != nil &&
		models.PlatformInstagram == platformOf(pageURL) {
		caption := *meta.Description
		meta.Caption = &caption
	}
	return meta, nil
}

func platformOf(pageURL string) models.SourcePlatform {
	u, err := url.Parse(pageURL)
	if err != nil {
		return models.PlatformUnknown
	}
	if strings.Contains(u.Hostname(), "instagram.com") {
		return models.PlatformInstagram
	}
	return models.PlatformUnknown
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Validation, "invalid fetch url", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "metadata fetch failed", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errs.E(errs.RateLimited, "platform rate limited metadata fetch")
	}
	if resp.StatusCode >= 400 {
		return nil, errs.Ef(errs.Unavailable, "metadata fetch returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "metadata read failed", err)
	}
	return body, nil
}
