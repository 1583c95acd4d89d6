package normalize

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	tagPattern   = regexp.MustCompile(`<[^>]+>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// NormalizeURL trims surrounding space and drops the fragment.
func NormalizeURL(urlStr string) string {
	urlStr = strings.TrimSpace(urlStr)
	if idx := strings.Index(urlStr, "#"); idx > -1 {
		urlStr = urlStr[:idx]
	}
	return urlStr
}

// ResolveURL turns href into an absolute URL using base as the reference.
// Absolute hrefs are returned unchanged apart from fragment removal.
// An unparseable href is returned trimmed so the caller can still decide
// whether to keep it.
func ResolveURL(base, href string) string {
	href = NormalizeURL(href)
	if href == "" {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.IsAbs() {
		return href
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}

// CleanTitle strips HTML tags, replaces NBSP and collapses whitespace.
func CleanTitle(title string) string {
	if title == "" {
		return ""
	}
	title = tagPattern.ReplaceAllString(title, "")
	title = strings.ReplaceAll(title, "\u00A0", " ")
	title = spacePattern.ReplaceAllString(title, " ")
	return strings.TrimSpace(title)
}

// Truncate shortens s to at most maxRunes runes, adding an ellipsis.
func Truncate(s string, maxRunes int) string {
	runes := []rune(s)
	if maxRunes <= 0 || len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "…"
}
