package adapter

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"govaffairs-crawler/internal/normalize"
	"govaffairs-crawler/internal/storage"
)

// Navigation captions that are never search results.
var navigationTitles = []string{"首页", "返回", "上一页", "下一页", "更多", "导航"}

var hrefBlacklist = []string{"javascript", "#", "mailto"}

// parseDocument decodes content from the given page encoding and parses it.
// It returns nil when the page cannot be parsed.
func parseDocument(content []byte, encoding string) *goquery.Document {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil
	}

	reader, err := charset.NewReaderLabel(encoding, bytes.NewReader(content))
	if err != nil {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil
	}
	return doc
}

// linkTitle prefers the title attribute, which government sites use for
// the untruncated caption, over the visible text.
func linkTitle(link *goquery.Selection) string {
	if title, ok := link.Attr("title"); ok && strings.TrimSpace(title) != "" {
		return normalize.CleanTitle(title)
	}
	return normalize.CleanTitle(link.Text())
}

func isBlacklistedHref(href string) bool {
	lower := strings.ToLower(href)
	for _, keyword := range hrefBlacklist {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

func isNavigationTitle(title string, extra ...string) bool {
	for _, keyword := range navigationTitles {
		if strings.Contains(title, keyword) {
			return true
		}
	}
	for _, keyword := range extra {
		if strings.Contains(title, keyword) {
			return true
		}
	}
	return false
}

func longEnough(title string, minRunes int) bool {
	return title != "" && utf8.RuneCountInString(title) >= minRunes
}

// dedupe drops repeated (title, url) pairs, keeping the first.
func dedupe(records []storage.Record) []storage.Record {
	seen := make(map[[2]string]bool, len(records))
	unique := make([]storage.Record, 0, len(records))
	for _, r := range records {
		key := [2]string{r.Title, r.URL}
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, r)
	}
	return unique
}

// setPageParam replaces the value of the first matching query parameter in
// base, or appends the first name when none is present.
func setPageParam(base string, names []string, value int) string {
	for _, name := range names {
		re := regexp.MustCompile(`([?&])` + regexp.QuoteMeta(name) + `=\d*`)
		if re.MatchString(base) {
			return re.ReplaceAllString(base, fmt.Sprintf("${1}%s=%d", name, value))
		}
	}

	separator := "?"
	if strings.Contains(base, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s%s=%d", base, separator, names[0], value)
}
