package adapter

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"govaffairs-crawler/internal/normalize"
	"govaffairs-crawler/internal/storage"
)

const ExampleOtherSiteType = "example_other_site"

var exampleArticlePatterns = []string{"/article/", "/news/", "/detail/", ".html"}

// ExampleOtherSite is the template for GBK-encoded portals that list
// results in generic containers and paginate with a zero-based page or p
// parameter.
type ExampleOtherSite struct{}

func NewExampleOtherSite() *ExampleOtherSite {
	return &ExampleOtherSite{}
}

func (a *ExampleOtherSite) Identity() string { return ExampleOtherSiteType }

func (a *ExampleOtherSite) BaseURL() string { return "https://example.gov.cn" }

func (a *ExampleOtherSite) Extract(content []byte) []storage.Record {
	doc := parseDocument(content, "gbk")
	if doc == nil {
		return []storage.Record{}
	}

	var results []storage.Record
	add := func(link *goquery.Selection) {
		href, _ := link.Attr("href")
		title := linkTitle(link)
		if !a.isResultLink(title, href) {
			return
		}
		results = append(results, storage.Record{
			Title: title,
			URL:   normalize.ResolveURL(a.BaseURL(), href),
		})
	}

	doc.Find(".result-item, .search-result, .content-item").Each(func(i int, container *goquery.Selection) {
		if link := container.Find("a[href]").First(); link.Length() > 0 {
			add(link)
		}
	})

	if len(results) == 0 {
		doc.Find("a[href]").Each(func(i int, link *goquery.Selection) {
			add(link)
		})
	}

	return dedupe(results)
}

func (a *ExampleOtherSite) isResultLink(title, href string) bool {
	if !longEnough(title, 5) {
		return false
	}
	if isBlacklistedHref(href) || isNavigationTitle(title) {
		return false
	}
	for _, pattern := range exampleArticlePatterns {
		if strings.Contains(href, pattern) {
			return true
		}
	}
	return false
}

// Headers makes page requests look like the site's own XHR search calls.
func (a *ExampleOtherSite) Headers() map[string]string {
	return map[string]string{
		"Referer":          a.BaseURL(),
		"X-Requested-With": "XMLHttpRequest",
	}
}

// NextPageURL has no upper bound; the traversal page cap applies.
func (a *ExampleOtherSite) NextPageURL(baseURL string, currentPage int) (string, bool) {
	return setPageParam(baseURL, []string{"page", "p"}, currentPage), true
}
