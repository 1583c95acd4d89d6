package adapter

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"govaffairs-crawler/internal/normalize"
	"govaffairs-crawler/internal/storage"
)

const SichuanFGWType = "sichuan_fgw"

// SichuanFGW reads the site search of the Sichuan Development and Reform
// Commission (fgw.sc.gov.cn).
type SichuanFGW struct{}

func NewSichuanFGW() *SichuanFGW {
	return &SichuanFGW{}
}

func (a *SichuanFGW) Identity() string { return SichuanFGWType }

func (a *SichuanFGW) BaseURL() string { return "https://fgw.sc.gov.cn" }

func (a *SichuanFGW) Extract(content []byte) []storage.Record {
	doc := parseDocument(content, "utf-8")
	if doc == nil {
		return []storage.Record{}
	}

	var results []storage.Record

	doc.Find(".wordGuide").Each(func(i int, item *goquery.Selection) {
		link := item.Find(".bigTit a").First()
		if link.Length() == 0 {
			return
		}
		href, _ := link.Attr("href")
		title := linkTitle(link)
		if title == "" || strings.TrimSpace(href) == "" {
			return
		}
		results = append(results, storage.Record{
			Title: title,
			URL:   normalize.ResolveURL(a.BaseURL(), href),
		})
	})

	// Older result templates have no .wordGuide blocks; fall back to
	// scanning every link that points at an article page.
	if len(results) == 0 {
		doc.Find("a[href]").Each(func(i int, link *goquery.Selection) {
			href, _ := link.Attr("href")
			title := linkTitle(link)
			if !a.isResultLink(title, href) {
				return
			}
			results = append(results, storage.Record{
				Title: title,
				URL:   normalize.ResolveURL(a.BaseURL(), href),
			})
		})
	}

	return dedupe(results)
}

func (a *SichuanFGW) isResultLink(title, href string) bool {
	if !longEnough(title, 10) {
		return false
	}
	if isBlacklistedHref(href) || isNavigationTitle(title, "搜索") {
		return false
	}
	return strings.Contains(href, ".shtml") || strings.Contains(href, "detail")
}

// NextPageURL sets the zero-based pageNum parameter: the second page of a
// search is pageNum=1.
func (a *SichuanFGW) NextPageURL(baseURL string, currentPage int) (string, bool) {
	return setPageParam(baseURL, []string{"pageNum"}, currentPage), true
}
