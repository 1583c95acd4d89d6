// Package adapter holds the per-site logic of the crawler: how records are
// read out of a search-result page and how the next page's URL is built.
//
// Adapters are pure. They never touch the network or the store, keep no
// state between calls and can be shared by concurrent traversals.
package adapter

import "govaffairs-crawler/internal/storage"

type Adapter interface {
	// Identity is the site-type key the adapter is registered under.
	Identity() string

	// BaseURL is the site root used to resolve relative links.
	BaseURL() string

	// Extract returns the candidate records of one page in document order.
	// Malformed or empty content yields an empty slice, never an error.
	Extract(content []byte) []storage.Record

	// NextPageURL returns the URL of page currentPage+1 for the search
	// rooted at baseURL, or false when no further page is expected.
	NextPageURL(baseURL string, currentPage int) (string, bool)
}

// HeaderProvider is implemented by adapters whose site expects extra
// request headers on every page fetch.
type HeaderProvider interface {
	Headers() map[string]string
}

// Factory creates an adapter instance.
type Factory func() Adapter
