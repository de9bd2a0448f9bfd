// Package catalog reads item metadata and search results from the upstream
// video catalog. Everything the catalog reports is treated as untrusted: any
// numeric field may be zero.
package catalog

import (
	"context"
	"net/url"

	"github.com/dharsanguruparan/ReelDrop/internal/model"
)

// Source resolves one external ID to its metadata and variant list.
type Source interface {
	Lookup(ctx context.Context, externalID string) (*model.CatalogItem, error)
}

// Searcher runs a free-text catalog search.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error)
}

// WatchURL is the public page of an item, used as the plain-link fallback.
func WatchURL(externalID string) string {
	return "https://www.youtube.com/watch?v=" + url.QueryEscape(externalID)
}
