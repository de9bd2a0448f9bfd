// Package model contains simple struct definitions shared across packages.
package model

import (
	"time"
)

// Mode governs how a session's next free-text message is interpreted.
type Mode string

const (
	ModeDefault Mode = "default"
	ModeSearch  Mode = "search"
)

// MediaRecord is one delivered artifact, keyed by the upstream catalog ID.
// A record is only useful while DeliveryURL still points at a live object in
// the transient store.
type MediaRecord struct {
	ExternalID   string    `json:"externalId" dynamodbav:"externalId"`
	Title        string    `json:"title" dynamodbav:"title"`
	DeliveryURL  string    `json:"deliveryUrl" dynamodbav:"deliveryUrl"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty" dynamodbav:"thumbnailUrl"`
	SizeBytes    int64     `json:"sizeBytes" dynamodbav:"sizeBytes"`
	CreatedAt    time.Time `json:"createdAt" dynamodbav:"createdAt"`
}

// MediaVariant is one upstream encoding of a catalog item. Every numeric field
// may be zero when the catalog did not report it.
type MediaVariant struct {
	Container          string `json:"container"`
	EstimatedSizeBytes int64  `json:"estimatedSizeBytes"`
	HeightPx           int    `json:"heightPx"`
	DirectURL          string `json:"-"`
}

// CatalogItem is the metadata the catalog reports for one external ID.
type CatalogItem struct {
	ExternalID   string
	Title        string
	Duration     time.Duration
	ThumbnailURL string
	Variants     []MediaVariant
}

// SearchResult is one entry of a catalog search.
type SearchResult struct {
	ExternalID   string `json:"videoId"`
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail"`
}

// InboundEvent is one messaging event received from the webhook.
type InboundEvent struct {
	SenderID string
	// HasText is false for attachments, stickers and other non-text messages.
	HasText  bool
	Text     string
	Postback *Postback
}

// Postback carries the payload of a tapped template button.
type Postback struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}
