package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MaxListingPayloadBytes caps the size of a listing's JSON payload.
const MaxListingPayloadBytes = 64 * 1024

// Listing is a free-form property record (address, price, rooms, amenities …)
// stored as a JSON object attached to one collection.
type Listing struct {
	ID           uuid.UUID       `json:"id"`
	CollectionID uuid.UUID       `json:"collection_id"`
	Payload      json.RawMessage `json:"payload"`
	CreatedBy    uuid.UUID       `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// SharedListing is the sanitized listing view served for share links.
type SharedListing struct {
	ID        uuid.UUID       `json:"id"`
	Payload   json.RawMessage `json:"payload"`
	PhotoURLs []string        `json:"photo_urls,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ListingPhoto is an S3-backed photo attached to a listing.
type ListingPhoto struct {
	ID          uuid.UUID `json:"id"`
	ListingID   uuid.UUID `json:"listing_id"`
	ObjectKey   string    `json:"object_key"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}
