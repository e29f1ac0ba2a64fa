package models

import (
	"time"

	"github.com/google/uuid"
)

// Property is one vendor feed entry normalized into the internal shape.
// Reference is the vendor's business key; storage uniqueness is keyed on it,
// never on the row id.
type Property struct {
	ID             uuid.UUID `json:"id" db:"id"`
	Reference      string    `json:"reference" db:"reference"`
	ListingType    string    `json:"listingType" db:"listing_type"` // Sale, Rent
	PropertyType   string    `json:"propertyType" db:"property_type"`
	Community      string    `json:"community" db:"community"`
	SubCommunity   string    `json:"subCommunity" db:"sub_community"`
	Region         string    `json:"region" db:"region"`
	Country        string    `json:"country" db:"country"`
	Price          int       `json:"price" db:"price"`
	Currency       string    `json:"currency" db:"currency"`
	Bedrooms       *int      `json:"bedrooms" db:"bedrooms"`
	Bathrooms      *int      `json:"bathrooms" db:"bathrooms"`
	PropertyStatus string    `json:"propertyStatus" db:"property_status"` // Ready, Off Plan
	Title          string    `json:"title" db:"title"`
	Description    string    `json:"description" db:"description"`
	SqfeetArea     *int      `json:"sqfeetArea" db:"sqfeet_area"`
	SqfeetBuiltup  *int      `json:"sqfeetBuiltup" db:"sqfeet_builtup"`
	Amenities      string    `json:"amenities" db:"amenities"`
	IsFitted       bool      `json:"isFitted" db:"is_fitted"`
	IsFurnished    bool      `json:"isFurnished" db:"is_furnished"`
	Images         []string  `json:"images" db:"images"`
	Agent          []Agent   `json:"agent" db:"agent"` // one element, or nil when the feed has none
	Development    *string   `json:"development" db:"development"`
	Neighbourhood  *string   `json:"neighbourhood" db:"neighbourhood"`
	Sold           bool      `json:"sold" db:"sold"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Agent is the listing contact carried inside a feed entry.
type Agent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Media represents one property image queued for mirroring
type Media struct {
	ID            uuid.UUID `json:"id" db:"id"`
	Reference     string    `json:"reference" db:"reference"`
	OriginalURL   string    `json:"original_url" db:"original_url"`
	S3Key         *string   `json:"s3_key" db:"s3_key"` // nullable until uploaded
	ContentHash   string    `json:"content_hash" db:"content_hash"`
	MimeType      string    `json:"mime_type" db:"mime_type"`
	FileSizeBytes *int64    `json:"file_size_bytes" db:"file_size_bytes"`
	Status        string    `json:"status" db:"status"` // pending, uploading, uploaded, failed
	Attempts      int       `json:"attempts" db:"attempts"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Media status
const (
	MediaStatusPending   = "pending"
	MediaStatusUploading = "uploading"
	MediaStatusUploaded  = "uploaded"
	MediaStatusFailed    = "failed"
)

// Listing type
const (
	ListingTypeSale = "Sale"
	ListingTypeRent = "Rent"
)

// Property status
const (
	PropertyStatusReady   = "Ready"
	PropertyStatusOffPlan = "Off Plan"
)
