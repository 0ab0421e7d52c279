package models

import "time"

// Listing is the read-only view of a property listing the transaction core
// consumes. Listings are owned by the search/CRUD side of the platform and
// are never mutated here.
type Listing struct {
	ID           int64     `json:"id"`
	URL          string    `json:"url"`
	Street       string    `json:"street"`
	Neighborhood string    `json:"neighborhood"`
	City         string    `json:"city"`
	PostalCode   string    `json:"postal_code"`
	Price        int       `json:"price"`
	MonthlyRent  int       `json:"monthly_rent"`
	Currency     string    `json:"currency"`
	Status       string    `json:"status"`
	ListingDate  time.Time `json:"listing_date"`
	CreatedAt    time.Time `json:"created_at"`
}
