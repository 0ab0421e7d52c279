package database

import (
	"database/sql"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"homematch/server/internal/models"
)

type Database struct {
	db *sql.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys
	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// GetListing returns a single listing by ID. Listings are owned by the
// search side of the platform; this layer only ever reads them.
func (d *Database) GetListing(id int64) (*models.Listing, error) {
	query := `
        SELECT
            id,
            url,
            street,
            neighborhood,
            city,
            postal_code,
            price,
            monthly_rent,
            currency,
            status,
            COALESCE(listing_date, '') as listing_date,
            COALESCE(created_at, CURRENT_TIMESTAMP) as created_at
        FROM listings
        WHERE id = ?
    `

	var l models.Listing
	var street, neighborhood, city, postalCode, currency, status sql.NullString
	var listingDate, createdAt sql.NullString
	var price, monthlyRent sql.NullInt64

	err := d.db.QueryRow(query, id).Scan(
		&l.ID,
		&l.URL,
		&street,
		&neighborhood,
		&city,
		&postalCode,
		&price,
		&monthlyRent,
		&currency,
		&status,
		&listingDate,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	// Handle nullable string fields
	if street.Valid {
		l.Street = street.String
	}
	if neighborhood.Valid {
		l.Neighborhood = neighborhood.String
	}
	if city.Valid {
		l.City = city.String
	}
	if postalCode.Valid {
		l.PostalCode = postalCode.String
	}
	if currency.Valid {
		l.Currency = currency.String
	}
	if status.Valid {
		l.Status = status.String
	}

	// Handle nullable numeric fields
	if price.Valid {
		l.Price = int(price.Int64)
	}
	if monthlyRent.Valid {
		l.MonthlyRent = int(monthlyRent.Int64)
	}

	// Parse dates if they're valid
	if listingDate.Valid && listingDate.String != "" {
		if t, err := time.Parse("2006-01-02", listingDate.String); err == nil {
			l.ListingDate = t
		}
	}
	if createdAt.Valid && createdAt.String != "" {
		if t, err := time.Parse(time.RFC3339, createdAt.String); err == nil {
			l.CreatedAt = t
		}
	}

	return &l, nil
}

// GetAllListings returns the active listings, optionally filtered by city.
func (d *Database) GetAllListings(city string) ([]models.Listing, error) {
	query := `
        SELECT
            id,
            url,
            street,
            neighborhood,
            city,
            postal_code,
            price,
            monthly_rent,
            currency,
            status,
            COALESCE(listing_date, '') as listing_date,
            COALESCE(created_at, CURRENT_TIMESTAMP) as created_at
        FROM listings
        WHERE status = 'active'
        AND (? = '' OR LOWER(city) = LOWER(?))
    `

	rows, err := d.db.Query(query, city, city)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		var l models.Listing
		var street, neighborhood, cityCol, postalCode, currency, status sql.NullString
		var listingDate, createdAt sql.NullString
		var price, monthlyRent sql.NullInt64

		err := rows.Scan(
			&l.ID,
			&l.URL,
			&street,
			&neighborhood,
			&cityCol,
			&postalCode,
			&price,
			&monthlyRent,
			&currency,
			&status,
			&listingDate,
			&createdAt,
		)
		if err != nil {
			return nil, err
		}

		if street.Valid {
			l.Street = street.String
		}
		if neighborhood.Valid {
			l.Neighborhood = neighborhood.String
		}
		if cityCol.Valid {
			l.City = cityCol.String
		}
		if postalCode.Valid {
			l.PostalCode = postalCode.String
		}
		if currency.Valid {
			l.Currency = currency.String
		}
		if status.Valid {
			l.Status = status.String
		}
		if price.Valid {
			l.Price = int(price.Int64)
		}
		if monthlyRent.Valid {
			l.MonthlyRent = int(monthlyRent.Int64)
		}
		if listingDate.Valid && listingDate.String != "" {
			if t, err := time.Parse("2006-01-02", listingDate.String); err == nil {
				l.ListingDate = t
			}
		}
		if createdAt.Valid && createdAt.String != "" {
			if t, err := time.Parse(time.RFC3339, createdAt.String); err == nil {
				l.CreatedAt = t
			}
		}

		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// GetAnnualAppreciationRate estimates yearly price appreciation for a city
// from the recorded listing history. Falls back to zero when there is not
// enough history to compare.
func (d *Database) GetAnnualAppreciationRate(city string) (float64, error) {
	query := `
        WITH yearly AS (
            SELECT
                CAST(strftime('%Y', listing_date) AS INTEGER) as year,
                AVG(price) as avg_price
            FROM listings
            WHERE price > 0
            AND listing_date IS NOT NULL
            AND (? = '' OR LOWER(city) = LOWER(?))
            GROUP BY strftime('%Y', listing_date)
        )
        SELECT
            COALESCE(MIN(year), 0),
            COALESCE(MAX(year), 0),
            COALESCE((SELECT avg_price FROM yearly ORDER BY year ASC LIMIT 1), 0),
            COALESCE((SELECT avg_price FROM yearly ORDER BY year DESC LIMIT 1), 0)
        FROM yearly
    `

	var firstYear, lastYear int
	var firstPrice, lastPrice float64
	err := d.db.QueryRow(query, city, city).Scan(&firstYear, &lastYear, &firstPrice, &lastPrice)
	if err != nil {
		return 0, err
	}

	years := lastYear - firstYear
	if years <= 0 || firstPrice <= 0 {
		return 0, nil
	}

	// Geometric mean of the total growth over the observed span.
	return math.Pow(lastPrice/firstPrice, 1/float64(years)) - 1, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) GetDB() *sql.DB {
	return d.db
}
