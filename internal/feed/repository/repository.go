// Package repository provides read-only access to the scraped inventory feed.
// The feed table is owned by the external scraper ETL; the engine never
// mutates it.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dealersync_backend/platform/apperr"
)

// PhotoSlotCount is the number of photo URL slots a feed row carries.
const PhotoSlotCount = 15

// Row is one scraped record per vehicle in the inventory feed.
type Row struct {
	LicensePlate string
	Availability string
	Make         string
	Model        string
	// PhotoURLs holds slots 1-15 at indexes 0-14. Slots 1-8 are filled by the
	// placeholder pipeline; only slots 9-15 carry vehicle-specific photos.
	PhotoURLs [PhotoSlotCount]string
	ScrapedAt time.Time
}

// Reader provides read operations over the feed table.
type Reader interface {
	GetByPlate(ctx context.Context, plate string) (Row, error)
	ListPlatesAfter(ctx context.Context, afterPlate string, limit int) ([]string, error)
	ListPlatesMatching(ctx context.Context, patterns []string) ([]string, error)
	Count(ctx context.Context) (int, error)
	CountMatching(ctx context.Context, patterns []string) (int, error)
	LastScrapedAt(ctx context.Context) (time.Time, error)
}

const rowColumns = `license_plate, availability, make, model,
		photo_url_1, photo_url_2, photo_url_3, photo_url_4, photo_url_5,
		photo_url_6, photo_url_7, photo_url_8, photo_url_9, photo_url_10,
		photo_url_11, photo_url_12, photo_url_13, photo_url_14, photo_url_15,
		scraped_at`

// Repo implements Reader with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new feed repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Reader.
var _ Reader = (*Repo)(nil)

// GetByPlate retrieves the latest feed row for a license plate.
func (r *Repo) GetByPlate(ctx context.Context, plate string) (Row, error) {
	query := `
		SELECT ` + rowColumns + `
		FROM feed_vehicles
		WHERE license_plate = $1`

	row, err := scanRow(r.pool.QueryRow(ctx, query, plate))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Row{}, apperr.NotFound("feed row not found")
		}
		return Row{}, fmt.Errorf("get feed row: %w", err)
	}
	return row, nil
}

// ListPlatesAfter returns up to limit plates greater than afterPlate, in
// ascending order. Used by sweeps to page through the feed with a cursor
// instead of loading the whole table.
func (r *Repo) ListPlatesAfter(ctx context.Context, afterPlate string, limit int) ([]string, error) {
	query := `
		SELECT license_plate
		FROM feed_vehicles
		WHERE license_plate > $1
		ORDER BY license_plate ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, afterPlate, limit)
	if err != nil {
		return nil, fmt.Errorf("list feed plates: %w", err)
	}
	defer rows.Close()

	return scanPlates(rows)
}

// ListPlatesMatching returns the plates whose availability label matches any
// of the ILIKE patterns. Patterns come from the availability dictionary; this
// repository does not interpret labels itself.
func (r *Repo) ListPlatesMatching(ctx context.Context, patterns []string) ([]string, error) {
	query := `
		SELECT license_plate
		FROM feed_vehicles
		WHERE availability ILIKE ANY($1)
		ORDER BY license_plate ASC`

	rows, err := r.pool.Query(ctx, query, patterns)
	if err != nil {
		return nil, fmt.Errorf("list feed plates matching: %w", err)
	}
	defer rows.Close()

	return scanPlates(rows)
}

// Count returns the total number of feed rows.
func (r *Repo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM feed_vehicles`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count feed rows: %w", err)
	}
	return count, nil
}

// CountMatching returns the number of feed rows whose availability label
// matches any of the ILIKE patterns.
func (r *Repo) CountMatching(ctx context.Context, patterns []string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM feed_vehicles WHERE availability ILIKE ANY($1)`, patterns,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count feed rows matching: %w", err)
	}
	return count, nil
}

// LastScrapedAt returns the timestamp of the most recent scrape, used for
// feed freshness reporting. Returns the zero time for an empty feed.
func (r *Repo) LastScrapedAt(ctx context.Context) (time.Time, error) {
	var last *time.Time
	if err := r.pool.QueryRow(ctx, `SELECT MAX(scraped_at) FROM feed_vehicles`).Scan(&last); err != nil {
		return time.Time{}, fmt.Errorf("last scraped at: %w", err)
	}
	if last == nil {
		return time.Time{}, nil
	}
	return *last, nil
}

func scanRow(row pgx.Row) (Row, error) {
	var fr Row
	var availability, brand, model *string
	var urls [PhotoSlotCount]*string

	err := row.Scan(
		&fr.LicensePlate, &availability, &brand, &model,
		&urls[0], &urls[1], &urls[2], &urls[3], &urls[4],
		&urls[5], &urls[6], &urls[7], &urls[8], &urls[9],
		&urls[10], &urls[11], &urls[12], &urls[13], &urls[14],
		&fr.ScrapedAt,
	)
	if err != nil {
		return Row{}, err
	}

	fr.Availability = deref(availability)
	fr.Make = deref(brand)
	fr.Model = deref(model)
	for i, url := range urls {
		fr.PhotoURLs[i] = deref(url)
	}
	return fr, nil
}

func scanPlates(rows pgx.Rows) ([]string, error) {
	var plates []string
	for rows.Next() {
		var plate string
		if err := rows.Scan(&plate); err != nil {
			return nil, fmt.Errorf("scan feed plate: %w", err)
		}
		plates = append(plates, plate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feed plates: %w", err)
	}
	return plates, nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
