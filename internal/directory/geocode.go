package directory

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"
)

// Geocoder resolves a ZIP code to a latitude/longitude pair, external to
// this package (an HTTP geocoding provider).
type Geocoder interface {
	Geocode(ctx context.Context, zip string) (lat, lon float64, err error)
}

// AugmentLongLat implements spec §4.7's offline geocode augmentation: every
// zipcode_neighbors row with a null latitude/longitude issues one geocode
// lookup, throttled to 5 requests/second, retrying with backoff on failure;
// each row is committed as soon as it succeeds so an interrupted run can
// resume from where it left off.
func (r *Resolver) AugmentLongLat(ctx context.Context, geocoder Geocoder) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT zipcode FROM zipcode_neighbors WHERE latitude IS NULL OR longitude IS NULL`)
	if err != nil {
		return fmt.Errorf("list ungeocoded zips: %w", err)
	}
	var zips []string
	for rows.Next() {
		var zip string
		if err := rows.Scan(&zip); err != nil {
			rows.Close()
			return fmt.Errorf("scan zip: %w", err)
		}
		zips = append(zips, zip)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	limiter := rate.NewLimiter(rate.Limit(5), 1)
	for _, zip := range zips {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		lat, lon, err := geocodeWithBackoff(ctx, geocoder, zip)
		if err != nil {
			return fmt.Errorf("geocode %s: %w", zip, err)
		}
		if err := r.commitGeocode(ctx, zip, lat, lon); err != nil {
			return fmt.Errorf("persist geocode %s: %w", zip, err)
		}
	}
	return nil
}

func geocodeWithBackoff(ctx context.Context, geocoder Geocoder, zip string) (lat, lon float64, err error) {
	type result struct{ lat, lon float64 }
	op := func() (result, error) {
		lat, lon, err := geocoder.Geocode(ctx, zip)
		if err != nil {
			return result{}, err
		}
		return result{lat, lon}, nil
	}
	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(5))
	if err != nil {
		return 0, 0, err
	}
	return res.lat, res.lon, nil
}

func (r *Resolver) commitGeocode(ctx context.Context, zip string, lat, lon float64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE zipcode_neighbors SET latitude = $1, longitude = $2 WHERE zipcode = $3`,
		lat, lon, zip)
	return err
}
