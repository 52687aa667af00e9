// Package directory implements the ZIP-radius proximity resolver described
// in spec §4.7: a neighbour-zip lookup table, a directory of responder
// endpoints keyed by stripped OID, and the URL/HCID inheritance pass that
// lets a child organisation's entry absorb its parent's responder URLs.
package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/Abstractive-Health/abstractivehealth-hie/internal/model"
)

// Radius is one of the three neighbourhood bands spec §4.7 maintains.
type Radius int

const (
	Radius10  Radius = 10
	Radius30  Radius = 30
	Radius100 Radius = 100
)

func (r Radius) column() string {
	switch r {
	case Radius10:
		return "neighboring_zipcodes_10mi"
	case Radius30:
		return "neighboring_zipcodes_30mi"
	default:
		return "neighboring_zipcodes_100mi"
	}
}

// Resolver answers directory proximity queries against a Postgres-backed
// zipcode_neighbors/directory schema, caching neighbour-zip lookups in
// Redis the way the teacher library's certManager caches a single loaded
// credential per request — here a zip's neighbour set is immutable between
// full refreshes, so it is safe to cache with a bounded TTL.
type Resolver struct {
	db    *sql.DB
	cache *redis.Client
	ttl   time.Duration
}

// NewResolver opens (or reuses) a Postgres connection and wraps it together
// with a Redis cache client used for neighbour-zip lookups.
func NewResolver(db *sql.DB, cache *redis.Client) *Resolver {
	return &Resolver{db: db, cache: cache, ttl: 6 * time.Hour}
}

// Query implements spec §4.7's query operation: union the neighbour-zip
// lists for the given radius across zips, join to active directory entries
// whose ZIP falls in that union, validate each endpoint, and dedupe by OID.
func (r *Resolver) Query(ctx context.Context, zips []string, radius Radius, exclude map[string]bool) ([]model.ResponderEndpoint, error) {
	neighborhood, err := r.neighborhood(ctx, zips, radius)
	if err != nil {
		return nil, fmt.Errorf("resolve neighborhood: %w", err)
	}
	if len(neighborhood) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT oid, name, iti55_responder, iti38_responder, iti39_responder,
		       zipcode, longitude, latitude, address, country_code, part_of,
		       managing_org, status
		FROM directory
		WHERE status = true AND zipcode = ANY($1)`, pq.Array(neighborhood))
	if err != nil {
		return nil, fmt.Errorf("query directory: %w", err)
	}
	defer rows.Close()

	seen := map[string]bool{}
	var endpoints []model.ResponderEndpoint
	for rows.Next() {
		var e model.ResponderEndpoint
		if err := rows.Scan(&e.OID, &e.Name, &e.ITI55Responder, &e.ITI38Responder, &e.ITI39Responder,
			&e.ZipCode, &e.Longitude, &e.Latitude, &e.Address, &e.CountryCode, &e.PartOf,
			&e.ManagingOrg, &e.Status); err != nil {
			return nil, fmt.Errorf("scan directory row: %w", err)
		}
		if !ValidateEndpoint(e, exclude) {
			continue
		}
		if seen[e.OID] {
			continue
		}
		seen[e.OID] = true
		endpoints = append(endpoints, e)
	}
	return endpoints, rows.Err()
}

// ValidateEndpoint implements spec §4.7's validate_endpoint_dict: an
// endpoint is valid only when all three responder URLs begin with
// http/https, status is active, and its name is not in the exclusion set.
func ValidateEndpoint(e model.ResponderEndpoint, exclude map[string]bool) bool {
	if exclude != nil && exclude[e.Name] {
		return false
	}
	return e.Valid()
}

// neighborhood returns the union of neighbouring ZIPs for the given zips at
// radius, consulting the Redis cache first and falling back to Postgres.
func (r *Resolver) neighborhood(ctx context.Context, zips []string, radius Radius) ([]string, error) {
	union := map[string]bool{}
	var misses []string
	for _, z := range zips {
		union[z] = true
		cached, err := r.cacheGet(ctx, radius, z)
		if err == nil {
			for _, n := range cached {
				union[n] = true
			}
			continue
		}
		misses = append(misses, z)
	}
	if len(misses) == 0 {
		return setToSlice(union), nil
	}

	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT zipcode, %s FROM zipcode_neighbors WHERE zipcode = ANY($1)`, radius.column()),
		pq.Array(misses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var zip string
		var neighborsJSON []byte
		if err := rows.Scan(&zip, &neighborsJSON); err != nil {
			return nil, err
		}
		var neighbors []string
		if len(neighborsJSON) > 0 {
			if err := json.Unmarshal(neighborsJSON, &neighbors); err != nil {
				return nil, fmt.Errorf("decode neighbors for %s: %w", zip, err)
			}
		}
		union[zip] = true
		for _, n := range neighbors {
			union[n] = true
		}
		r.cacheSet(ctx, radius, zip, neighbors)
	}
	return setToSlice(union), rows.Err()
}

func (r *Resolver) cacheKey(radius Radius, zip string) string {
	return fmt.Sprintf("directory:neighbors:%d:%s", radius, zip)
}

func (r *Resolver) cacheGet(ctx context.Context, radius Radius, zip string) ([]string, error) {
	if r.cache == nil {
		return nil, redis.Nil
	}
	raw, err := r.cache.Get(ctx, r.cacheKey(radius, zip)).Result()
	if err != nil {
		return nil, err
	}
	var neighbors []string
	if err := json.Unmarshal([]byte(raw), &neighbors); err != nil {
		return nil, err
	}
	return neighbors, nil
}

func (r *Resolver) cacheSet(ctx context.Context, radius Radius, zip string, neighbors []string) {
	if r.cache == nil {
		return
	}
	encoded, err := json.Marshal(neighbors)
	if err != nil {
		return
	}
	r.cache.Set(ctx, r.cacheKey(radius, zip), encoded, r.ttl)
}

func setToSlice(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
