// Copyright 2025 Shadow Atlas Project
//
// Hierarchical resolver (C5): address -> geocode -> candidate filter ->
// PIP -> precision-sorted, cached Resolution[].

package resolver

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shadowatlas/atlas/pkg/boundary"
	"github.com/shadowatlas/atlas/pkg/datasource"
	"github.com/shadowatlas/atlas/pkg/pip"
)

// DefaultConfidenceFloor is the minimum geocode confidence accepted
// before resolution proceeds.
const DefaultConfidenceFloor = 80.0

// Resolution is a single resolved boundary match, per spec.md §4.2.
type Resolution struct {
	BoundaryID  string
	Precision   int
	Confidence  float64
	QueryPoint  boundary.Point
	ResolvedAt  time.Time
	TTLSeconds  int
}

// Resolver ties a geocoder, a set of boundary sources, and a cache
// together into the resolve(address) operation.
type Resolver struct {
	geocoder        Geocoder
	sources         *datasource.Multi
	cache           *Cache
	confidenceFloor float64
	geocoderVersion string
	atlasVersion    uint64
	ttl             time.Duration
	logger          *log.Logger
}

// Option configures a Resolver at construction time.
type Option func(*Resolver)

// WithConfidenceFloor overrides DefaultConfidenceFloor.
func WithConfidenceFloor(floor float64) Option {
	return func(r *Resolver) { r.confidenceFloor = floor }
}

// WithGeocoderVersion tags cache keys with a geocoder version string so
// a geocoder upgrade invalidates stale cache entries.
func WithGeocoderVersion(version string) Option {
	return func(r *Resolver) { r.geocoderVersion = version }
}

// WithAtlasVersion tags cache keys with the currently published atlas
// version epoch.
func WithAtlasVersion(version uint64) Option {
	return func(r *Resolver) { r.atlasVersion = version }
}

// WithLogger overrides the resolver's logger.
func WithLogger(logger *log.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// New constructs a Resolver. cacheCapacity/cacheTTL size the resolution
// cache (spec.md default TTL is 1 year; callers typically source these
// from pkg/config).
func New(geocoder Geocoder, sources *datasource.Multi, cacheCapacity int, cacheTTL time.Duration, opts ...Option) *Resolver {
	r := &Resolver{
		geocoder:        geocoder,
		sources:         sources,
		cache:           NewCache(cacheCapacity, cacheTTL),
		confidenceFloor: DefaultConfidenceFloor,
		ttl:             cacheTTL,
		logger:          log.New(log.Writer(), "[Resolver] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func normalizeAddress(address string) string {
	return strings.TrimSpace(strings.ToLower(address))
}

// CacheHit reports whether address is currently present in the
// resolution cache, without resolving it. The lookup goes through
// Cache.Get, so a live entry is marked most recently used and an
// expired one is evicted. C13's
// serving layer uses this to distinguish a cache hit from a cold
// resolve for its cache_hit_rate metric.
func (r *Resolver) CacheHit(address string, now time.Time) bool {
	key := CacheKey{NormalizedAddress: normalizeAddress(address), GeocoderVersion: r.geocoderVersion, AtlasVersion: r.atlasVersion}
	_, ok := r.cache.Get(key, now)
	return ok
}

// Resolve runs the full resolve(address) pipeline described in
// spec.md §4.5. The first element of the returned slice, if present, is
// the finest-precision valid boundary; see sortResolutions.
func (r *Resolver) Resolve(ctx context.Context, address string, allowedTypes []boundary.Type, now time.Time) ([]Resolution, error) {
	normalized := normalizeAddress(address)
	key := CacheKey{NormalizedAddress: normalized, GeocoderVersion: r.geocoderVersion, AtlasVersion: r.atlasVersion}

	if cached, ok := r.cache.Get(key, now); ok {
		return cached, nil
	}

	geo, err := r.geocoder.Geocode(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeocodeFailed, err)
	}
	if geo.Confidence < r.confidenceFloor {
		return nil, fmt.Errorf("%w: got %.1f, floor %.1f", ErrLowConfidence, geo.Confidence, r.confidenceFloor)
	}

	resolutions, err := r.resolvePoint(ctx, geo, allowedTypes, now)
	if err != nil {
		return nil, err
	}

	r.cache.Put(key, resolutions, now)
	return resolutions, nil
}

// ResolvePoint runs resolve(point) directly against an already-known
// coordinate, skipping the geocoder entirely — spec.md §4.13's
// lookup(point | address) names point resolution as a first-class
// entry, not just an internal step of address resolution. A point
// carries no geocoder confidence of its own, so it is treated as a
// maximum-confidence input, discounted the same way Resolve discounts
// geocode confidence by the boundary's own authority level.
func (r *Resolver) ResolvePoint(ctx context.Context, pt boundary.Point, allowedTypes []boundary.Type, now time.Time) ([]Resolution, error) {
	if !pt.Valid() {
		return nil, fmt.Errorf("resolver: invalid point %+v", pt)
	}

	key := CacheKey{NormalizedAddress: pointCacheKey(pt), GeocoderVersion: r.geocoderVersion, AtlasVersion: r.atlasVersion}
	if cached, ok := r.cache.Get(key, now); ok {
		return cached, nil
	}

	resolutions, err := r.resolvePoint(ctx, GeocodeResult{Point: pt, Confidence: 100}, allowedTypes, now)
	if err != nil {
		return nil, err
	}

	r.cache.Put(key, resolutions, now)
	return resolutions, nil
}

func pointCacheKey(pt boundary.Point) string {
	return fmt.Sprintf("point:%.6f,%.6f", pt.Lat, pt.Lng)
}

// PointCacheHit is CacheHit's point-keyed counterpart for ResolvePoint.
func (r *Resolver) PointCacheHit(pt boundary.Point, now time.Time) bool {
	key := CacheKey{NormalizedAddress: pointCacheKey(pt), GeocoderVersion: r.geocoderVersion, AtlasVersion: r.atlasVersion}
	_, ok := r.cache.Get(key, now)
	return ok
}

// resolvePoint is the shared candidate-filter/PIP/sort pipeline both
// Resolve and ResolvePoint run once they have a concrete point and
// confidence, cache lookup and insertion handled by the caller.
func (r *Resolver) resolvePoint(ctx context.Context, geo GeocodeResult, allowedTypes []boundary.Type, now time.Time) ([]Resolution, error) {
	// A single point's candidate set is never more than a degree or two
	// wide; a tiny envelope around the point is enough for the bbox
	// pre-filter every Source applies internally.
	const probe = 0.01
	box := boundary.BBox{
		MinLng: geo.Point.Lng - probe, MinLat: geo.Point.Lat - probe,
		MaxLng: geo.Point.Lng + probe, MaxLat: geo.Point.Lat + probe,
	}

	candidates, srcErrs := r.sources.FindByBBox(ctx, box)
	if len(candidates) == 0 && len(srcErrs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDataSourceError, srcErrs[0].Error())
	}

	candidates = filterByType(candidates, allowedTypes)
	candidates = filterByValidity(candidates, now)

	matches, err := pip.FindContaining(candidates, geo.Point)
	if err != nil {
		return nil, fmt.Errorf("resolver: pip test: %w", err)
	}
	if len(matches) == 0 {
		return nil, ErrNoBoundaries
	}

	resolutions := buildResolutions(matches, geo, now, int(r.ttl.Seconds()))
	sortResolutions(resolutions, matches)

	return resolutions, nil
}

func filterByType(candidates []*boundary.Boundary, allowed []boundary.Type) []*boundary.Boundary {
	if len(allowed) == 0 {
		return candidates
	}
	set := make(map[boundary.Type]bool, len(allowed))
	for _, t := range allowed {
		set[t] = true
	}
	out := candidates[:0:0]
	for _, c := range candidates {
		if set[c.Type] {
			out = append(out, c)
		}
	}
	return out
}

func filterByValidity(candidates []*boundary.Boundary, now time.Time) []*boundary.Boundary {
	out := candidates[:0:0]
	for _, c := range candidates {
		if c.IsValid(now) {
			out = append(out, c)
		}
	}
	return out
}

// buildResolutions computes confidence = f(geocode confidence, distance
// to boundary): the interior-point assumption means distance is zero for
// a true containment match, so confidence here is the geocode
// confidence discounted slightly by the boundary's own authority level,
// reflecting how much the match should be trusted end to end.
func buildResolutions(matches []*boundary.Boundary, geo GeocodeResult, now time.Time, ttlSeconds int) []Resolution {
	out := make([]Resolution, 0, len(matches))
	for _, m := range matches {
		authorityFactor := 0.9 + 0.02*float64(m.Provenance.AuthorityLevel)
		confidence := math.Min(100, geo.Confidence*authorityFactor)
		out = append(out, Resolution{
			BoundaryID: m.ID,
			Precision:  m.Type.PrecisionRank(),
			Confidence: confidence,
			QueryPoint: geo.Point,
			ResolvedAt: now,
			TTLSeconds: ttlSeconds,
		})
	}
	return out
}

// sortResolutions orders matches (and their parallel Resolution slice)
// by precision rank ascending; ties break by highest authority, then by
// earliest valid_from, per spec.md §4.5.
func sortResolutions(resolutions []Resolution, matches []*boundary.Boundary) {
	idx := make([]int, len(resolutions))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		ma, mb := matches[idx[a]], matches[idx[b]]
		if ma.Type.PrecisionRank() != mb.Type.PrecisionRank() {
			return ma.Type.PrecisionRank() < mb.Type.PrecisionRank()
		}
		if ma.Provenance.AuthorityLevel != mb.Provenance.AuthorityLevel {
			return ma.Provenance.AuthorityLevel > mb.Provenance.AuthorityLevel
		}
		return ma.ValidFrom.Before(mb.ValidFrom)
	})

	sortedRes := make([]Resolution, len(resolutions))
	sortedMatches := make([]*boundary.Boundary, len(matches))
	for newPos, oldPos := range idx {
		sortedRes[newPos] = resolutions[oldPos]
		sortedMatches[newPos] = matches[oldPos]
	}
	copy(resolutions, sortedRes)
	copy(matches, sortedMatches)
}
