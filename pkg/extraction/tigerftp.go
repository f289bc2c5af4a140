// Copyright 2025 Shadow Atlas Project
//
// TIGER/Line FTP archive extraction provider. Census ships some layers
// (most notably voting-district/ward shapefiles for states that bundle
// every incorporated place's wards into a single statewide ZIP) as one
// archive covering many cities at once. This provider downloads the
// archive once, converts its shapefile to boundary records, and splits
// the result by city so the rest of the pipeline still sees one
// (state, layer, city) unit of work per place, keyed by the place's
// 7-digit FIPS code.

package extraction

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/shadowatlas/atlas/pkg/boundary"
)

// TIGERFTPProvider downloads a statewide TIGER/Line archive and splits
// its contents by city. CityFIPSField and WardField name the shapefile
// attributes (surfaced to this provider via AttributeFunc, since the
// bare .shp reader in this package has no paired .dbf parser) holding
// the place FIPS and the raw ward label respectively.
type TIGERFTPProvider struct {
	ArchiveURL    string
	BoundaryType  boundary.Type
	Authority     boundary.AuthorityLevel
	ExpectedCount int
	HTTPClient    *http.Client

	// AttributeFunc returns the (cityFIPS, wardLabel) pair for the i'th
	// record in file order. TIGER/Line ward shapefiles carry this in
	// their companion .dbf, which this package does not parse; callers
	// wire this from whatever .dbf reader they have on hand.
	AttributeFunc func(i int) (cityFIPS, wardLabel string)
}

// SourceKind implements Provider.
func (p *TIGERFTPProvider) SourceKind() boundary.SourceKind { return boundary.SourceTIGERFTP }

func (p *TIGERFTPProvider) httpClient() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return http.DefaultClient
}

// CityResult is one city's share of a split statewide archive, keyed
// by the city's 7-digit place FIPS code with wards renumbered to a
// sequential 1..N range in label order.
type CityResult struct {
	CityFIPS   string
	Boundaries []*boundary.Boundary
}

// Extract implements Provider. It returns every ward across the whole
// archive in Result.Boundaries (for callers that only want a flat
// list) and additionally exposes the per-city split via ExtractByCity,
// which the batch orchestrator calls when it needs one task per place.
func (p *TIGERFTPProvider) Extract(ctx context.Context, state, layer string) (*Result, error) {
	cities, retrievedAt, err := p.extractCities(ctx)
	if err != nil {
		return &Result{State: state, Layer: layer, Success: false, Err: err}, err
	}

	var all []*boundary.Boundary
	for _, c := range cities {
		all = append(all, c.Boundaries...)
	}
	attachProvenance(all, p.SourceKind(), p.ArchiveURL, retrievedAt, p.Authority)

	return &Result{
		State: state, Layer: layer,
		Boundaries: all, FeatureCount: len(all), ExpectedCount: p.ExpectedCount, Success: true,
	}, nil
}

// ExtractByCity downloads and parses the archive exactly once, then
// returns one CityResult per distinct city FIPS found, each with its
// wards renumbered to sequential integers.
func (p *TIGERFTPProvider) ExtractByCity(ctx context.Context) ([]CityResult, error) {
	cities, retrievedAt, err := p.extractCities(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range cities {
		attachProvenance(c.Boundaries, p.SourceKind(), p.ArchiveURL, retrievedAt, p.Authority)
	}
	return cities, nil
}

func (p *TIGERFTPProvider) extractCities(ctx context.Context) ([]CityResult, time.Time, error) {
	retrievedAt := time.Now()

	shpBytes, err := p.downloadAndUnzip(ctx)
	if err != nil {
		return nil, retrievedAt, err
	}

	polys, err := parseShapefilePolygons(shpBytes)
	if err != nil {
		return nil, retrievedAt, fmt.Errorf("extraction: parse tiger archive shapefile: %w", err)
	}
	if p.AttributeFunc == nil {
		return nil, retrievedAt, fmt.Errorf("extraction: TIGERFTPProvider requires AttributeFunc to recover city/ward attributes")
	}

	byCity := map[string][]wardRecord{}
	for i, poly := range polys {
		cityFIPS, wardLabel := p.AttributeFunc(i)
		if cityFIPS == "" {
			continue
		}
		byCity[cityFIPS] = append(byCity[cityFIPS], wardRecord{poly: poly, label: wardLabel})
	}

	var results []CityResult
	for cityFIPS, records := range byCity {
		results = append(results, CityResult{
			CityFIPS:   cityFIPS,
			Boundaries: renumberWards(cityFIPS, p.BoundaryType, records),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CityFIPS < results[j].CityFIPS })
	return results, retrievedAt, nil
}

type wardRecord struct {
	poly  boundary.Polygon
	label string
}

var wardNumberPattern = regexp.MustCompile(`\d+`)

// renumberWards sorts a city's wards by their original label's numeric
// value (falling back to lexical order for non-numeric labels) and
// assigns sequential integers 1..N, since TIGER ward labels are not
// guaranteed contiguous or zero-based across every place.
func renumberWards(cityFIPS string, bt boundary.Type, records []wardRecord) []*boundary.Boundary {
	sort.SliceStable(records, func(i, j int) bool {
		ni, oki := extractWardNumber(records[i].label)
		nj, okj := extractWardNumber(records[j].label)
		if oki && okj {
			return ni < nj
		}
		return records[i].label < records[j].label
	})

	out := make([]*boundary.Boundary, 0, len(records))
	for i, r := range records {
		seq := i + 1
		poly := r.poly
		geom := boundary.Geometry{Polygon: &poly}
		bbox, err := boundary.RecomputeBBox(geom)
		if err != nil {
			continue
		}
		geoid := fmt.Sprintf("%s-ward-%02d", cityFIPS, seq)
		out = append(out, &boundary.Boundary{
			ID:               "tiger_ftp:" + geoid,
			Type:             bt,
			JurisdictionFIPS: geoid,
			Geometry:         geom,
			BBox:             bbox,
			Provenance: boundary.Provenance{
				RawAttributes: map[string]string{
					"city_fips":      cityFIPS,
					"original_label": r.label,
					"sequence":       strconv.Itoa(seq),
				},
			},
		})
	}
	return out
}

func extractWardNumber(label string) (int, bool) {
	m := wardNumberPattern.FindString(label)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// downloadAndUnzip fetches the archive and returns the bytes of the
// first .shp member found inside it.
func (p *TIGERFTPProvider) downloadAndUnzip(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.ArchiveURL, nil)
	if err != nil {
		return nil, fmt.Errorf("extraction: build tiger request: %w", err)
	}
	req.Header.Set("User-Agent", "shadow-atlas/1.0 (+https://shadowatlas.example)")

	resp, err := p.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction: download tiger archive: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction: tiger archive %s returned status %d", p.ArchiveURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("extraction: read tiger archive body: %w", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("extraction: open tiger archive zip: %w", err)
	}
	for _, f := range zr.File {
		if len(f.Name) > 4 && f.Name[len(f.Name)-4:] == ".shp" {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("extraction: open %s in archive: %w", f.Name, err)
			}
			defer rc.Close()
			data, err := io.ReadAll(rc)
			if err != nil {
				return nil, fmt.Errorf("extraction: read %s in archive: %w", f.Name, err)
			}
			return data, nil
		}
	}
	return nil, fmt.Errorf("extraction: no .shp file found in tiger archive %s", p.ArchiveURL)
}
