// Copyright 2025 Shadow Atlas Project
//
// ArcGIS FeatureServer extraction provider: paginates a layer's /query
// endpoint under the server's page-size limit and maps each page's
// features into Boundary records.

package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shadowatlas/atlas/pkg/boundary"
)

// ArcGISProvider extracts a full layer by paging through its
// FeatureServer query endpoint.
type ArcGISProvider struct {
	LayerURL      string // e.g. ".../MapServer/8"
	BoundaryType  boundary.Type
	Authority     boundary.AuthorityLevel
	PageSize      int // default 1000, ArcGIS Server's common maxRecordCount
	ExpectedCount int
	HTTPClient    *http.Client
}

// SourceKind implements Provider.
func (p *ArcGISProvider) SourceKind() boundary.SourceKind { return boundary.SourceArcGISFeatureServer }

func (p *ArcGISProvider) pageSize() int {
	if p.PageSize > 0 {
		return p.PageSize
	}
	return 1000
}

func (p *ArcGISProvider) httpClient() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return http.DefaultClient
}

type arcgisPage struct {
	Features []struct {
		Attributes map[string]interface{} `json:"attributes"`
		Geometry   struct {
			Rings [][][2]float64 `json:"rings"`
		} `json:"geometry"`
	} `json:"features"`
	ExceededTransferLimit bool `json:"exceededTransferLimit"`
}

// Extract implements Provider.
func (p *ArcGISProvider) Extract(ctx context.Context, state, layer string) (*Result, error) {
	var all []*boundary.Boundary
	offset := 0
	retrievedAt := time.Now()

	for {
		page, err := p.fetchPage(ctx, offset)
		if err != nil {
			return &Result{State: state, Layer: layer, Success: false, Err: err}, err
		}

		for _, f := range page.Features {
			geoid, _ := f.Attributes["GEOID"].(string)
			name, _ := f.Attributes["NAME"].(string)
			if geoid == "" {
				continue
			}
			poly := boundary.Polygon{}
			for i, ring := range f.Geometry.Rings {
				r := make(boundary.Ring, 0, len(ring))
				for _, pt := range ring {
					r = append(r, boundary.Point{Lng: pt[0], Lat: pt[1]})
				}
				if i == 0 {
					poly.Exterior = r
				} else {
					poly.Holes = append(poly.Holes, r)
				}
			}
			geom := boundary.Geometry{Polygon: &poly}
			bbox, err := boundary.RecomputeBBox(geom)
			if err != nil {
				continue
			}
			all = append(all, &boundary.Boundary{
				ID:               "arcgis:" + geoid,
				Type:             p.BoundaryType,
				Name:             name,
				JurisdictionFIPS: geoid,
				Geometry:         geom,
				BBox:             bbox,
			})
		}

		if !page.ExceededTransferLimit || len(page.Features) < p.pageSize() {
			break
		}
		offset += p.pageSize()
	}

	attachProvenance(all, p.SourceKind(), p.LayerURL, retrievedAt, p.Authority)

	return &Result{
		State: state, Layer: layer,
		Boundaries:    all,
		FeatureCount:  len(all),
		ExpectedCount: p.ExpectedCount,
		Success:       true,
	}, nil
}

func (p *ArcGISProvider) fetchPage(ctx context.Context, offset int) (*arcgisPage, error) {
	q := url.Values{}
	q.Set("f", "json")
	q.Set("outFields", "*")
	q.Set("returnGeometry", "true")
	q.Set("where", "1=1")
	q.Set("resultOffset", strconv.Itoa(offset))
	q.Set("resultRecordCount", strconv.Itoa(p.pageSize()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.LayerURL+"/query?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("extraction: build request: %w", err)
	}
	req.Header.Set("User-Agent", "shadow-atlas/1.0 (+https://shadowatlas.example)")

	resp, err := p.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction: arcgis query: %w", err)
	}
	defer resp.Body.Close()

	var page arcgisPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("extraction: decode arcgis page: %w", err)
	}
	return &page, nil
}
