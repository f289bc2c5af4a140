// Copyright 2025 Shadow Atlas Project
//
// TIGERweb REST source: queries the Census Bureau's ArcGIS
// FeatureServer layers by bounding box and maps Esri JSON geometry into
// boundary.Geometry. Grounded on the ArcGIS FeatureServer query-by-envelope
// convention used throughout the discovery/extraction pack examples.

package datasource

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shadowatlas/atlas/pkg/boundary"
)

// TIGERweb queries a single Census TIGERweb FeatureServer layer.
type TIGERweb struct {
	baseURL      string // e.g. "https://tigerweb.geo.census.gov/arcgis/rest/services/TIGERweb/Tracts_Blocks/MapServer/8"
	layerName    string
	boundaryType boundary.Type
	authority    boundary.AuthorityLevel
	client       *retryableClient
}

// NewTIGERweb returns a source bound to one FeatureServer layer URL.
func NewTIGERweb(baseURL, layerName string, bt boundary.Type) *TIGERweb {
	return &TIGERweb{
		baseURL:      baseURL,
		layerName:    layerName,
		boundaryType: bt,
		authority:    boundary.AuthorityFederalTiger,
		client:       newRetryableClient(),
	}
}

// Name implements Source.
func (t *TIGERweb) Name() string { return "tigerweb:" + t.layerName }

type arcgisFeatureResponse struct {
	Features []arcgisFeature `json:"features"`
}

type arcgisFeature struct {
	Attributes map[string]interface{} `json:"attributes"`
	Geometry   struct {
		Rings [][][2]float64 `json:"rings"`
	} `json:"geometry"`
}

// FindByBBox queries the FeatureServer's /query endpoint with an
// envelope geometry filter and maps each returned feature to a Boundary.
func (t *TIGERweb) FindByBBox(ctx context.Context, box boundary.BBox) ([]*boundary.Boundary, error) {
	url := fmt.Sprintf(
		"%s/query?f=json&outFields=*&returnGeometry=true&geometryType=esriGeometryEnvelope&spatialRel=esriSpatialRelIntersects&geometry=%g,%g,%g,%g&inSR=4326",
		t.baseURL, box.MinLng, box.MinLat, box.MaxLng, box.MaxLat,
	)

	body, err := t.client.getJSON(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("tigerweb: %w", err)
	}

	var resp arcgisFeatureResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("tigerweb: decode response: %w", err)
	}

	out := make([]*boundary.Boundary, 0, len(resp.Features))
	for _, f := range resp.Features {
		b, err := t.toBoundary(f)
		if err != nil {
			continue // a single malformed feature shouldn't fail the whole query
		}
		out = append(out, b)
	}
	return out, nil
}

func (t *TIGERweb) toBoundary(f arcgisFeature) (*boundary.Boundary, error) {
	geoid, _ := f.Attributes["GEOID"].(string)
	name, _ := f.Attributes["NAME"].(string)
	if geoid == "" {
		return nil, fmt.Errorf("tigerweb: feature missing GEOID")
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
		return nil, err
	}

	return &boundary.Boundary{
		ID:               "tiger:" + geoid,
		Type:             t.boundaryType,
		Name:             name,
		JurisdictionFIPS: geoid,
		Geometry:         geom,
		BBox:             bbox,
		Provenance: boundary.Provenance{
			SourceKind:     boundary.SourceArcGISFeatureServer,
			SourceURL:      t.baseURL,
			AuthorityLevel: t.authority,
			DataVersion:    "tigerweb-live",
		},
	}, nil
}
