// Copyright 2025 Shadow Atlas Project
//
// Discovery engine (C9): probes a closed set of URL patterns per city
// to find a live GIS server, recursively walks ArcGIS folder listings
// to find candidate council-district layers, and scores every layer
// it finds.

package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shadowatlas/atlas/pkg/boundary"
)

const probeTimeout = 5 * time.Second

// urlPatterns is the closed set of server guesses tried per city,
// ordered from most to least specific.
var urlPatterns = []string{
	"https://gis.{slug}.gov/",
	"https://maps.{slug}.gov/",
	"https://gis.{slug}.org/",
	"https://{slug}.maps.arcgis.com/",
}

// Engine runs the discovery sweep: candidate probing, folder
// traversal, layer detail fetch, and scoring.
type Engine struct {
	HTTPClient *http.Client
	Limiter    *RateLimiter
}

// NewEngine builds an Engine with the spec's documented defaults: a
// 5s per-request timeout and a 10 req/s per-server token bucket.
func NewEngine() *Engine {
	return &Engine{
		HTTPClient: &http.Client{Timeout: probeTimeout},
		Limiter:    NewRateLimiter(10),
	}
}

// ProbeCity tries every URL pattern for city and returns the first
// server found healthy, or nil if none responded. Failed probes are
// silent per spec — only the eventual outcome is reported to the
// caller, which is expected to record it via pkg/provenance.
func (e *Engine) ProbeCity(ctx context.Context, city City) *Candidate {
	for _, pattern := range urlPatterns {
		base := strings.ReplaceAll(pattern, "{slug}", city.Slug)
		if c := e.probeBase(ctx, city, base); c != nil {
			return c
		}
	}
	return nil
}

func (e *Engine) probeBase(ctx context.Context, city City, base string) *Candidate {
	u, err := url.Parse(base)
	if err != nil {
		return nil
	}
	serverKey := u.Host

	arcgisURL := strings.TrimRight(base, "/") + "/arcgis/rest/services?f=json"
	e.Limiter.Wait(serverKey)
	if e.probeHealthy(ctx, arcgisURL, isArcGISHealthResponse) {
		return &Candidate{City: city, BaseURL: strings.TrimRight(base, "/") + "/arcgis/rest/services", Kind: "arcgis"}
	}

	geoserverURL := strings.TrimRight(base, "/") + "/geoserver/rest/about/version.json"
	e.Limiter.Wait(serverKey)
	if e.probeHealthy(ctx, geoserverURL, isGeoServerHealthResponse) {
		return &Candidate{City: city, BaseURL: strings.TrimRight(base, "/") + "/geoserver", Kind: "geoserver"}
	}

	return nil
}

// probeHealthy issues a GET to target and reports whether the body
// parses as JSON matching validate. Any error (network, non-2xx,
// unparseable body, schema mismatch) is treated as an unhealthy,
// silent failure.
func (e *Engine) probeHealthy(ctx context.Context, target string, validate func([]byte) bool) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", "shadow-atlas-discovery/1.0")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var buf [65536]byte
	n, _ := resp.Body.Read(buf[:])
	return validate(buf[:n])
}

func isArcGISHealthResponse(body []byte) bool {
	var v struct {
		Folders  []string `json:"folders"`
		Services []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"services"`
	}
	return json.Unmarshal(body, &v) == nil
}

func isGeoServerHealthResponse(body []byte) bool {
	var v struct {
		About struct {
			Resource []struct {
				Name string `json:"@name"`
			} `json:"resource"`
		} `json:"about"`
	}
	return json.Unmarshal(body, &v) == nil
}

// arcgisFolderListing mirrors the JSON an ArcGIS REST "services"
// endpoint (root or folder) returns.
type arcgisFolderListing struct {
	Folders  []string `json:"folders"`
	Services []struct {
		Name string `json:"name"`
		Type string `json:"type"` // "MapServer" / "FeatureServer"
	} `json:"services"`
}

// WalkFolders performs a bounded BFS over an ArcGIS REST services
// tree rooted at baseURL, returning every (MapServer|FeatureServer)
// endpoint found within MaxFolderDepth levels.
func (e *Engine) WalkFolders(ctx context.Context, baseURL string) ([]string, error) {
	type queueItem struct {
		url   string
		depth int
	}
	queue := []queueItem{{url: baseURL, depth: 0}}
	seen := map[string]bool{baseURL: true}
	var serviceURLs []string

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("discovery: parse base url: %w", err)
	}
	serverKey := u.Host

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if item.depth > MaxFolderDepth {
			continue
		}

		e.Limiter.Wait(serverKey)
		listing, err := e.fetchFolderListing(ctx, item.url)
		if err != nil {
			continue // a dead folder node is silent, like a failed probe
		}

		for _, svc := range listing.Services {
			serviceURLs = append(serviceURLs, fmt.Sprintf("%s/%s/%s", item.url, svc.Name, svc.Type))
		}
		for _, folder := range listing.Folders {
			next := item.url + "/" + folder
			if seen[next] {
				continue
			}
			seen[next] = true
			queue = append(queue, queueItem{url: next, depth: item.depth + 1})
		}
	}
	return serviceURLs, nil
}

func (e *Engine) fetchFolderListing(ctx context.Context, folderURL string) (*arcgisFolderListing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, folderURL+"?f=json", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "shadow-atlas-discovery/1.0")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery: folder listing %s returned status %d", folderURL, resp.StatusCode)
	}

	var listing arcgisFolderListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("discovery: decode folder listing: %w", err)
	}
	return &listing, nil
}

// FetchLayerDetails fetches one layer's detail document (id, name,
// geometry type, field schema, extent, feature count) from a
// MapServer/FeatureServer layer URL, e.g. ".../MapServer/3".
func (e *Engine) FetchLayerDetails(ctx context.Context, layerURL string) (*LayerInfo, error) {
	u, err := url.Parse(layerURL)
	if err != nil {
		return nil, fmt.Errorf("discovery: parse layer url: %w", err)
	}
	e.Limiter.Wait(u.Host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, layerURL+"?f=json", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "shadow-atlas-discovery/1.0")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discovery: fetch layer details: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery: layer %s returned status %d", layerURL, resp.StatusCode)
	}

	var detail struct {
		ID         int    `json:"id"`
		Name       string `json:"name"`
		GeomType   string `json:"geometryType"`
		Fields     []struct {
			Name string `json:"name"`
		} `json:"fields"`
		Extent struct {
			XMin float64 `json:"xmin"`
			YMin float64 `json:"ymin"`
			XMax float64 `json:"xmax"`
			YMax float64 `json:"ymax"`
		} `json:"extent"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return nil, fmt.Errorf("discovery: decode layer details: %w", err)
	}

	featureCount, err := e.fetchFeatureCount(ctx, layerURL)
	if err != nil {
		featureCount = 0
	}

	fieldNames := make([]string, 0, len(detail.Fields))
	for _, f := range detail.Fields {
		fieldNames = append(fieldNames, f.Name)
	}

	return &LayerInfo{
		ID:           fmt.Sprintf("%d", detail.ID),
		Name:         detail.Name,
		GeometryType: detail.GeomType,
		Fields:       fieldNames,
		Extent: boundary.BBox{
			MinLng: detail.Extent.XMin,
			MinLat: detail.Extent.YMin,
			MaxLng: detail.Extent.XMax,
			MaxLat: detail.Extent.YMax,
		},
		FeatureCount: featureCount,
		ServiceURL:   layerURL,
	}, nil
}

func (e *Engine) fetchFeatureCount(ctx context.Context, layerURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, layerURL+"/query?where=1=1&returnCountOnly=true&f=json", nil)
	if err != nil {
		return 0, err
	}
	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var v struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return 0, err
	}
	return v.Count, nil
}
