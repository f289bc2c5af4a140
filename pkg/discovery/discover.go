// Copyright 2025 Shadow Atlas Project
//
// Discover orchestrates one city's full sweep: probe for a live
// server, walk its folder tree, fetch and score every layer found,
// and record every attempt's outcome to the provenance log.

package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shadowatlas/atlas/pkg/provenance"
)

// AgentID identifies this engine's attempts in the provenance log.
const AgentID = "discovery-engine"

// serviceLayerList mirrors the "layers" array an ArcGIS MapServer or
// FeatureServer root document exposes.
type serviceLayerList struct {
	Layers []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"layers"`
}

// Discover runs the full sweep for one city and returns every scored
// layer found at TierNeedsReview or above, sorted by score descending.
// Every probe, folder walk failure, and layer score is recorded to log
// regardless of outcome.
func (e *Engine) Discover(ctx context.Context, log *provenance.Log, city City) ([]ScoredLayer, error) {
	start := time.Now()
	candidate := e.ProbeCity(ctx, city)
	if candidate == nil {
		e.recordNoServerFound(log, city, start)
		return nil, nil
	}

	serviceURLs, err := e.WalkFolders(ctx, candidate.BaseURL)
	if err != nil {
		e.recordBlocker(log, city, "portal-timeout", []string{
			"server found at " + candidate.BaseURL,
			"folder walk failed: " + err.Error(),
		}, start)
		return nil, nil
	}
	if len(serviceURLs) == 0 {
		e.recordBlocker(log, city, "no-council-layer", []string{
			"server found at " + candidate.BaseURL,
			"folder walk returned no services",
		}, start)
		return nil, nil
	}

	var results []ScoredLayer
	scoredCount := 0
	for _, svcURL := range serviceURLs {
		layerURLs, err := e.fetchServiceLayerURLs(ctx, svcURL)
		if err != nil {
			continue // an unreachable service is silent; the walk already logged the server as live
		}
		for _, layerURL := range layerURLs {
			info, err := e.FetchLayerDetails(ctx, layerURL)
			if err != nil {
				continue
			}
			scored := Score(*info, city)
			scoredCount++
			e.recordLayerScore(log, city, candidate, scored, start)
			if scored.Tier != TierRejected {
				results = append(results, scored)
			}
		}
	}

	sortScoredLayersDescending(results)
	if len(results) == 0 {
		e.recordBlocker(log, city, "no-council-layer", []string{
			"server found at " + candidate.BaseURL,
			fmt.Sprintf("scored %d layers across %d services, none above rejection threshold", scoredCount, len(serviceURLs)),
		}, start)
	}
	return results, nil
}

func (e *Engine) fetchServiceLayerURLs(ctx context.Context, serviceURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serviceURL+"?f=json", nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery: service %s returned status %d", serviceURL, resp.StatusCode)
	}

	var list serviceLayerList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("discovery: decode service layer list: %w", err)
	}

	urls := make([]string, 0, len(list.Layers))
	for _, l := range list.Layers {
		urls = append(urls, fmt.Sprintf("%s/%d", serviceURL, l.ID))
	}
	return urls, nil
}

func sortScoredLayersDescending(layers []ScoredLayer) {
	for i := 1; i < len(layers); i++ {
		for j := i; j > 0 && layers[j].Score > layers[j-1].Score; j-- {
			layers[j], layers[j-1] = layers[j-1], layers[j]
		}
	}
}

func (e *Engine) recordNoServerFound(log *provenance.Log, city City, start time.Time) {
	e.record(log, provenance.Entry{
		FIPS:           city.PlaceFIPS,
		Name:           city.Name,
		State:          city.State,
		GranularityTier: 0,
		Confidence:     0,
		Authority:      0,
		ReasoningChain: []string{"tried " + fmt.Sprint(len(urlPatterns)) + " url patterns", "no server responded healthy"},
		TriedTiers:     []string{"server-probe"},
		BlockerCode:    "no-municipal-gis",
		Timestamp:      start.UTC(),
		AgentID:        AgentID,
	})
}

func (e *Engine) recordBlocker(log *provenance.Log, city City, blockerCode string, reasoning []string, start time.Time) {
	e.record(log, provenance.Entry{
		FIPS:           city.PlaceFIPS,
		Name:           city.Name,
		State:          city.State,
		GranularityTier: 0,
		Confidence:     0,
		Authority:      0,
		ReasoningChain: reasoning,
		TriedTiers:     []string{"server-probe", "folder-walk"},
		BlockerCode:    blockerCode,
		Timestamp:      start.UTC(),
		AgentID:        AgentID,
	})
}

func (e *Engine) recordLayerScore(log *provenance.Log, city City, candidate *Candidate, scored ScoredLayer, start time.Time) {
	e.record(log, provenance.Entry{
		FIPS:            city.PlaceFIPS,
		Name:            city.Name,
		State:           city.State,
		GranularityTier: 4, // ward/council-district granularity
		FeatureCount:    scored.Layer.FeatureCount,
		Confidence:      scored.Score,
		Authority:       2, // municipal GIS portal
		SourceKind:      candidate.Kind,
		URL:             scored.Layer.ServiceURL,
		Quality: provenance.Quality{
			Valid:      scored.Tier != TierRejected,
			ResponseMS: time.Since(start).Milliseconds(),
		},
		ReasoningChain: scored.Notes,
		TriedTiers:     []string{"server-probe", "folder-walk", "layer-fetch", "scoring"},
		Timestamp:      start.UTC(),
		AgentID:        AgentID,
	})
}

// record writes e and swallows validation/IO errors beyond a log line
// the caller's own logger would surface; discovery must never fail a
// sweep because one provenance write failed.
func (e *Engine) record(log *provenance.Log, entry provenance.Entry) {
	if log == nil {
		return
	}
	_ = log.AppendLocked(entry)
}
