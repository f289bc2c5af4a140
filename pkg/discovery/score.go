// Copyright 2025 Shadow Atlas Project
//
// Semantic layer scoring: turns a discovered ArcGIS/GeoServer layer's
// metadata into a 0-100 confidence score a human reviewer or an
// automated pipeline can act on without inspecting the raw service.

package discovery

import "strings"

var positiveNamePatterns = []string{"council", "district", "ward", "voting", "aldermanic"}
var negativeNamePatterns = []string{"school", "police", "fire", "park", "water"}
var districtFieldPatterns = []string{"district", "council", "ward"}

// ScoreLayer applies the spec's scoring rubric to a layer and returns
// its score (clamped to [0,100]) along with the reasoning chain that
// produced it.
func ScoreLayer(layer LayerInfo, city City) (int, []string) {
	score := 0
	var notes []string

	nameLower := strings.ToLower(layer.Name)
	hasNegative := false
	for _, neg := range negativeNamePatterns {
		if strings.Contains(nameLower, neg) {
			hasNegative = true
			notes = append(notes, "name contains negative keyword \""+neg+"\"")
			score -= 40
		}
	}
	hasPositive := false
	for _, pos := range positiveNamePatterns {
		if strings.Contains(nameLower, pos) {
			hasPositive = true
			notes = append(notes, "name matches pattern \""+pos+"\" (+40)")
			score += 40
			break
		}
	}
	if !hasPositive && !hasNegative {
		notes = append(notes, "name matches no known pattern")
	}

	if layer.GeometryType == "esriGeometryPolygon" || layer.GeometryType == "Polygon" || layer.GeometryType == "MultiPolygon" {
		score += 30
		notes = append(notes, "polygon geometry (+30)")
	} else {
		notes = append(notes, "non-polygon geometry: "+layer.GeometryType)
	}

	hasDistrictField := false
	for _, f := range layer.Fields {
		fl := strings.ToLower(f)
		for _, pat := range districtFieldPatterns {
			if strings.Contains(fl, pat) {
				hasDistrictField = true
				break
			}
		}
		if hasDistrictField {
			break
		}
	}
	if hasDistrictField {
		score += 20
		notes = append(notes, "district/council/ward field present (+20)")
	}

	if layer.FeatureCount >= 3 && layer.FeatureCount <= 25 {
		score += 10
		notes = append(notes, "feature count in typical council-district range (+10)")
	}

	if layer.Extent.Intersects(city.ExpectedBBox) {
		score += 5
		notes = append(notes, "extent overlaps city's expected bounds (+5)")
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, notes
}

// Score builds a ScoredLayer from layer for city.
func Score(layer LayerInfo, city City) ScoredLayer {
	score, notes := ScoreLayer(layer, city)
	return ScoredLayer{Layer: layer, Score: score, Tier: TierForScore(score), Notes: notes}
}
