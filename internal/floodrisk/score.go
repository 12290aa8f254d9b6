package floodrisk

import (
	"encoding/json"
	"fmt"
)

// Assessment is the flood risk verdict for one listing.
type Assessment struct {
	Score   int      `json:"score"` // 0-100
	Band    string   `json:"band"`  // low, moderate, high, severe
	Factors []string `json:"factors"`
}

// Band thresholds.
const (
	BandLow      = "low"
	BandModerate = "moderate"
	BandHigh     = "high"
	BandSevere   = "severe"
)

// riskInputs are the payload fields the model reads. Anything absent
// simply contributes nothing.
type riskInputs struct {
	ElevationM       *float64 `json:"elevation_m"`
	DistanceToWaterM *float64 `json:"distance_to_water_m"`
	Floor            *int     `json:"floor"`
	Basement         *bool    `json:"basement"`
}

const baseScore = 25

// Assess derives a deterministic flood risk score from a listing
// payload. The same payload always produces the same assessment.
func Assess(payload json.RawMessage) (*Assessment, error) {
	var in riskInputs
	if err := json.Unmarshal(payload, &in); err != nil {
		return nil, fmt.Errorf("read risk inputs: %w", err)
	}

	score := baseScore
	var factors []string
	add := func(delta int, factor string) {
		score += delta
		factors = append(factors, factor)
	}

	if in.ElevationM != nil {
		switch e := *in.ElevationM; {
		case e < 2:
			add(30, "very low elevation")
		case e < 10:
			add(15, "low elevation")
		case e >= 50:
			add(-15, "high elevation")
		}
	}
	if in.DistanceToWaterM != nil {
		switch d := *in.DistanceToWaterM; {
		case d < 100:
			add(30, "adjacent to water")
		case d < 500:
			add(15, "near water")
		case d >= 2000:
			add(-10, "far from water")
		}
	}
	if in.Floor != nil {
		switch f := *in.Floor; {
		case f <= 0:
			add(10, "ground floor")
		case f >= 3:
			add(-10, "upper floor")
		}
	}
	if in.Basement != nil && *in.Basement {
		add(15, "basement present")
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return &Assessment{Score: score, Band: band(score), Factors: factors}, nil
}

func band(score int) string {
	switch {
	case score < 25:
		return BandLow
	case score < 50:
		return BandModerate
	case score < 75:
		return BandHigh
	default:
		return BandSevere
	}
}
