package usecase

import (
	"regexp"
	"strings"
)

// Heuristic scores how well a query fits a subject. Keywords and boost words
// match the lowercased query; units and patterns match it as written.
type Heuristic struct {
	Keywords      []string
	KeywordWeight float64
	Units         []string
	UnitWeight    float64
	Patterns      []*regexp.Regexp
	PatternWeight float64
	BoostWords    []string
	Boost         float64
}

// Score returns a value in [0,1]. The raw weighted hit count is normalized by
// the maximum possible score, then boosted when a strong subject word appears.
func (h Heuristic) Score(query string) float64 {
	lower := strings.ToLower(query)

	var total float64
	for _, kw := range h.Keywords {
		if strings.Contains(lower, kw) {
			total += h.KeywordWeight
		}
	}
	for _, u := range h.Units {
		if strings.Contains(query, u) {
			total += h.UnitWeight
		}
	}
	for _, re := range h.Patterns {
		if re.MatchString(query) {
			total += h.PatternWeight
		}
	}

	maxScore := float64(len(h.Keywords))*h.KeywordWeight +
		float64(len(h.Units))*h.UnitWeight +
		float64(len(h.Patterns))*h.PatternWeight
	var score float64
	if maxScore > 0 {
		score = min(total/maxScore, 1)
	}

	for _, w := range h.BoostWords {
		if strings.Contains(lower, w) {
			score = min(score+h.Boost, 1)
			break
		}
	}
	return score
}

var mathHeuristic = Heuristic{
	Keywords: []string{
		"math", "mathematics", "algebra", "geometry", "calculus", "arithmetic",
		"equation", "solve", "calculate", "compute", "formula", "derivative",
		"integral", "limit", "function", "graph", "polynomial", "quadratic",
		"linear", "exponential", "logarithm", "trigonometry", "sin", "cos", "tan",
		"triangle", "circle", "area", "perimeter", "volume", "angle", "degrees",
		"radians", "statistics", "probability", "matrix", "vector",
	},
	KeywordWeight: 0.3,
	Patterns: []*regexp.Regexp{
		regexp.MustCompile(`\d+\s*[-+*/^]\s*\d+`),
		regexp.MustCompile(`(?i)[xy]\s*[-+*/]\s*\d+`),
		regexp.MustCompile(`=`),
		regexp.MustCompile(`(?i)[xy]\^?\d*`),
		regexp.MustCompile(`(?i)sin|cos|tan|log|ln|sqrt`),
		regexp.MustCompile(`∫|∑|∆|π|θ|α|β|γ`),
	},
	PatternWeight: 0.7,
	BoostWords:    []string{"solve", "calculate", "compute", "equation", "formula"},
	Boost:         0.3,
}

var physicsHeuristic = Heuristic{
	Keywords: []string{
		"physics", "force", "energy", "motion", "velocity", "acceleration", "momentum",
		"newton", "joule", "watt", "electric", "magnetic", "current", "voltage", "resistance",
		"circuit", "ohm", "ampere", "volt", "charge", "field", "wave", "frequency",
		"thermodynamics", "temperature", "heat", "entropy", "pressure", "volume",
		"gravity", "gravitational", "mass", "weight", "friction", "tension", "spring",
		"kinetic", "potential", "mechanical", "electromagnetic", "quantum", "photon",
		"electron", "proton", "atom", "nuclear", "radioactive", "radiation",
		"optics", "lens", "mirror", "refraction", "reflection", "interference",
		"oscillation", "pendulum", "harmonic", "resonance", "doppler",
	},
	KeywordWeight: 0.4,
	Units: []string{
		"m/s", "m/s²", "kg", "N", "J", "W", "V", "A", "Ω", "C", "T", "Hz", "K", "°C", "Pa",
	},
	UnitWeight: 0.3,
	Patterns: []*regexp.Regexp{
		regexp.MustCompile(`F\s*=\s*ma`),
		regexp.MustCompile(`E\s*=\s*mc²`),
		regexp.MustCompile(`V\s*=\s*IR`),
		regexp.MustCompile(`KE\s*=\s*½mv²`),
		regexp.MustCompile(`PE\s*=\s*mgh`),
		regexp.MustCompile(`\d+\s*(m/s|m/s²|kg|N|J|W|V|A)`),
	},
	PatternWeight: 0.3,
	BoostWords:    []string{"physics", "force", "energy", "electric", "magnetic"},
	Boost:         0.2,
}
