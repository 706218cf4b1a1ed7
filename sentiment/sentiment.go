// Package sentiment scores news headlines on a bullish/bearish scale. It
// is a pure function of the title text: a compact financial lexicon, a
// normalized compound score, and fixed label thresholds.
package sentiment

import (
	"math"
	"strings"
)

// Labels, from most positive to most negative.
const (
	VeryBullish = "very bullish"
	Bullish     = "bullish"
	Neutral     = "neutral"
	Bearish     = "bearish"
	VeryBearish = "very bearish"
)

// lexicon maps sentiment-bearing terms to raw valence scores. Financial
// vocabulary dominates because headlines in this domain lean on it.
var lexicon = map[string]float64{
	"profit":       2.0,
	"loss":         -2.0,
	"gain":         1.5,
	"gains":        1.5,
	"surge":        2.0,
	"surges":       2.0,
	"soar":         2.2,
	"soars":        2.2,
	"rally":        1.8,
	"rallies":      1.8,
	"collapse":     -2.5,
	"crash":        -2.5,
	"plummet":      -2.5,
	"plummets":     -2.5,
	"plunge":       -2.3,
	"plunges":      -2.3,
	"bullish":      2.5,
	"bearish":      -2.5,
	"recession":    -3.0,
	"growth":       2.0,
	"decline":      -1.5,
	"declines":     -1.5,
	"drop":         -1.5,
	"drops":        -1.5,
	"dump":         -2.0,
	"invest":       1.5,
	"inflation":    -2.0,
	"revenue":      1.5,
	"downgrade":    -2.0,
	"upgrade":      1.8,
	"outperform":   2.0,
	"underperform": -2.0,
	"volatile":     -1.5,
	"fiscal":       1.2,
	"record":       1.0,
	"high":         1.0,
	"highs":        1.0,
	"low":          -1.0,
	"lows":         -1.0,
	"fear":         -1.8,
	"panic":        -2.2,
	"hack":         -2.5,
	"scam":         -2.8,
	"fraud":        -2.8,
	"adoption":     1.8,
	"approval":     1.8,
	"approved":     1.8,
	"rejected":     -1.8,
	"ban":          -2.0,
	"banned":       -2.0,
	"warning":      -1.5,
	"risk":         -1.2,
	"breakout":     1.8,
	"momentum":     1.2,
}

// negations flip the valence of the following term.
var negations = map[string]bool{
	"not":     true,
	"no":      true,
	"never":   true,
	"without": true,
}

// normalization constant, keeps the compound score in (-1, 1).
const alpha = 15.0

// Score classifies a headline and returns a label with a 0-100 confidence.
func Score(title string) (label string, confidence int) {
	compound := compoundScore(title)

	switch {
	case compound >= 0.6:
		label = VeryBullish
	case compound >= 0.1:
		label = Bullish
	case compound > -0.1:
		label = Neutral
	case compound > -0.6:
		label = Bearish
	default:
		label = VeryBearish
	}

	// More extreme scores read as more confident; very short or very long
	// titles damp or boost that slightly.
	confidence = int(math.Sqrt(math.Abs(compound)) * 100)
	lengthFactor := math.Max(0.8, math.Min(float64(len(title))/50, 1.2))
	confidence = int(float64(confidence) * lengthFactor)
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}
	return label, confidence
}

// compoundScore sums lexicon valences over the title's tokens, flipping on
// a preceding negation, then normalizes to (-1, 1).
func compoundScore(title string) float64 {
	sum := 0.0
	negate := false
	for _, token := range tokenize(title) {
		if negations[token] {
			negate = true
			continue
		}
		if valence, ok := lexicon[token]; ok {
			if negate {
				valence = -valence
			}
			sum += valence
		}
		negate = false
	}
	if sum == 0 {
		return 0
	}
	return sum / math.Sqrt(sum*sum+alpha)
}

// tokenize lowercases and splits a title into plain word tokens.
func tokenize(title string) []string {
	fields := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	return fields
}
