package recognition

import "math"

// DefaultThreshold is the minimum cosine similarity accepted as a match.
const DefaultThreshold = 0.72

// NoScore is reported when nothing could be compared (empty gallery, zero vectors).
var NoScore = math.Inf(-1)

// Match is the outcome of comparing one embedding against a gallery.
type Match struct {
	Matched bool
	Index   int // -1 unless Matched
	Score   float64
}

// CosineSimilarity returns dot(a,b) / (|a|*|b|).
// ok is false when the vectors differ in length, either has zero norm, or the
// result is not a number (NaN or infinite components).
func CosineSimilarity(a, b Vector) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 || math.IsInf(normA, 0) || math.IsInf(normB, 0) {
		return 0, false
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) {
		return 0, false
	}
	// Clamp rounding drift so sim(a,a) never exceeds 1.
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return sim, true
}

// BestMatch compares query with every candidate and returns the highest scoring one.
// Ties keep the lowest index. Candidates that cannot be compared are skipped.
func BestMatch(query Vector, candidates []Vector, threshold float64) Match {
	best := Match{Index: -1, Score: NoScore}
	bestIdx := -1

	for i, c := range candidates {
		sim, ok := CosineSimilarity(query, c)
		if !ok {
			continue
		}
		if bestIdx == -1 || sim > best.Score {
			best.Score = sim
			bestIdx = i
		}
	}

	if bestIdx >= 0 && best.Score >= threshold {
		best.Matched = true
		best.Index = bestIdx
	}
	return best
}
