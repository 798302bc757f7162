package risk

import "fmt"

// AssessPatterns scores command against every category's signatures. It is
// deterministic and never calls out.
func AssessPatterns(command string) Assessment {
	var (
		detected []Category
		scores   []float64
		sum      float64
	)
	for _, set := range signatures {
		matches := 0
		for _, p := range set.patterns {
			if p.MatchString(command) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		score := float64(matches) / float64(len(set.patterns))
		if score > 1 {
			score = 1
		}
		detected = append(detected, set.category)
		scores = append(scores, score)
		sum += score
	}

	a := Assessment{
		Categories:      detected,
		Reasoning:       fmt.Sprintf("Pattern-based assessment detected %d risk categories", len(detected)),
		Recommendations: Recommendations(detected),
		Metadata:        map[string]interface{}{"method": MethodPattern, "scores": scores},
	}
	if len(detected) == 0 {
		a.Categories = []Category{}
		a.Metadata["scores"] = []float64{}
		a.Level = LevelSafe
		a.Confidence = 0.9
		return a
	}

	avg := sum / float64(len(scores))
	a.Level = levelForScore(avg)
	a.Confidence = clampConfidence(avg + 0.1)
	return a
}
