package risk

import (
	"fmt"
	"math"
)

const (
	MethodPattern    = "pattern_based"
	MethodAI         = "ai_powered"
	MethodAIFallback = "ai_fallback"
	MethodError      = "error"
)

type Assessment struct {
	Level           Level                  `json:"risk_level"`
	Categories      []Category             `json:"risk_categories"`
	Confidence      float64                `json:"confidence"`
	Reasoning       string                 `json:"reasoning"`
	Blocked         bool                   `json:"blocked"`
	Recommendations []string               `json:"recommendations"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// Request is one command submitted for assessment.
type Request struct {
	Command    string                 `json:"command"`
	UserID     string                 `json:"user_id"`
	ClientAddr string                 `json:"client_addr,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

func clampConfidence(c float64) float64 {
	if math.IsNaN(c) {
		return 0
	}
	return math.Max(0, math.Min(1, c))
}

// classifierFallback is used whenever the classifier cannot answer. It is
// never safe.
func classifierFallback(err error) Assessment {
	return Assessment{
		Level:           LevelMedium,
		Categories:      []Category{},
		Confidence:      0.5,
		Reasoning:       fmt.Sprintf("AI assessment failed, using conservative estimate: %v", err),
		Recommendations: []string{"Manual review recommended due to AI assessment failure"},
		Metadata:        map[string]interface{}{"method": MethodAIFallback, "error": err.Error()},
	}
}

// failedAssessment is returned when the pipeline itself breaks.
func failedAssessment(err error) Assessment {
	return Assessment{
		Level:           LevelSafe,
		Categories:      []Category{},
		Confidence:      0,
		Reasoning:       fmt.Sprintf("Risk assessment failed: %v", err),
		Recommendations: []string{"Manual review recommended due to assessment error"},
		Metadata:        map[string]interface{}{"method": MethodError, "error": err.Error()},
	}
}

// merge keeps the more severe result; equal levels prefer the classifier.
func merge(pattern, ai Assessment) Assessment {
	if ai.Level.Rank() >= pattern.Level.Rank() {
		return ai
	}
	return pattern
}
