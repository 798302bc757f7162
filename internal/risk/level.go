package risk

import (
	"fmt"
	"strings"
)

// Level is totally ordered: safe < low < medium < high < critical.
type Level string

const (
	LevelSafe     Level = "safe"
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

var levelRank = map[Level]int{
	LevelSafe:     0,
	LevelLow:      1,
	LevelMedium:   2,
	LevelHigh:     3,
	LevelCritical: 4,
}

func Levels() []Level {
	return []Level{LevelSafe, LevelLow, LevelMedium, LevelHigh, LevelCritical}
}

// Rank is -1 for unknown levels.
func (l Level) Rank() int {
	if r, ok := levelRank[l]; ok {
		return r
	}
	return -1
}

func (l Level) AtLeast(other Level) bool {
	return l.Rank() >= other.Rank()
}

func (l Level) String() string { return string(l) }

func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := levelRank[l]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
	return l, nil
}

// levelForScore maps an averaged category score onto a level.
func levelForScore(avg float64) Level {
	switch {
	case avg >= 0.8:
		return LevelCritical
	case avg >= 0.6:
		return LevelHigh
	case avg >= 0.4:
		return LevelMedium
	default:
		return LevelLow
	}
}
