package risk

import (
	"math"
	"sort"
	"time"
)

type CategoryCount struct {
	Category Category `json:"category"`
	Count    int      `json:"count"`
}

type Statistics struct {
	TotalEvents      int             `json:"total_events"`
	RiskDistribution map[string]int  `json:"risk_distribution"`
	BlockedCommands  int             `json:"blocked_commands"`
	BlockRate        float64         `json:"block_rate"`
	TopCategories    []CategoryCount `json:"top_risk_categories"`
	RecentEvents24h  int             `json:"recent_events_24h"`
}

const topCategoryCount = 5

// Statistics summarises the events currently held in the ring.
func (e *Engine) Statistics() Statistics {
	return summarize(e.ring.Newest(0, nil), e.now())
}

func summarize(events []SecurityEvent, now time.Time) Statistics {
	stats := Statistics{
		RiskDistribution: map[string]int{},
		TopCategories:    []CategoryCount{},
	}
	if len(events) == 0 {
		return stats
	}

	counts := map[Category]int{}
	since := now.Add(-24 * time.Hour)
	for _, ev := range events {
		stats.TotalEvents++
		stats.RiskDistribution[ev.Assessment.Level.String()]++
		if ev.Assessment.Blocked {
			stats.BlockedCommands++
		}
		if ev.Timestamp.After(since) {
			stats.RecentEvents24h++
		}
		for _, c := range ev.Assessment.Categories {
			counts[c]++
		}
	}
	rate := float64(stats.BlockedCommands) / float64(stats.TotalEvents) * 100
	stats.BlockRate = math.Round(rate*100) / 100

	for c, n := range counts {
		stats.TopCategories = append(stats.TopCategories, CategoryCount{Category: c, Count: n})
	}
	sort.Slice(stats.TopCategories, func(i, j int) bool {
		a, b := stats.TopCategories[i], stats.TopCategories[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Category < b.Category
	})
	if len(stats.TopCategories) > topCategoryCount {
		stats.TopCategories = stats.TopCategories[:topCategoryCount]
	}
	return stats
}
