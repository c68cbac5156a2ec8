package router

import "strings"

// tierKeywords maps a lowercased substring found in a task description to
// the tier it bumps the estimate to, checked in priority order (§4.5).
var tierKeywords = []struct {
	tier     int
	keywords []string
}{
	{tier: 3, keywords: []string{"batch", "loop", "each file", "python code", "generate code"}},
	{tier: 2, keywords: []string{"then", "after", "multi-step"}},
}

// EstimateTier applies the task-tier heuristic: keyword hits in the task
// description bump the estimate, highest tier wins, default is tier 1.
func EstimateTier(taskDescription string) int {
	lower := strings.ToLower(taskDescription)
	best := 1
	for _, bucket := range tierKeywords {
		for _, kw := range bucket.keywords {
			if strings.Contains(lower, kw) && bucket.tier > best {
				best = bucket.tier
			}
		}
	}
	return best
}
