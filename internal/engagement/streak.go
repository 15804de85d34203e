package engagement

import (
	"sort"
	"time"

	"hanna-engine/internal/models"
)

// maxStreakDates distinct check-in dates considered by CalculateStreak.
const maxStreakDates = 60

// StreakFromDates counts consecutive calendar days ending today or yesterday.
// dates are civil dates; order and duplicates do not matter.
func StreakFromDates(dates []time.Time, today time.Time) int {
	if len(dates) == 0 {
		return 0
	}
	uniq := make(map[string]time.Time, len(dates))
	for _, d := range dates {
		uniq[models.DateKey(d)] = d
	}
	sorted := make([]time.Time, 0, len(uniq))
	for _, d := range uniq {
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].After(sorted[j]) })

	if models.DaysBetween(sorted[0], today) > 1 {
		return 0
	}
	streak := 1
	for i := 1; i < len(sorted); i++ {
		if models.DaysBetween(sorted[i], sorted[i-1]) != 1 {
			break
		}
		streak++
	}
	return streak
}
