package allocator

import (
	"sort"

	"github.com/jakechorley/radflow/pkg/core/eligibility"
	"github.com/jakechorley/radflow/pkg/core/model"
)

// Candidate is an eligible radiologist with their burden score
type Candidate struct {
	Radiologist model.Radiologist
	Burden      float64
}

// BurdenScore is calls in the last 30 days relative to the per-period target.
// A non-positive target falls back to the default.
func BurdenScore(rad model.Radiologist, target int) float64 {
	if target <= 0 {
		target = model.DefaultTargetCalls
	}
	return float64(rad.CallHistory.Last30Days) / float64(target)
}

// Rank orders the radiologists eligible for assignment by ascending burden. Ties go to the
// lower year total, then the lower id, so the result is a total order independent of input order.
func Rank(shift model.Shift, rads []model.Radiologist, filter *eligibility.Filter, target int) []Candidate {
	eligible := filter.Filter(shift, rads, eligibility.Assignment)

	candidates := make([]Candidate, 0, len(eligible))
	for _, rad := range eligible {
		candidates = append(candidates, Candidate{Radiologist: rad, Burden: BurdenScore(rad, target)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Burden != b.Burden {
			return a.Burden < b.Burden
		}
		if a.Radiologist.CallHistory.YearTotal != b.Radiologist.CallHistory.YearTotal {
			return a.Radiologist.CallHistory.YearTotal < b.Radiologist.CallHistory.YearTotal
		}
		return a.Radiologist.ID < b.Radiologist.ID
	})
	return candidates
}
