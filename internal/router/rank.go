package router

import (
	"sort"

	"fleetd/internal/health"
	"fleetd/pkg/types"
)

// candidate pairs a model with its provider for ranking.
type candidate struct {
	model    types.Model
	provider types.Provider
	status   health.Status
	active   int64
}

func healthRank(s health.Status) int {
	switch s {
	case health.StatusHealthy:
		return 0
	case health.StatusDegraded:
		return 1
	default:
		return 2
	}
}

// sortCandidates orders by health, provider priority, current load, then
// provider and model id. The chain is a total order so selection is
// deterministic for any input set.
func sortCandidates(cands []candidate) {
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if ra, rb := healthRank(a.status), healthRank(b.status); ra != rb {
			return ra < rb
		}
		if a.provider.Priority != b.provider.Priority {
			return a.provider.Priority < b.provider.Priority
		}
		if a.active != b.active {
			return a.active < b.active
		}
		if a.provider.ID != b.provider.ID {
			return a.provider.ID < b.provider.ID
		}
		return a.model.ID < b.model.ID
	})
}
