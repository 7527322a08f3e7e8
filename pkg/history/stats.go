package history

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

// SkillLoadCount is how often one skill was selected into a plan
type SkillLoadCount struct {
	SkillID string
	Loads   int
}

// Stats aggregates the resolution log for catalog tuning
type Stats struct {
	Resolutions        int
	Sessions           int
	DeferredReferences int
	AvgUtilization     float64 // consumed / budget across resolutions
	SkillLoads         []SkillLoadCount
}

// Aggregate computes statistics over the whole resolution log
func (s *Store) Aggregate(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(DISTINCT session_id),
			COALESCE(SUM(deferred_count), 0),
			COALESCE(AVG(CAST(consumed_tokens AS REAL) / budget_tokens), 0)
		FROM resolutions
		WHERE budget_tokens > 0`).
		Scan(&stats.Resolutions, &stats.Sessions, &stats.DeferredReferences, &stats.AvgUtilization)
	if err != nil {
		return nil, errors.Wrap(err, "failed to aggregate resolutions")
	}

	// Skill ids live in a JSON column; unpack and count them here rather
	// than leaning on the json1 extension.
	var blobs []string
	if err := s.db.SelectContext(ctx, &blobs, "SELECT skill_ids FROM resolutions"); err != nil {
		return nil, errors.Wrap(err, "failed to query skill ids")
	}

	counts := make(map[string]int)
	for _, blob := range blobs {
		var ids []string
		if err := json.Unmarshal([]byte(blob), &ids); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal skill ids")
		}
		for _, id := range ids {
			counts[id]++
		}
	}

	stats.SkillLoads = make([]SkillLoadCount, 0, len(counts))
	for id, loads := range counts {
		stats.SkillLoads = append(stats.SkillLoads, SkillLoadCount{SkillID: id, Loads: loads})
	}
	sort.Slice(stats.SkillLoads, func(i, j int) bool {
		if stats.SkillLoads[i].Loads != stats.SkillLoads[j].Loads {
			return stats.SkillLoads[i].Loads > stats.SkillLoads[j].Loads
		}
		return stats.SkillLoads[i].SkillID < stats.SkillLoads[j].SkillID
	})

	return stats, nil
}
