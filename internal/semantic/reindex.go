package semantic

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"github.com/rcliao/recall/internal/model"
)

// ReindexStats reports what Reindex wrote.
type ReindexStats struct {
	Sessions int `json:"sessions"`
	Memories int `json:"memories"`
	Failed   int `json:"failed"`
}

// Reindex synchronously rebuilds the index from authoritative rows. Sessions
// without a title or summary carry nothing worth embedding and are skipped.
func (c *Client) Reindex(ctx context.Context, sessions []model.Session, memories []model.Memory) (ReindexStats, error) {
	var stats ReindexStats
	if !c.Enabled() {
		return stats, ErrUnavailable
	}

	var jobs []job
	for _, m := range memories {
		if m.Active() {
			jobs = append(jobs, memoryJob(m.ID, m.Fact, m.Category))
		}
	}
	nMemories := len(jobs)
	for _, s := range sessions {
		summary := ""
		if s.Summary != nil {
			summary = *s.Summary
		}
		if s.Title == "" && summary == "" {
			continue
		}
		jobs = append(jobs, sessionJob(s.ID, s.Title, summary, s.CreatedAt))
	}

	var result error
	for i, j := range jobs {
		if err := c.upsert(ctx, j); err != nil {
			stats.Failed++
			result = multierror.Append(result, err)
			continue
		}
		if i < nMemories {
			stats.Memories++
		} else {
			stats.Sessions++
		}
	}
	return stats, result
}
