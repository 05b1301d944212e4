// Package outbox turns the mutation log written by database triggers into
// background tasks. Rows only become visible once the writing transaction
// commits, so tasks are never published for uncommitted changes.
package outbox

import (
	"fmt"

	"jobboard/matching-service/internal/model"
	"jobboard/matching-service/internal/taskqueue"
)

// Mutation is one outbox row.
type Mutation struct {
	ID        int64
	TxID      int64
	Table     string
	Op        string
	EntityID  int64
	JobStatus *string
}

// Dispatch is one task to enqueue.
type Dispatch struct {
	Task     string
	EntityID int64
}

// Key identifies the dispatch for cross-transaction coalescing.
func (d Dispatch) Key() string {
	return fmt.Sprintf("outbox:coalesce:%s:%d", d.Task, d.EntityID)
}

// Route maps a mutation to the tasks it triggers.
//
// Candidate and candidate-skill changes recompute the candidate. Job and
// job-skill changes recompute the job only while it is published; a job
// row written as published also runs the alert fan-out.
func Route(m Mutation) []Dispatch {
	switch m.Table {
	case "candidates", "candidate_skills":
		return []Dispatch{{Task: taskqueue.RecomputeForCandidate, EntityID: m.EntityID}}
	case "jobs":
		if !published(m) {
			return nil
		}
		return []Dispatch{
			{Task: taskqueue.RecomputeForJob, EntityID: m.EntityID},
			{Task: taskqueue.AlertFanoutForJob, EntityID: m.EntityID},
		}
	case "job_skills":
		if !published(m) {
			return nil
		}
		return []Dispatch{{Task: taskqueue.RecomputeForJob, EntityID: m.EntityID}}
	}
	return nil
}

func published(m Mutation) bool {
	return m.JobStatus != nil && model.JobStatus(*m.JobStatus) == model.JobPublished
}

// Plan routes a batch and collapses duplicates from the same transaction,
// keeping first-seen order.
func Plan(muts []Mutation) []Dispatch {
	type key struct {
		txid int64
		d    Dispatch
	}
	seen := make(map[key]bool)
	var out []Dispatch
	for _, m := range muts {
		for _, d := range Route(m) {
			k := key{txid: m.TxID, d: d}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, d)
		}
	}
	return out
}
