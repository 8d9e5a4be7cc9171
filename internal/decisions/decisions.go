// Package decisions derives the "awaiting a hiring decision" queue from
// current interview and candidate state. It is recomputed on every read.
package decisions

import (
	"sort"
	"time"

	"recruitline/internal/domain"
)

type State string

const (
	StatePending  State = "pending"
	StateHired    State = "hired"
	StateRejected State = "rejected"
)

type DecisionCandidate struct {
	CandidateID     string                 `json:"candidate_id"`
	CandidateName   string                 `json:"candidate_name"`
	CandidateStatus domain.CandidateStatus `json:"candidate_status"`
	InterviewID     string                 `json:"interview_id"`
	InterviewType   domain.InterviewType   `json:"interview_type"`
	Recommendation  domain.Recommendation  `json:"recommendation"`
	Rating          int                    `json:"rating"`
	ScheduledDate   time.Time              `json:"scheduled_date"`
	State           State                  `json:"decision_state"`
}

// excluded statuses are mid-flight toward a new appointment or out of the pipeline.
var excluded = map[domain.CandidateStatus]bool{
	domain.CandidateWithdrawn:          true,
	domain.CandidateTrialScheduled:     true,
	domain.CandidateInterviewScheduled: true,
	domain.CandidateArchived:           true,
}

// Eligible reports a completed interview with submitted hire/maybe feedback.
func Eligible(iv domain.Interview) bool {
	return iv.Status == domain.InterviewCompleted && iv.HasFeedback() && iv.Feedback.Recommendation.DecisionEligible()
}

// Latest picks, per candidate, the eligible interview with the latest
// scheduled date. Ties keep the first one seen.
func Latest(interviews []domain.Interview) map[string]domain.Interview {
	latest := make(map[string]domain.Interview)
	for _, iv := range interviews {
		if !Eligible(iv) {
			continue
		}
		cur, ok := latest[iv.CandidateID]
		if !ok || iv.ScheduledDate.After(cur.ScheduledDate) {
			latest[iv.CandidateID] = iv
		}
	}
	return latest
}

// Aggregate returns one entry per candidate that has an eligible interview
// and is not excluded by status. The result is unordered; see Sort.
func Aggregate(interviews []domain.Interview, candidates []domain.Candidate) []DecisionCandidate {
	latest := Latest(interviews)
	out := make([]DecisionCandidate, 0, len(latest))
	for _, c := range candidates {
		if c.Archived || excluded[c.Status] {
			continue
		}
		iv, ok := latest[c.ID]
		if !ok {
			continue
		}
		out = append(out, DecisionCandidate{
			CandidateID:     c.ID,
			CandidateName:   c.Name,
			CandidateStatus: c.Status,
			InterviewID:     iv.ID,
			InterviewType:   iv.Type,
			Recommendation:  iv.Feedback.Recommendation,
			Rating:          iv.Feedback.Rating,
			ScheduledDate:   iv.ScheduledDate,
			State:           stateOf(c.Status),
		})
	}
	return out
}

func stateOf(s domain.CandidateStatus) State {
	switch s {
	case domain.CandidateApproved:
		return StateHired
	case domain.CandidateRejected:
		return StateRejected
	}
	return StatePending
}

// Sort applies the default presentation order: pending first, hire before
// maybe, then most recent first.
func Sort(items []DecisionCandidate) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if ra, rb := stateRank(a.State), stateRank(b.State); ra != rb {
			return ra < rb
		}
		if ra, rb := recRank(a.Recommendation), recRank(b.Recommendation); ra != rb {
			return ra < rb
		}
		return a.ScheduledDate.After(b.ScheduledDate)
	})
}

func stateRank(s State) int {
	if s == StatePending {
		return 0
	}
	return 1
}

func recRank(r domain.Recommendation) int {
	if r == domain.RecommendationHire {
		return 0
	}
	return 1
}
