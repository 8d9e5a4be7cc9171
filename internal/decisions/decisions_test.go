package decisions_test

import (
	"testing"
	"time"

	"recruitline/internal/decisions"
	"recruitline/internal/domain"
)

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 10, 0, 0, 0, time.UTC) }

func completed(id, cand string, typ domain.InterviewType, rec domain.Recommendation, at time.Time) domain.Interview {
	sub := at.Add(time.Hour)
	return domain.Interview{
		ID: id, CandidateID: cand, Type: typ, Status: domain.InterviewCompleted, ScheduledDate: at,
		Feedback: &domain.Feedback{Rating: 4, Recommendation: rec, SubmittedAt: &sub},
	}
}

func TestMostRecentInterviewWins(t *testing.T) {
	interviews := []domain.Interview{
		completed("a", "c1", domain.InterviewTypeInterview, domain.RecommendationHire, day(2024, 1, 1)),
		completed("b", "c1", domain.InterviewTypeTrial, domain.RecommendationMaybe, day(2024, 2, 1)),
	}
	candidates := []domain.Candidate{{ID: "c1", Name: "Ana", Status: domain.CandidateTrialComplete}}
	got := decisions.Aggregate(interviews, candidates)
	if len(got) != 1 {
		t.Fatalf("expected one entry, got %d", len(got))
	}
	if got[0].Recommendation != domain.RecommendationMaybe || got[0].InterviewID != "b" {
		t.Fatalf("expected later maybe to win, got %+v", got[0])
	}
}

func TestIneligibleInterviewsIgnored(t *testing.T) {
	draft := completed("d", "c1", domain.InterviewTypeInterview, domain.RecommendationHire, day(2024, 3, 1))
	draft.Feedback.SubmittedAt = nil
	noHire := completed("n", "c2", domain.InterviewTypeInterview, domain.RecommendationDoNotHire, day(2024, 3, 1))
	cancelled := completed("x", "c3", domain.InterviewTypeInterview, domain.RecommendationHire, day(2024, 3, 1))
	cancelled.Status = domain.InterviewCancelled
	candidates := []domain.Candidate{
		{ID: "c1", Status: domain.CandidateInterviewComplete},
		{ID: "c2", Status: domain.CandidateInterviewComplete},
		{ID: "c3", Status: domain.CandidateInterviewComplete},
	}
	if got := decisions.Aggregate([]domain.Interview{draft, noHire, cancelled}, candidates); len(got) != 0 {
		t.Fatalf("expected empty queue, got %+v", got)
	}
}

func TestExcludedStatuses(t *testing.T) {
	var interviews []domain.Interview
	var candidates []domain.Candidate
	for i, s := range []domain.CandidateStatus{
		domain.CandidateWithdrawn, domain.CandidateTrialScheduled, domain.CandidateInterviewScheduled,
		domain.CandidateInterviewComplete, domain.CandidateApproved,
	} {
		id := string(rune('a' + i))
		interviews = append(interviews, completed("iv-"+id, id, domain.InterviewTypeInterview, domain.RecommendationHire, day(2024, 1, i+1)))
		candidates = append(candidates, domain.Candidate{ID: id, Status: s})
	}
	archived := domain.Candidate{ID: "z", Status: domain.CandidateInterviewComplete, Archived: true}
	candidates = append(candidates, archived)
	interviews = append(interviews, completed("iv-z", "z", domain.InterviewTypeInterview, domain.RecommendationHire, day(2024, 1, 9)))

	got := decisions.Aggregate(interviews, candidates)
	if len(got) != 2 {
		t.Fatalf("expected interview_complete and approved only, got %+v", got)
	}
}

func TestSortOrder(t *testing.T) {
	items := []decisions.DecisionCandidate{
		{CandidateID: "hired", State: decisions.StateHired, Recommendation: domain.RecommendationHire, ScheduledDate: day(2024, 5, 1)},
		{CandidateID: "maybe-new", State: decisions.StatePending, Recommendation: domain.RecommendationMaybe, ScheduledDate: day(2024, 4, 1)},
		{CandidateID: "hire-old", State: decisions.StatePending, Recommendation: domain.RecommendationHire, ScheduledDate: day(2024, 1, 1)},
		{CandidateID: "hire-new", State: decisions.StatePending, Recommendation: domain.RecommendationHire, ScheduledDate: day(2024, 3, 1)},
	}
	decisions.Sort(items)
	want := []string{"hire-new", "hire-old", "maybe-new", "hired"}
	for i, id := range want {
		if items[i].CandidateID != id {
			t.Fatalf("position %d: want %s got %s", i, id, items[i].CandidateID)
		}
	}
}
