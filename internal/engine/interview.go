package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"recruitline/internal/domain"
	"recruitline/internal/engine/auth"
	"recruitline/internal/events"
	"recruitline/internal/repo"
)

func (e Engine) GetInterview(ctx context.Context, id string) (domain.Interview, error) {
	iv, err := e.Repo.GetInterview(ctx, nil, id)
	return iv, notFound("interview", id, err)
}

type InterviewQuery struct {
	CandidateID string
	// Status also accepts "lapsed": scheduled interviews whose start has passed.
	Status string
	Type   string
	Limit  int
}

func (e Engine) ListInterviews(ctx context.Context, q InterviewQuery) ([]domain.Interview, error) {
	f := repo.InterviewFilter{CandidateID: q.CandidateID, Type: q.Type, Limit: q.Limit}
	switch q.Status {
	case "":
	case "lapsed":
		f.Statuses = []domain.InterviewStatus{domain.InterviewScheduled}
		f.To = ptr(e.now().Add(time.Millisecond))
	default:
		st, err := domain.ParseInterviewStatus(q.Status)
		if err != nil {
			return nil, ValidationError{Field: "status", Message: err.Error()}
		}
		f.Statuses = []domain.InterviewStatus{st}
	}
	return e.Repo.ListInterviews(ctx, nil, f)
}

// lifecycle loads an interview inside a transaction, applies ev and hands the
// result to apply. A repeated terminal event on an interview already in that
// state is reported as unchanged.
func (e Engine) lifecycle(ctx context.Context, tx *sql.Tx, id string, ev domain.InterviewEvent) (domain.Interview, domain.InterviewStatus, bool, error) {
	iv, err := e.Repo.GetInterview(ctx, tx, id)
	if err != nil {
		return iv, "", false, notFound("interview", id, err)
	}
	if repeatOf(ev) == iv.Status {
		return iv, iv.Status, false, nil
	}
	next, err := domain.NextInterviewStatus(iv.Status, ev)
	if err != nil {
		return iv, "", false, conflict(err)
	}
	return iv, next, true, nil
}

func repeatOf(ev domain.InterviewEvent) domain.InterviewStatus {
	switch ev {
	case domain.EventCancel:
		return domain.InterviewCancelled
	case domain.EventComplete:
		return domain.InterviewCompleted
	case domain.EventNoShow:
		return domain.InterviewNoShow
	}
	return ""
}

// Reschedule moves a scheduled interview to a new start in the future.
func (e Engine) Reschedule(ctx context.Context, id string, at time.Time, actor Actor) (domain.Interview, error) {
	if err := e.require(ctx, actor, auth.PermInterviewManage); err != nil {
		return domain.Interview{}, err
	}
	if at.IsZero() {
		return domain.Interview{}, ValidationError{Field: "scheduled_date", Message: "new date and time are required"}
	}
	now := e.now()
	if !at.After(now) {
		return domain.Interview{}, ValidationError{Field: "scheduled_date", Message: "must be in the future"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Interview{}, err
	}
	defer tx.Rollback()
	iv, next, _, err := e.lifecycle(ctx, tx, id, domain.EventReschedule)
	if err != nil {
		return domain.Interview{}, err
	}
	from := iv.ScheduledDate
	iv.Status = next
	iv.RescheduledFrom = &from
	iv.RescheduledCount++
	iv.ScheduledDate = at.UTC()
	iv.UpdatedAt = now
	iv.ReminderSentAt = nil
	if err := e.Repo.UpdateInterview(ctx, tx, iv); err != nil {
		return domain.Interview{}, err
	}
	if err := e.Repo.ReleaseReminder(ctx, tx, iv.ID); err != nil {
		return domain.Interview{}, err
	}
	if err := e.record(ctx, tx, actor, events.Entry{
		EntityType:  "interview",
		EntityID:    iv.ID,
		Action:      domain.ActionUpdated,
		Description: fmt.Sprintf("%s rescheduled from %s to %s", iv.Type, from.Format(time.RFC3339), iv.ScheduledDate.Format(time.RFC3339)),
		Metadata:    events.Metadata{"rescheduled_count": iv.RescheduledCount, "candidate_id": iv.CandidateID},
	}); err != nil {
		return domain.Interview{}, err
	}
	return iv, tx.Commit()
}

// Cancel cancels a scheduled interview. The candidate is left as is so they
// can be rebooked.
func (e Engine) Cancel(ctx context.Context, id, reason string, actor Actor) (domain.Interview, error) {
	if err := e.require(ctx, actor, auth.PermInterviewManage); err != nil {
		return domain.Interview{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Interview{}, err
	}
	defer tx.Rollback()
	iv, next, changed, err := e.lifecycle(ctx, tx, id, domain.EventCancel)
	if err != nil || !changed {
		return iv, err
	}
	now := e.now()
	iv.Status = next
	iv.CancelledAt = &now
	iv.CancelledBy = &actor.ID
	if reason = strings.TrimSpace(reason); reason != "" {
		iv.CancellationReason = &reason
	}
	iv.UpdatedAt = now
	if err := e.Repo.UpdateInterview(ctx, tx, iv); err != nil {
		return domain.Interview{}, err
	}
	if err := e.record(ctx, tx, actor, events.Entry{
		EntityType:  "interview",
		EntityID:    iv.ID,
		Action:      domain.ActionStatusChanged,
		Description: fmt.Sprintf("%s cancelled", iv.Type),
		Metadata:    events.Metadata{"from": domain.InterviewScheduled, "to": next, "reason": reason, "candidate_id": iv.CandidateID},
	}); err != nil {
		return domain.Interview{}, err
	}
	return iv, tx.Commit()
}

// Complete marks a scheduled interview as held. Feedback is a separate step.
func (e Engine) Complete(ctx context.Context, id string, actor Actor) (domain.Interview, error) {
	if err := e.require(ctx, actor, auth.PermInterviewManage); err != nil {
		return domain.Interview{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Interview{}, err
	}
	defer tx.Rollback()
	iv, next, changed, err := e.lifecycle(ctx, tx, id, domain.EventComplete)
	if err != nil || !changed {
		return iv, err
	}
	now := e.now()
	iv.Status = next
	iv.CompletedAt = &now
	iv.UpdatedAt = now
	if err := e.Repo.UpdateInterview(ctx, tx, iv); err != nil {
		return domain.Interview{}, err
	}
	if err := e.record(ctx, tx, actor, events.Entry{
		EntityType:  "interview",
		EntityID:    iv.ID,
		Action:      domain.ActionStatusChanged,
		Description: fmt.Sprintf("%s marked completed", iv.Type),
		Metadata:    events.Metadata{"from": domain.InterviewScheduled, "to": next, "candidate_id": iv.CandidateID},
	}); err != nil {
		return domain.Interview{}, err
	}
	return iv, tx.Commit()
}

// MarkNoShow records a missed appointment and withdraws the candidate. Both
// writes and the audit entry share one transaction.
func (e Engine) MarkNoShow(ctx context.Context, id string, actor Actor) (domain.Interview, error) {
	if err := e.require(ctx, actor, auth.PermInterviewManage); err != nil {
		return domain.Interview{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Interview{}, err
	}
	defer tx.Rollback()
	iv, next, changed, err := e.lifecycle(ctx, tx, id, domain.EventNoShow)
	if err != nil {
		return domain.Interview{}, err
	}
	cand, err := e.Repo.GetCandidate(ctx, tx, iv.CandidateID)
	if err != nil {
		return domain.Interview{}, notFound("candidate", iv.CandidateID, err)
	}
	candNext, err := domain.NextCandidateStatus(cand.Status, domain.CandidateNoShow)
	if err != nil {
		return domain.Interview{}, conflict(err)
	}
	// Archived candidates keep status and snapshot so Restore still works.
	withdraw := !cand.Archived && cand.Status != candNext
	if !changed && !withdraw {
		return iv, nil
	}
	now := e.now()
	if changed {
		iv.Status = next
		iv.UpdatedAt = now
		if err := e.Repo.UpdateInterview(ctx, tx, iv); err != nil {
			return domain.Interview{}, err
		}
	}
	reason := fmt.Sprintf("No show to %s", iv.Type)
	if withdraw {
		if err := e.Repo.SetCandidateStatus(ctx, tx, cand.ID, candNext, &reason, now); err != nil {
			return domain.Interview{}, fmt.Errorf("withdraw candidate %s: %w", cand.ID, err)
		}
	}
	if err := e.record(ctx, tx, actor, events.Entry{
		EntityType:  "interview",
		EntityID:    iv.ID,
		Action:      domain.ActionStatusChanged,
		Description: fmt.Sprintf("%s did not attend %s; candidate withdrawn", cand.Name, iv.Type),
		Metadata: events.Metadata{
			"to":               domain.InterviewNoShow,
			"candidate_id":     cand.ID,
			"candidate_from":   cand.Status,
			"candidate_to":     candNext,
			"withdrawal":       reason,
			"candidate_repair": !changed,
		},
	}); err != nil {
		return domain.Interview{}, err
	}
	return iv, tx.Commit()
}

type FeedbackInput struct {
	Rating         int
	Recommendation string
	Strengths      string
	Weaknesses     string
	Comments       string
}

func (in FeedbackInput) validate() (domain.Recommendation, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return "", ValidationError{Field: "rating", Message: "must be between 1 and 5"}
	}
	rec, ok := domain.ParseRecommendation(in.Recommendation)
	if !ok {
		return "", ValidationError{Field: "recommendation", Message: "must be one of hire, maybe, do_not_hire"}
	}
	return rec, nil
}

// SubmitFeedback stores the interviewer's feedback once the appointment time
// has passed and closes the interview as completed. A resubmission replaces
// the previous feedback.
func (e Engine) SubmitFeedback(ctx context.Context, id string, in FeedbackInput, actor Actor) (domain.Interview, error) {
	if err := e.require(ctx, actor, auth.PermFeedbackSubmit); err != nil {
		return domain.Interview{}, err
	}
	rec, err := in.validate()
	if err != nil {
		return domain.Interview{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Interview{}, err
	}
	defer tx.Rollback()
	iv, err := e.Repo.GetInterview(ctx, tx, id)
	if err != nil {
		return domain.Interview{}, notFound("interview", id, err)
	}
	if iv.Status == domain.InterviewCancelled {
		return domain.Interview{}, ConflictError{Message: "feedback cannot be submitted for a cancelled interview"}
	}
	now := e.now()
	if iv.ScheduledDate.After(now) {
		return domain.Interview{}, PreconditionError{Message: fmt.Sprintf("feedback opens at %s", iv.ScheduledDate.Format(time.RFC3339))}
	}
	next, err := domain.NextInterviewStatus(iv.Status, domain.EventSubmitFeedback)
	if err != nil {
		return domain.Interview{}, conflict(err)
	}
	resubmission := iv.HasFeedback()
	from := iv.Status
	iv.Status = next
	if iv.CompletedAt == nil {
		iv.CompletedAt = &now
	}
	iv.Feedback = &domain.Feedback{
		Rating:         in.Rating,
		Recommendation: rec,
		Strengths:      strings.TrimSpace(in.Strengths),
		Weaknesses:     strings.TrimSpace(in.Weaknesses),
		Comments:       strings.TrimSpace(in.Comments),
		SubmittedAt:    &now,
		SubmittedBy:    actor.ID,
	}
	iv.UpdatedAt = now
	if err := e.Repo.UpdateInterview(ctx, tx, iv); err != nil {
		return domain.Interview{}, err
	}
	if err := e.advanceAfterFeedback(ctx, tx, iv, actor, now); err != nil {
		return domain.Interview{}, err
	}
	if err := e.record(ctx, tx, actor, events.Entry{
		EntityType:  "interview",
		EntityID:    iv.ID,
		Action:      domain.ActionFeedbackSubmitted,
		Description: fmt.Sprintf("%s feedback: %s (%d/5)", iv.Type, rec, in.Rating),
		Metadata: events.Metadata{
			"candidate_id":   iv.CandidateID,
			"rating":         in.Rating,
			"recommendation": rec,
			"from":           from,
			"resubmission":   resubmission,
		},
	}); err != nil {
		return domain.Interview{}, err
	}
	return iv, tx.Commit()
}

// advanceAfterFeedback moves the candidate to *_complete when the pipeline
// table allows it from the current status. Other statuses are left alone.
func (e Engine) advanceAfterFeedback(ctx context.Context, tx *sql.Tx, iv domain.Interview, actor Actor, now time.Time) error {
	cand, err := e.Repo.GetCandidate(ctx, tx, iv.CandidateID)
	if err != nil {
		return notFound("candidate", iv.CandidateID, err)
	}
	if cand.Archived {
		return nil
	}
	next, err := domain.NextCandidateStatus(cand.Status, domain.FeedbackEvent(iv.Type))
	if err != nil || next == cand.Status {
		return nil
	}
	if err := e.Repo.SetCandidateStatus(ctx, tx, cand.ID, next, nil, now); err != nil {
		return err
	}
	return e.record(ctx, tx, actor, events.Entry{
		EntityType:  "candidate",
		EntityID:    cand.ID,
		Action:      domain.ActionStatusChanged,
		Description: fmt.Sprintf("%s moved to %s after %s feedback", cand.Name, next, iv.Type),
		Metadata:    events.Metadata{"from": cand.Status, "to": next, "interview_id": iv.ID},
	})
}
