package engine

import (
	"context"
	"fmt"
	"strings"

	"recruitline/internal/decisions"
	"recruitline/internal/domain"
	"recruitline/internal/engine/auth"
	"recruitline/internal/events"
	"recruitline/internal/messaging"
	"recruitline/internal/repo"
)

// DecisionQueue lists candidates awaiting a hiring decision in presentation order.
func (e Engine) DecisionQueue(ctx context.Context) ([]decisions.DecisionCandidate, error) {
	interviews, err := e.Repo.ListInterviews(ctx, nil, repo.InterviewFilter{
		Statuses:     []domain.InterviewStatus{domain.InterviewCompleted},
		WithFeedback: ptr(true),
	})
	if err != nil {
		return nil, err
	}
	candidates, err := e.Repo.ListCandidates(ctx, nil, repo.CandidateFilter{Archived: ptr(false)})
	if err != nil {
		return nil, err
	}
	items := decisions.Aggregate(interviews, candidates)
	decisions.Sort(items)
	return items, nil
}

type DecisionOptions struct {
	Note string
	// Notify sends the rejection message on Reject.
	Notify bool
}

type DecisionResult struct {
	Candidate domain.Candidate    `json:"candidate"`
	Basis     domain.Interview    `json:"basis"`
	Link      *domain.BookingLink `json:"booking_link,omitempty"`
	Notified  bool                `json:"notified"`
}

func (e Engine) Approve(ctx context.Context, candidateID string, opts DecisionOptions, actor Actor) (DecisionResult, error) {
	return e.decide(ctx, candidateID, domain.CandidateApprove, opts, actor)
}

// Reject closes the candidate. The rejection message is best-effort and never
// undoes the status change.
func (e Engine) Reject(ctx context.Context, candidateID string, opts DecisionOptions, actor Actor) (DecisionResult, error) {
	res, err := e.decide(ctx, candidateID, domain.CandidateReject, opts, actor)
	if err != nil || !opts.Notify {
		return res, err
	}
	res.Notified = e.sendAndRecord(ctx, actor, messaging.Message{
		CandidateID:  res.Candidate.ID,
		TemplateType: messaging.TemplateRejection,
		CustomData:   map[string]any{"name": res.Candidate.Name, "jobTitle": res.Candidate.JobTitle},
	})
	return res, nil
}

// ScheduleTrial advances an interviewed candidate to a trial shift and issues
// a trial booking link in the same transaction.
func (e Engine) ScheduleTrial(ctx context.Context, candidateID string, opts DecisionOptions, actor Actor) (DecisionResult, error) {
	res, err := e.decide(ctx, candidateID, domain.CandidateScheduleTrial, opts, actor)
	if err != nil {
		return res, err
	}
	if res.Link != nil {
		res.Notified = e.sendAndRecord(ctx, actor, bookingLinkMessage(res.Candidate, *res.Link))
	}
	return res, nil
}

func (e Engine) decide(ctx context.Context, candidateID string, ev domain.CandidateEvent, opts DecisionOptions, actor Actor) (DecisionResult, error) {
	if err := e.require(ctx, actor, auth.PermDecisionManage); err != nil {
		return DecisionResult{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return DecisionResult{}, err
	}
	defer tx.Rollback()
	cand, err := e.Repo.GetCandidate(ctx, tx, candidateID)
	if err != nil {
		return DecisionResult{}, notFound("candidate", candidateID, err)
	}
	if cand.Archived || !domain.IsDecisionStatus(cand.Status) {
		return DecisionResult{}, ConflictError{Message: fmt.Sprintf("candidate is %s; decisions apply after a completed interview or trial", cand.Status)}
	}
	interviews, err := e.Repo.ListInterviews(ctx, tx, repo.InterviewFilter{
		CandidateID:  cand.ID,
		Statuses:     []domain.InterviewStatus{domain.InterviewCompleted},
		WithFeedback: ptr(true),
	})
	if err != nil {
		return DecisionResult{}, err
	}
	basis, ok := decisions.Latest(interviews)[cand.ID]
	if !ok {
		return DecisionResult{}, PreconditionError{Message: "no hire or maybe recommendation on record for this candidate"}
	}
	if ev == domain.CandidateScheduleTrial && basis.Type != domain.InterviewTypeInterview {
		return DecisionResult{}, PreconditionError{Message: "a trial can only follow an interview"}
	}
	next, err := domain.NextCandidateStatus(cand.Status, ev)
	if err != nil {
		return DecisionResult{}, conflict(err)
	}
	now := e.now()
	if err := e.Repo.SetCandidateStatus(ctx, tx, cand.ID, next, nil, now); err != nil {
		return DecisionResult{}, err
	}
	desc := fmt.Sprintf("%s: %s -> %s (%s on %s %s)", ev, cand.Status, next, basis.Feedback.Recommendation, basis.Type, basis.ScheduledDate.Format("2006-01-02"))
	if note := strings.TrimSpace(opts.Note); note != "" {
		desc += ": " + note
	}
	if err := e.record(ctx, tx, actor, events.Entry{
		EntityType:  "candidate",
		EntityID:    cand.ID,
		Action:      domain.ActionStatusChanged,
		Description: desc,
		Metadata:    events.Metadata{"from": cand.Status, "to": next, "event": ev, "interview_id": basis.ID},
	}); err != nil {
		return DecisionResult{}, err
	}
	res := DecisionResult{Basis: basis}
	if ev == domain.CandidateScheduleTrial {
		link, err := e.issueLink(ctx, tx, cand, domain.InterviewTypeTrial, actor, now)
		if err != nil {
			return DecisionResult{}, err
		}
		res.Link = &link
	}
	if res.Candidate, err = e.Repo.GetCandidate(ctx, tx, cand.ID); err != nil {
		return DecisionResult{}, err
	}
	return res, tx.Commit()
}

// sendAndRecord sends a best-effort message and logs message_sent when it
// went out.
func (e Engine) sendAndRecord(ctx context.Context, actor Actor, msg messaging.Message) bool {
	if !e.notify(ctx, msg) {
		return false
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		e.logger().Warn("record message_sent", "candidate_id", msg.CandidateID, "err", err)
		return true
	}
	defer tx.Rollback()
	err = e.record(ctx, tx, actor, events.Entry{
		EntityType:  "candidate",
		EntityID:    msg.CandidateID,
		Action:      domain.ActionMessageSent,
		Description: fmt.Sprintf("%s message sent", msg.TemplateType),
		Metadata:    events.Metadata{"template": msg.TemplateType},
	})
	if err == nil {
		err = tx.Commit()
	}
	if err != nil {
		e.logger().Warn("record message_sent", "candidate_id", msg.CandidateID, "err", err)
	}
	return true
}
