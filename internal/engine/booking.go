package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"recruitline/internal/domain"
	"recruitline/internal/engine/auth"
	"recruitline/internal/events"
	"recruitline/internal/messaging"
	"recruitline/internal/repo"
	"recruitline/internal/slots"
)

// BookingActor attributes writes made from the self-service booking page.
var BookingActor = Actor{ID: "booking-page", Name: "Candidate self-service"}

// CreateBookingLink revokes the candidate's active links and issues a new one.
func (e Engine) CreateBookingLink(ctx context.Context, candidateID, interviewType string, notify bool, actor Actor) (domain.BookingLink, error) {
	if err := e.require(ctx, actor, auth.PermBookingManage); err != nil {
		return domain.BookingLink{}, err
	}
	typ, ok := domain.ParseInterviewType(interviewType)
	if !ok {
		return domain.BookingLink{}, ValidationError{Field: "interview_type", Message: "must be interview or trial"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.BookingLink{}, err
	}
	defer tx.Rollback()
	cand, err := e.Repo.GetCandidate(ctx, tx, candidateID)
	if err != nil {
		return domain.BookingLink{}, notFound("candidate", candidateID, err)
	}
	if cand.Archived {
		return domain.BookingLink{}, PreconditionError{Message: "candidate is archived; restore or reactivate first"}
	}
	link, err := e.issueLink(ctx, tx, cand, typ, actor, e.now())
	if err != nil {
		return domain.BookingLink{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.BookingLink{}, err
	}
	if notify {
		e.sendAndRecord(ctx, actor, bookingLinkMessage(cand, link))
	}
	return link, nil
}

func (e Engine) issueLink(ctx context.Context, tx *sql.Tx, cand domain.Candidate, typ domain.InterviewType, actor Actor, now time.Time) (domain.BookingLink, error) {
	revoked, err := e.Repo.RevokeActiveLinks(ctx, tx, cand.ID)
	if err != nil {
		return domain.BookingLink{}, err
	}
	link := domain.BookingLink{
		ID:            uuid.NewString(),
		CandidateID:   cand.ID,
		Token:         uuid.NewString(),
		InterviewType: typ,
		Status:        domain.LinkActive,
		ExpiresAt:     now.Add(time.Duration(e.Config.Booking.LinkTTLHours) * time.Hour),
		CreatedAt:     now,
	}
	if err := e.Repo.InsertBookingLink(ctx, tx, link); err != nil {
		return domain.BookingLink{}, fmt.Errorf("insert booking link: %w", err)
	}
	if err := e.record(ctx, tx, actor, events.Entry{
		EntityType:  "booking_link",
		EntityID:    link.ID,
		Action:      domain.ActionBookingLinkCreated,
		Description: fmt.Sprintf("%s booking link issued to %s", typ, cand.Name),
		Metadata:    events.Metadata{"candidate_id": cand.ID, "expires_at": link.ExpiresAt, "revoked": revoked},
	}); err != nil {
		return domain.BookingLink{}, err
	}
	return link, nil
}

func bookingLinkMessage(c domain.Candidate, l domain.BookingLink) messaging.Message {
	return messaging.Message{
		CandidateID:  c.ID,
		TemplateType: messaging.TemplateBookingLink,
		CustomData: map[string]any{
			"name":          c.Name,
			"token":         l.Token,
			"interviewType": l.InterviewType,
			"expiresAt":     l.ExpiresAt,
		},
	}
}

// AvailableSlots returns the day's slot grid for an interview type.
func (e Engine) AvailableSlots(ctx context.Context, date, interviewType string) ([]slots.TimeSlot, error) {
	typ, ok := domain.ParseInterviewType(interviewType)
	if !ok {
		return nil, ValidationError{Field: "interview_type", Message: "must be interview or trial"}
	}
	day, err := e.parseDay(date)
	if err != nil {
		return nil, err
	}
	return e.slotsFor(ctx, nil, day, typ)
}

// SlotsForLink resolves a booking token and returns slots for its interview type.
func (e Engine) SlotsForLink(ctx context.Context, token, date string) (domain.BookingLink, []slots.TimeSlot, error) {
	link, err := e.Repo.GetBookingLinkByToken(ctx, nil, token)
	if err != nil {
		return link, nil, notFound("booking link", token, err)
	}
	if !link.Usable(e.now()) {
		return link, nil, PreconditionError{Message: fmt.Sprintf("booking link is %s", linkState(link, e.now()))}
	}
	day, err := e.parseDay(date)
	if err != nil {
		return link, nil, err
	}
	got, err := e.slotsFor(ctx, nil, day, link.InterviewType)
	return link, got, err
}

func linkState(l domain.BookingLink, now time.Time) domain.BookingLinkStatus {
	if l.Status == domain.LinkActive && !now.Before(l.ExpiresAt) {
		return domain.LinkExpired
	}
	return l.Status
}

func (e Engine) parseDay(date string) (time.Time, error) {
	loc, err := e.Config.Scheduling.Location()
	if err != nil {
		return time.Time{}, err
	}
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return time.Time{}, ValidationError{Field: "date", Message: "expected YYYY-MM-DD"}
	}
	return day, nil
}

func (e Engine) slotsFor(ctx context.Context, tx *sql.Tx, day time.Time, typ domain.InterviewType) ([]slots.TimeSlot, error) {
	sched := e.Config.Scheduling
	// Bookings that started the previous day can still run into this one.
	from := day.Add(-24 * time.Hour)
	to := day.AddDate(0, 0, 1)
	booked, err := e.Repo.ListInterviews(ctx, tx, repo.InterviewFilter{
		Statuses: []domain.InterviewStatus{domain.InterviewScheduled},
		From:     &from,
		To:       &to,
	})
	if err != nil {
		return nil, err
	}
	intervals := make([]slots.Interval, 0, len(booked))
	for _, iv := range booked {
		intervals = append(intervals, slots.Interval{Start: iv.ScheduledDate, End: iv.EndsAt()})
	}
	return slots.Generate(slots.Request{
		Date:         day,
		Schedule:     sched.Weekly,
		SlotDuration: sched.DurationFor(typ == domain.InterviewTypeTrial),
		Buffer:       sched.Buffer,
		MinNotice:    sched.MinNoticeHours,
		Bookings:     intervals,
		Now:          e.now(),
	}), nil
}

type BookingRequest struct {
	Token string
	Date  string // YYYY-MM-DD in the scheduling timezone
	Time  string // HH:MM
}

// BookInterview redeems a booking link: it creates the scheduled interview,
// consumes the link and moves the candidate along the pipeline in one
// transaction.
func (e Engine) BookInterview(ctx context.Context, req BookingRequest) (domain.Interview, error) {
	day, err := e.parseDay(req.Date)
	if err != nil {
		return domain.Interview{}, err
	}
	h, m, err := slots.ParseClock(req.Time)
	if err != nil {
		return domain.Interview{}, ValidationError{Field: "time", Message: "expected HH:MM"}
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
	now := e.now()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Interview{}, err
	}
	defer tx.Rollback()
	link, err := e.Repo.GetBookingLinkByToken(ctx, tx, req.Token)
	if err != nil {
		return domain.Interview{}, notFound("booking link", req.Token, err)
	}
	if link.Status != domain.LinkActive {
		return domain.Interview{}, PreconditionError{Message: fmt.Sprintf("booking link is %s", link.Status)}
	}
	if !link.Usable(now) {
		if _, err := e.Repo.SetBookingLinkStatus(ctx, tx, link.ID, domain.LinkExpired, nil); err != nil {
			return domain.Interview{}, err
		}
		if err := tx.Commit(); err != nil {
			return domain.Interview{}, err
		}
		return domain.Interview{}, PreconditionError{Message: "booking link has expired"}
	}
	cand, err := e.Repo.GetCandidate(ctx, tx, link.CandidateID)
	if err != nil {
		return domain.Interview{}, notFound("candidate", link.CandidateID, err)
	}
	if cand.Archived {
		return domain.Interview{}, PreconditionError{Message: "candidate is no longer active"}
	}
	grid, err := e.slotsFor(ctx, tx, day, link.InterviewType)
	if err != nil {
		return domain.Interview{}, err
	}
	slot, ok := findSlot(grid, start)
	if !ok {
		return domain.Interview{}, ValidationError{Field: "time", Message: "not a bookable slot on that day"}
	}
	if !slot.Available {
		return domain.Interview{}, ConflictError{Message: "slot is no longer available"}
	}
	candNext, err := domain.NextCandidateStatus(cand.Status, domain.BookingEvent(link.InterviewType))
	if err != nil {
		return domain.Interview{}, conflict(err)
	}

	iv := domain.Interview{
		ID:            uuid.NewString(),
		CandidateID:   cand.ID,
		CandidateName: cand.Name,
		JobTitle:      cand.JobTitle,
		BranchName:    cand.BranchName,
		Type:          link.InterviewType,
		Status:        domain.InterviewScheduled,
		ScheduledDate: slot.Start.UTC(),
		Duration:      int(slot.End.Sub(slot.Start) / time.Minute),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.Repo.InsertInterview(ctx, tx, iv); err != nil {
		return domain.Interview{}, fmt.Errorf("insert interview: %w", err)
	}
	used, err := e.Repo.SetBookingLinkStatus(ctx, tx, link.ID, domain.LinkUsed, &now)
	if err != nil {
		return domain.Interview{}, err
	}
	if !used {
		return domain.Interview{}, ConflictError{Message: "booking link was used concurrently"}
	}
	if candNext != cand.Status {
		if err := e.Repo.SetCandidateStatus(ctx, tx, cand.ID, candNext, nil, now); err != nil {
			return domain.Interview{}, err
		}
	}
	if err := e.record(ctx, tx, BookingActor, events.Entry{
		EntityType:  "booking_link",
		EntityID:    link.ID,
		Action:      domain.ActionBookingLinkUsed,
		Description: fmt.Sprintf("%s booked a %s", cand.Name, iv.Type),
		Metadata:    events.Metadata{"candidate_id": cand.ID, "interview_id": iv.ID},
	}); err != nil {
		return domain.Interview{}, err
	}
	if err := e.record(ctx, tx, BookingActor, events.Entry{
		EntityType:  "interview",
		EntityID:    iv.ID,
		Action:      domain.ActionCreated,
		Description: fmt.Sprintf("%s scheduled for %s at %s", iv.Type, cand.Name, slot.Start.Format("2006-01-02 15:04 MST")),
		Metadata:    events.Metadata{"candidate_id": cand.ID, "candidate_from": cand.Status, "candidate_to": candNext},
	}); err != nil {
		return domain.Interview{}, err
	}
	return iv, tx.Commit()
}

func findSlot(grid []slots.TimeSlot, start time.Time) (slots.TimeSlot, bool) {
	for _, s := range grid {
		if s.Start.Equal(start) {
			return s, true
		}
	}
	return slots.TimeSlot{}, false
}
