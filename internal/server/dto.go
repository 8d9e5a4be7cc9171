package server

import (
	"time"

	"recruitline/internal/domain"
	"recruitline/internal/engine"
	"recruitline/internal/repo"
	"recruitline/internal/slots"
)

// Request payloads

type CreateCandidateRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	CVRef      string `json:"cv_ref,omitempty"`
	JobTitle   string `json:"job_title,omitempty"`
	BranchName string `json:"branch_name,omitempty"`
}

func (r CreateCandidateRequest) input() engine.CandidateInput {
	return engine.CandidateInput{
		Name:       r.Name,
		Email:      r.Email,
		Phone:      r.Phone,
		CVRef:      r.CVRef,
		JobTitle:   r.JobTitle,
		BranchName: r.BranchName,
	}
}

type ApplicationRequest struct {
	CreateCandidateRequest
	ApplicationKey string `json:"application_key,omitempty" doc:"Idempotency key for this application"`
}

type UpdateCandidateRequest struct {
	Name       *string `json:"name,omitempty"`
	Email      *string `json:"email,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	CVRef      *string `json:"cv_ref,omitempty"`
	JobTitle   *string `json:"job_title,omitempty"`
	BranchName *string `json:"branch_name,omitempty"`
}

func (r UpdateCandidateRequest) patch() repo.CandidatePatch {
	return repo.CandidatePatch{
		Name:       r.Name,
		Email:      r.Email,
		Phone:      r.Phone,
		CVRef:      r.CVRef,
		JobTitle:   r.JobTitle,
		BranchName: r.BranchName,
	}
}

type ReactivateRequest struct {
	UpdateCandidateRequest
	ApplicationKey string `json:"application_key,omitempty"`
}

type ArchiveRequest struct {
	Reason string `json:"reason,omitempty"`
}

type BookingLinkRequest struct {
	InterviewType string `json:"interview_type" enum:"interview,trial"`
	Notify        bool   `json:"notify,omitempty" doc:"Send the link to the candidate"`
}

type RescheduleRequest struct {
	ScheduledDate time.Time `json:"scheduled_date"`
}

type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type FeedbackRequest struct {
	Rating         int    `json:"rating" minimum:"1" maximum:"5"`
	Recommendation string `json:"recommendation" enum:"hire,maybe,do_not_hire"`
	Strengths      string `json:"strengths,omitempty"`
	Weaknesses     string `json:"weaknesses,omitempty"`
	Comments       string `json:"comments,omitempty"`
}

type DecisionRequest struct {
	Note   string `json:"note,omitempty"`
	Notify bool   `json:"notify,omitempty" doc:"Send the rejection message (reject only)"`
}

type BookRequest struct {
	Date string `json:"date" example:"2024-03-05" doc:"Day in the scheduling timezone"`
	Time string `json:"time" example:"10:00"`
}

type DevLoginRequest struct {
	ActorID     string   `json:"actor_id"`
	Name        string   `json:"name,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Responses

type WhoAmIResponse struct {
	ActorID     string   `json:"actor_id"`
	Source      string   `json:"source"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type SlotsResponse struct {
	Date          string           `json:"date"`
	InterviewType string           `json:"interview_type"`
	Slots         []slots.TimeSlot `json:"slots"`
}

// BookingPageResponse is what the candidate sees; it carries no contact data.
type BookingPageResponse struct {
	InterviewType domain.InterviewType `json:"interview_type"`
	ExpiresAt     time.Time            `json:"expires_at"`
	Date          string               `json:"date"`
	Slots         []slots.TimeSlot     `json:"slots"`
}

type BookingConfirmation struct {
	InterviewID   string               `json:"interview_id"`
	InterviewType domain.InterviewType `json:"interview_type"`
	ScheduledDate time.Time            `json:"scheduled_date"`
	Duration      int                  `json:"duration"`
}

type HardDeleteResponse struct {
	CandidateID string                  `json:"candidate_id"`
	Deleted     repo.CandidateFootprint `json:"deleted"`
}

type ReturningResponse struct {
	Match *engine.ReturningMatch `json:"match"`
}

type paginatedActivity struct {
	Items      []domain.ActivityLogEntry `json:"items"`
	NextCursor string                    `json:"next_cursor,omitempty"`
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
