package domain

import (
	"strings"
	"time"
	"unicode"
)

type InterviewType string

const (
	InterviewTypeInterview InterviewType = "interview"
	InterviewTypeTrial     InterviewType = "trial"
)

func ParseInterviewType(s string) (InterviewType, bool) {
	switch t := InterviewType(strings.TrimSpace(s)); t {
	case InterviewTypeInterview, InterviewTypeTrial:
		return t, true
	}
	return "", false
}

type Recommendation string

const (
	RecommendationHire      Recommendation = "hire"
	RecommendationMaybe     Recommendation = "maybe"
	RecommendationDoNotHire Recommendation = "do_not_hire"
)

func ParseRecommendation(s string) (Recommendation, bool) {
	switch r := Recommendation(strings.TrimSpace(s)); r {
	case RecommendationHire, RecommendationMaybe, RecommendationDoNotHire:
		return r, true
	}
	return "", false
}

// DecisionEligible reports whether a recommendation needs human triage.
func (r Recommendation) DecisionEligible() bool {
	return r == RecommendationHire || r == RecommendationMaybe
}

type Candidate struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	Email                string           `json:"email"`
	Phone                string           `json:"phone,omitempty"`
	Status               CandidateStatus  `json:"status" enum:"new,screening,interview_scheduled,interview_complete,trial_scheduled,trial_complete,approved,rejected,withdrawn,archived"`
	Archived             bool             `json:"archived"`
	ArchivedReason       *string          `json:"archived_reason,omitempty"`
	ArchivedAt           *time.Time       `json:"archived_at,omitempty"`
	ArchivedBy           *string          `json:"archived_by,omitempty"`
	PreviousStatus       *CandidateStatus `json:"previous_status,omitempty"`
	ApplicationCount     int              `json:"application_count"`
	IsReturningCandidate bool             `json:"is_returning_candidate"`
	WithdrawalReason     *string          `json:"withdrawal_reason,omitempty"`
	CVRef                *string          `json:"cv_ref,omitempty"`
	JobTitle             string           `json:"job_title,omitempty"`
	BranchName           string           `json:"branch_name,omitempty"`
	LastApplicationKey   *string          `json:"-"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

type Feedback struct {
	Rating         int            `json:"rating" minimum:"1" maximum:"5"`
	Recommendation Recommendation `json:"recommendation" enum:"hire,maybe,do_not_hire"`
	Strengths      string         `json:"strengths,omitempty"`
	Weaknesses     string         `json:"weaknesses,omitempty"`
	Comments       string         `json:"comments,omitempty"`
	SubmittedAt    *time.Time     `json:"submitted_at,omitempty"`
	SubmittedBy    string         `json:"submitted_by,omitempty"`
}

// Interview covers both interviews and trial shifts. CandidateName, JobTitle
// and BranchName are a display cache refreshed by ReconcileDisplayFields and
// may lag behind the candidate record.
type Interview struct {
	ID                 string          `json:"id"`
	CandidateID        string          `json:"candidate_id"`
	CandidateName      string          `json:"candidate_name,omitempty"`
	JobTitle           string          `json:"job_title,omitempty"`
	BranchName         string          `json:"branch_name,omitempty"`
	Type               InterviewType   `json:"type" enum:"interview,trial"`
	Status             InterviewStatus `json:"status" enum:"scheduled,completed,cancelled,no_show"`
	ScheduledDate      time.Time       `json:"scheduled_date"`
	Duration           int             `json:"duration"`
	RescheduledFrom    *time.Time      `json:"rescheduled_from,omitempty"`
	RescheduledCount   int             `json:"rescheduled_count"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	CancelledBy        *string         `json:"cancelled_by,omitempty"`
	CancellationReason *string         `json:"cancellation_reason,omitempty"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	Feedback           *Feedback       `json:"feedback,omitempty"`
	ReminderSentAt     *time.Time      `json:"reminder_sent_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// HasFeedback is true only once feedback was submitted; a draft without
// SubmittedAt does not count.
func (iv Interview) HasFeedback() bool {
	return iv.Feedback != nil && iv.Feedback.SubmittedAt != nil
}

// EndsAt returns the end of the booked interval.
func (iv Interview) EndsAt() time.Time {
	return iv.ScheduledDate.Add(time.Duration(iv.Duration) * time.Minute)
}

// Lapsed reports a scheduled interview whose start time has passed.
func (iv Interview) Lapsed(now time.Time) bool {
	return iv.Status == InterviewScheduled && !iv.ScheduledDate.After(now)
}

type BookingLinkStatus string

const (
	LinkActive    BookingLinkStatus = "active"
	LinkUsed      BookingLinkStatus = "used"
	LinkExpired   BookingLinkStatus = "expired"
	LinkRevoked   BookingLinkStatus = "revoked"
	LinkCancelled BookingLinkStatus = "cancelled"
)

type BookingLink struct {
	ID            string            `json:"id"`
	CandidateID   string            `json:"candidate_id"`
	Token         string            `json:"token"`
	InterviewType InterviewType     `json:"interview_type" enum:"interview,trial"`
	Status        BookingLinkStatus `json:"status" enum:"active,used,expired,revoked,cancelled"`
	ExpiresAt     time.Time         `json:"expires_at"`
	UsedAt        *time.Time        `json:"used_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Usable reports whether the link may still be redeemed at now.
func (l BookingLink) Usable(now time.Time) bool {
	return l.Status == LinkActive && now.Before(l.ExpiresAt)
}

type ActivityAction string

const (
	ActionCreated            ActivityAction = "created"
	ActionUpdated            ActivityAction = "updated"
	ActionDeleted            ActivityAction = "deleted"
	ActionStatusChanged      ActivityAction = "status_changed"
	ActionFeedbackSubmitted  ActivityAction = "feedback_submitted"
	ActionMessageSent        ActivityAction = "message_sent"
	ActionBookingLinkCreated ActivityAction = "booking_link_created"
	ActionBookingLinkUsed    ActivityAction = "booking_link_used"
	ActionArchived           ActivityAction = "archived"
	ActionRestored           ActivityAction = "restored"
	ActionReactivated        ActivityAction = "reactivated"
	ActionReminderSent       ActivityAction = "reminder_sent"
)

type ActivityLogEntry struct {
	ID          int64          `json:"id"`
	EntityType  string         `json:"entity_type"`
	EntityID    string         `json:"entity_id"`
	Action      ActivityAction `json:"action"`
	Description string         `json:"description"`
	UserID      string         `json:"user_id"`
	UserName    string         `json:"user_name,omitempty"`
	Metadata    string         `json:"metadata_json,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// NormalizeEmail lower-cases and trims an email for deduplication.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone keeps digits only, folding decimal digits of any script to
// ASCII so the same number typed in two scripts yields one key.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteByte('0' + asciiDigit(r))
		}
	}
	return b.String()
}

// asciiDigit returns the value of a decimal digit. Unicode encodes every
// decimal digit set as contiguous runs of 0..9, so the offset from the start
// of the run gives the value.
func asciiDigit(r rune) byte {
	start := r
	for unicode.IsDigit(start - 1) {
		start--
	}
	return byte((r - start) % 10)
}

// APIKey authenticates an actor; only the hash is stored.
type APIKey struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actor_id"`
	Name      string    `json:"name,omitempty"`
	KeyHash   string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
