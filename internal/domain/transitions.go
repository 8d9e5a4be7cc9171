package domain

import "fmt"

// Interview lifecycle:
//
//	scheduled ──reschedule──► scheduled
//	scheduled ──cancel──────► cancelled
//	scheduled ──complete────► completed
//	scheduled ──no_show─────► no_show
//	scheduled|completed|no_show ──submit_feedback──► completed
//
// cancelled is terminal; completed and no_show only accept feedback.

type InterviewStatus string

const (
	InterviewScheduled InterviewStatus = "scheduled"
	InterviewCompleted InterviewStatus = "completed"
	InterviewCancelled InterviewStatus = "cancelled"
	InterviewNoShow    InterviewStatus = "no_show"
)

type InterviewEvent string

const (
	EventReschedule     InterviewEvent = "reschedule"
	EventCancel         InterviewEvent = "cancel"
	EventComplete       InterviewEvent = "complete"
	EventNoShow         InterviewEvent = "no_show"
	EventSubmitFeedback InterviewEvent = "submit_feedback"
)

var interviewTransitions = map[InterviewStatus]map[InterviewEvent]InterviewStatus{
	InterviewScheduled: {
		EventReschedule:     InterviewScheduled,
		EventCancel:         InterviewCancelled,
		EventComplete:       InterviewCompleted,
		EventNoShow:         InterviewNoShow,
		EventSubmitFeedback: InterviewCompleted,
	},
	InterviewCompleted: {
		EventSubmitFeedback: InterviewCompleted,
	},
	InterviewNoShow: {
		EventSubmitFeedback: InterviewCompleted,
	},
}

// TransitionError reports a (state, event) pair missing from a table.
type TransitionError struct {
	Entity string
	From   string
	Event  string
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("%s cannot %s from status %s", e.Entity, e.Event, e.From)
}

func ParseInterviewStatus(s string) (InterviewStatus, error) {
	st := InterviewStatus(s)
	switch st {
	case InterviewScheduled, InterviewCompleted, InterviewCancelled, InterviewNoShow:
		return st, nil
	}
	return "", fmt.Errorf("unknown interview status %q", s)
}

// NextInterviewStatus looks up the interview transition table.
func NextInterviewStatus(from InterviewStatus, ev InterviewEvent) (InterviewStatus, error) {
	if to, ok := interviewTransitions[from][ev]; ok {
		return to, nil
	}
	return "", TransitionError{Entity: "interview", From: string(from), Event: string(ev)}
}

// Candidate pipeline. Booking and feedback events are raised by the interview
// lifecycle; approve/reject/schedule_trial are decision actions. no_show and
// archive apply from any status and are handled outside the table.

type CandidateStatus string

const (
	CandidateNew                CandidateStatus = "new"
	CandidateScreening          CandidateStatus = "screening"
	CandidateInterviewScheduled CandidateStatus = "interview_scheduled"
	CandidateInterviewComplete  CandidateStatus = "interview_complete"
	CandidateTrialScheduled     CandidateStatus = "trial_scheduled"
	CandidateTrialComplete      CandidateStatus = "trial_complete"
	CandidateApproved           CandidateStatus = "approved"
	CandidateRejected           CandidateStatus = "rejected"
	CandidateWithdrawn          CandidateStatus = "withdrawn"
	CandidateArchived           CandidateStatus = "archived"
)

type CandidateEvent string

const (
	CandidateScreen        CandidateEvent = "screen"
	CandidateBookInterview CandidateEvent = "book_interview"
	CandidateBookTrial     CandidateEvent = "book_trial"
	CandidateInterviewDone CandidateEvent = "interview_done"
	CandidateTrialDone     CandidateEvent = "trial_done"
	CandidateApprove       CandidateEvent = "approve"
	CandidateReject        CandidateEvent = "reject"
	CandidateScheduleTrial CandidateEvent = "schedule_trial"
	CandidateWithdraw      CandidateEvent = "withdraw"
	CandidateNoShow        CandidateEvent = "no_show"
	CandidateArchive       CandidateEvent = "archive"
)

var candidateTransitions = map[CandidateStatus]map[CandidateEvent]CandidateStatus{
	CandidateNew: {
		CandidateScreen:        CandidateScreening,
		CandidateBookInterview: CandidateInterviewScheduled,
		CandidateBookTrial:     CandidateTrialScheduled,
		CandidateReject:        CandidateRejected,
		CandidateWithdraw:      CandidateWithdrawn,
	},
	CandidateScreening: {
		CandidateBookInterview: CandidateInterviewScheduled,
		CandidateBookTrial:     CandidateTrialScheduled,
		CandidateReject:        CandidateRejected,
		CandidateWithdraw:      CandidateWithdrawn,
	},
	CandidateInterviewScheduled: {
		CandidateBookInterview: CandidateInterviewScheduled,
		CandidateBookTrial:     CandidateTrialScheduled,
		CandidateInterviewDone: CandidateInterviewComplete,
		CandidateReject:        CandidateRejected,
		CandidateWithdraw:      CandidateWithdrawn,
	},
	CandidateInterviewComplete: {
		CandidateBookInterview: CandidateInterviewScheduled,
		CandidateBookTrial:     CandidateTrialScheduled,
		CandidateApprove:       CandidateApproved,
		CandidateReject:        CandidateRejected,
		CandidateScheduleTrial: CandidateTrialScheduled,
		CandidateWithdraw:      CandidateWithdrawn,
	},
	CandidateTrialScheduled: {
		CandidateBookTrial: CandidateTrialScheduled,
		CandidateTrialDone: CandidateTrialComplete,
		CandidateReject:    CandidateRejected,
		CandidateWithdraw:  CandidateWithdrawn,
	},
	CandidateTrialComplete: {
		CandidateBookTrial: CandidateTrialScheduled,
		CandidateApprove:   CandidateApproved,
		CandidateReject:    CandidateRejected,
		CandidateWithdraw:  CandidateWithdrawn,
	},
	CandidateApproved: {
		CandidateWithdraw: CandidateWithdrawn,
	},
	// rejected, withdrawn and archived leave the pipeline; only the archive
	// manager (restore, reactivate) brings them back.
}

func ParseCandidateStatus(s string) (CandidateStatus, error) {
	st := CandidateStatus(s)
	switch st {
	case CandidateNew, CandidateScreening, CandidateInterviewScheduled, CandidateInterviewComplete,
		CandidateTrialScheduled, CandidateTrialComplete, CandidateApproved, CandidateRejected,
		CandidateWithdrawn, CandidateArchived:
		return st, nil
	}
	return "", fmt.Errorf("unknown candidate status %q", s)
}

// NextCandidateStatus looks up the pipeline table. no_show forces withdrawn
// from every status; archive applies to every status except archived.
func NextCandidateStatus(from CandidateStatus, ev CandidateEvent) (CandidateStatus, error) {
	switch ev {
	case CandidateNoShow:
		return CandidateWithdrawn, nil
	case CandidateArchive:
		if from != CandidateArchived {
			return CandidateArchived, nil
		}
	}
	if to, ok := candidateTransitions[from][ev]; ok {
		return to, nil
	}
	return "", TransitionError{Entity: "candidate", From: string(from), Event: string(ev)}
}

// IsDecisionStatus reports the statuses in which decision actions apply.
func IsDecisionStatus(s CandidateStatus) bool {
	return s == CandidateInterviewComplete || s == CandidateTrialComplete
}

// BookingEvent maps an interview type to the pipeline event raised when it is booked.
func BookingEvent(t InterviewType) CandidateEvent {
	if t == InterviewTypeTrial {
		return CandidateBookTrial
	}
	return CandidateBookInterview
}

// FeedbackEvent maps an interview type to the pipeline event raised by its feedback.
func FeedbackEvent(t InterviewType) CandidateEvent {
	if t == InterviewTypeTrial {
		return CandidateTrialDone
	}
	return CandidateInterviewDone
}
