package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"recruitline/internal/domain"
)

const interviewColumns = `id,candidate_id,candidate_name,job_title,branch_name,type,status,scheduled_date,duration,rescheduled_from,
rescheduled_count,cancelled_at,cancelled_by,cancellation_reason,completed_at,feedback_json,reminder_sent_at,created_at,updated_at`

func scanInterview(row scanner) (domain.Interview, error) {
	var iv domain.Interview
	var name, job, branch, reschedFrom, cancelledAt, cancelledBy, cancelReason, completedAt, feedback, reminder sql.NullString
	var scheduled, createdAt, updatedAt string
	err := row.Scan(&iv.ID, &iv.CandidateID, &name, &job, &branch, &iv.Type, &iv.Status, &scheduled, &iv.Duration, &reschedFrom,
		&iv.RescheduledCount, &cancelledAt, &cancelledBy, &cancelReason, &completedAt, &feedback, &reminder, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return iv, ErrNotFound
	}
	if err != nil {
		return iv, err
	}
	iv.CandidateName = name.String
	iv.JobTitle = job.String
	iv.BranchName = branch.String
	iv.CancelledBy = stringPtr(cancelledBy)
	iv.CancellationReason = stringPtr(cancelReason)
	if feedback.Valid && feedback.String != "" {
		var fb domain.Feedback
		if err := json.Unmarshal([]byte(feedback.String), &fb); err != nil {
			return iv, fmt.Errorf("interview %s feedback: %w", iv.ID, err)
		}
		iv.Feedback = &fb
	}
	for _, p := range []struct {
		dst **time.Time
		src sql.NullString
	}{{&iv.RescheduledFrom, reschedFrom}, {&iv.CancelledAt, cancelledAt}, {&iv.CompletedAt, completedAt}, {&iv.ReminderSentAt, reminder}} {
		if *p.dst, err = timePtr(p.src); err != nil {
			return iv, err
		}
	}
	if iv.ScheduledDate, err = ParseTime(scheduled); err != nil {
		return iv, err
	}
	if iv.CreatedAt, err = ParseTime(createdAt); err != nil {
		return iv, err
	}
	if iv.UpdatedAt, err = ParseTime(updatedAt); err != nil {
		return iv, err
	}
	return iv, nil
}

func feedbackArgs(fb *domain.Feedback) (any, any, error) {
	if fb == nil {
		return nil, nil, nil
	}
	data, err := json.Marshal(fb)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal feedback: %w", err)
	}
	return string(data), nullableTime(fb.SubmittedAt), nil
}

func (r Repo) InsertInterview(ctx context.Context, tx *sql.Tx, iv domain.Interview) error {
	fb, submitted, err := feedbackArgs(iv.Feedback)
	if err != nil {
		return err
	}
	_, err = r.on(tx).ExecContext(ctx, `INSERT INTO interviews(`+interviewColumns+`,feedback_submitted_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		iv.ID, iv.CandidateID, nullable(iv.CandidateName), nullable(iv.JobTitle), nullable(iv.BranchName), string(iv.Type), string(iv.Status),
		FormatTime(iv.ScheduledDate), iv.Duration, nullableTime(iv.RescheduledFrom), iv.RescheduledCount, nullableTime(iv.CancelledAt),
		nullableStringPtr(iv.CancelledBy), nullableStringPtr(iv.CancellationReason), nullableTime(iv.CompletedAt), fb,
		nullableTime(iv.ReminderSentAt), FormatTime(iv.CreatedAt), FormatTime(iv.UpdatedAt), submitted)
	return err
}

// UpdateInterview writes every lifecycle field of iv. Display fields and the
// reminder claim are owned by their own statements and left alone.
func (r Repo) UpdateInterview(ctx context.Context, tx *sql.Tx, iv domain.Interview) error {
	fb, submitted, err := feedbackArgs(iv.Feedback)
	if err != nil {
		return err
	}
	res, err := r.on(tx).ExecContext(ctx, `UPDATE interviews SET status=?, scheduled_date=?, duration=?, rescheduled_from=?, rescheduled_count=?,
cancelled_at=?, cancelled_by=?, cancellation_reason=?, completed_at=?, feedback_json=?, feedback_submitted_at=?, updated_at=? WHERE id=?`,
		string(iv.Status), FormatTime(iv.ScheduledDate), iv.Duration, nullableTime(iv.RescheduledFrom), iv.RescheduledCount,
		nullableTime(iv.CancelledAt), nullableStringPtr(iv.CancelledBy), nullableStringPtr(iv.CancellationReason),
		nullableTime(iv.CompletedAt), fb, submitted, FormatTime(iv.UpdatedAt), iv.ID)
	if err != nil {
		return err
	}
	if n, _ := affected(res); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetInterview(ctx context.Context, tx *sql.Tx, id string) (domain.Interview, error) {
	return scanInterview(r.on(tx).QueryRowContext(ctx, `SELECT `+interviewColumns+` FROM interviews WHERE id=?`, id))
}

type InterviewFilter struct {
	CandidateID string
	Statuses    []domain.InterviewStatus
	Type        string
	// From and To bound scheduled_date as [From, To).
	From         *time.Time
	To           *time.Time
	WithFeedback *bool
	Limit        int
}

func (r Repo) ListInterviews(ctx context.Context, tx *sql.Tx, f InterviewFilter) ([]domain.Interview, error) {
	var clauses []string
	var args []any
	if f.CandidateID != "" {
		clauses = append(clauses, "candidate_id=?")
		args = append(args, f.CandidateID)
	}
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(s))
		}
		clauses = append(clauses, "status IN ("+strings.Join(marks, ",")+")")
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.From != nil {
		clauses = append(clauses, "scheduled_date>=?")
		args = append(args, FormatTime(*f.From))
	}
	if f.To != nil {
		clauses = append(clauses, "scheduled_date<?")
		args = append(args, FormatTime(*f.To))
	}
	if f.WithFeedback != nil {
		if *f.WithFeedback {
			clauses = append(clauses, "feedback_submitted_at IS NOT NULL")
		} else {
			clauses = append(clauses, "feedback_submitted_at IS NULL")
		}
	}
	query := `SELECT ` + interviewColumns + ` FROM interviews`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY scheduled_date, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.on(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Interview
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, iv)
	}
	return res, rows.Err()
}

// CancelScheduledForCandidate cancels every scheduled interview of a candidate
// and returns how many changed. Already cancelled rows are untouched.
func (r Repo) CancelScheduledForCandidate(ctx context.Context, tx *sql.Tx, candidateID, reason, by string, now time.Time) (int64, error) {
	ts := FormatTime(now)
	res, err := r.on(tx).ExecContext(ctx, `UPDATE interviews SET status=?, cancelled_at=?, cancelled_by=?, cancellation_reason=?, updated_at=?
WHERE candidate_id=? AND status=?`, string(domain.InterviewCancelled), ts, nullable(by), nullable(reason), ts,
		candidateID, string(domain.InterviewScheduled))
	if err != nil {
		return 0, err
	}
	return affected(res)
}

// DeleteInterviewsForCandidate removes every interview of a candidate.
func (r Repo) DeleteInterviewsForCandidate(ctx context.Context, tx *sql.Tx, candidateID string) (int64, error) {
	res, err := r.on(tx).ExecContext(ctx, `DELETE FROM interviews WHERE candidate_id=?`, candidateID)
	if err != nil {
		return 0, err
	}
	return affected(res)
}

// ClaimReminder sets reminder_sent_at only if it is still unset. It reports
// whether this caller won the claim.
func (r Repo) ClaimReminder(ctx context.Context, tx *sql.Tx, id string, now time.Time) (bool, error) {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE interviews SET reminder_sent_at=? WHERE id=? AND reminder_sent_at IS NULL`, FormatTime(now), id)
	if err != nil {
		return false, err
	}
	n, err := affected(res)
	return n > 0, err
}

// ReleaseReminder clears reminder_sent_at: after a failed send, or when the
// interview moves to a new occurrence.
func (r Repo) ReleaseReminder(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := r.on(tx).ExecContext(ctx, `UPDATE interviews SET reminder_sent_at=NULL WHERE id=?`, id)
	return err
}

// ListReminderCandidates returns open interviews that started at or before
// cutoff, have no submitted feedback and no reminder yet.
func (r Repo) ListReminderCandidates(ctx context.Context, tx *sql.Tx, cutoff time.Time) ([]domain.Interview, error) {
	rows, err := r.on(tx).QueryContext(ctx, `SELECT `+interviewColumns+` FROM interviews
WHERE status IN (?,?) AND feedback_submitted_at IS NULL AND reminder_sent_at IS NULL AND scheduled_date<=?
ORDER BY scheduled_date, id`, string(domain.InterviewScheduled), string(domain.InterviewCompleted), FormatTime(cutoff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Interview
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, iv)
	}
	return res, rows.Err()
}

// RefreshDisplayFields copies name, job title and branch from candidates onto
// their interviews where they differ, returning the number of rows touched.
func (r Repo) RefreshDisplayFields(ctx context.Context, tx *sql.Tx, candidateID string, now time.Time) (int64, error) {
	query := `UPDATE interviews SET
  candidate_name=(SELECT c.name FROM candidates c WHERE c.id=interviews.candidate_id),
  job_title=(SELECT c.job_title FROM candidates c WHERE c.id=interviews.candidate_id),
  branch_name=(SELECT c.branch_name FROM candidates c WHERE c.id=interviews.candidate_id),
  updated_at=?
WHERE EXISTS (
  SELECT 1 FROM candidates c WHERE c.id=interviews.candidate_id AND (
    c.name IS NOT interviews.candidate_name OR
    c.job_title IS NOT interviews.job_title OR
    c.branch_name IS NOT interviews.branch_name))`
	args := []any{FormatTime(now)}
	if candidateID != "" {
		query += ` AND interviews.candidate_id=?`
		args = append(args, candidateID)
	}
	res, err := r.on(tx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return affected(res)
}
