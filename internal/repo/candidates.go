package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"recruitline/internal/domain"
)

const candidateColumns = `id,name,email,phone,status,archived,archived_reason,archived_at,archived_by,previous_status,
application_count,is_returning_candidate,withdrawal_reason,cv_ref,job_title,branch_name,last_application_key,created_at,updated_at`

func scanCandidate(row scanner) (domain.Candidate, error) {
	var c domain.Candidate
	var phone, archivedReason, archivedAt, archivedBy, prevStatus, withdrawal, cv, job, branch, appKey sql.NullString
	var archived, returning int
	var createdAt, updatedAt string
	err := row.Scan(&c.ID, &c.Name, &c.Email, &phone, &c.Status, &archived, &archivedReason, &archivedAt, &archivedBy, &prevStatus,
		&c.ApplicationCount, &returning, &withdrawal, &cv, &job, &branch, &appKey, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.Phone = phone.String
	c.Archived = archived == 1
	c.IsReturningCandidate = returning == 1
	c.ArchivedReason = stringPtr(archivedReason)
	c.ArchivedBy = stringPtr(archivedBy)
	c.WithdrawalReason = stringPtr(withdrawal)
	c.CVRef = stringPtr(cv)
	c.JobTitle = job.String
	c.BranchName = branch.String
	c.LastApplicationKey = stringPtr(appKey)
	if prevStatus.Valid {
		s := domain.CandidateStatus(prevStatus.String)
		c.PreviousStatus = &s
	}
	if c.ArchivedAt, err = timePtr(archivedAt); err != nil {
		return c, err
	}
	if c.CreatedAt, err = ParseTime(createdAt); err != nil {
		return c, err
	}
	if c.UpdatedAt, err = ParseTime(updatedAt); err != nil {
		return c, err
	}
	return c, nil
}

func (r Repo) InsertCandidate(ctx context.Context, tx *sql.Tx, c domain.Candidate) error {
	var prev any
	if c.PreviousStatus != nil {
		prev = string(*c.PreviousStatus)
	}
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO candidates(`+candidateColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Name, c.Email, nullable(c.Phone), string(c.Status), boolInt(c.Archived), nullableStringPtr(c.ArchivedReason),
		nullableTime(c.ArchivedAt), nullableStringPtr(c.ArchivedBy), prev, c.ApplicationCount, boolInt(c.IsReturningCandidate),
		nullableStringPtr(c.WithdrawalReason), nullableStringPtr(c.CVRef), nullable(c.JobTitle), nullable(c.BranchName),
		nullableStringPtr(c.LastApplicationKey), FormatTime(c.CreatedAt), FormatTime(c.UpdatedAt))
	return err
}

func (r Repo) GetCandidate(ctx context.Context, tx *sql.Tx, id string) (domain.Candidate, error) {
	return scanCandidate(r.on(tx).QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id=?`, id))
}

// FindCandidateByEmail matches the normalized email; oldest record wins.
func (r Repo) FindCandidateByEmail(ctx context.Context, tx *sql.Tx, email string) (domain.Candidate, error) {
	return scanCandidate(r.on(tx).QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE email=? ORDER BY created_at, id LIMIT 1`, email))
}

// FindCandidateByPhone matches the digits-only phone; oldest record wins.
func (r Repo) FindCandidateByPhone(ctx context.Context, tx *sql.Tx, phone string) (domain.Candidate, error) {
	if phone == "" {
		return domain.Candidate{}, ErrNotFound
	}
	return scanCandidate(r.on(tx).QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE phone=? ORDER BY created_at, id LIMIT 1`, phone))
}

type CandidateFilter struct {
	Status   string
	Archived *bool
	Limit    int
}

func (r Repo) ListCandidates(ctx context.Context, tx *sql.Tx, f CandidateFilter) ([]domain.Candidate, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Archived != nil {
		clauses = append(clauses, "archived=?")
		args = append(args, boolInt(*f.Archived))
	}
	query := `SELECT ` + candidateColumns + ` FROM candidates`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.on(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// SetCandidateStatus writes a pipeline transition. withdrawalReason is only
// written when non-nil.
func (r Repo) SetCandidateStatus(ctx context.Context, tx *sql.Tx, id string, status domain.CandidateStatus, withdrawalReason *string, now time.Time) error {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE candidates SET status=?, withdrawal_reason=COALESCE(?, withdrawal_reason), updated_at=? WHERE id=?`,
		string(status), nullableStringPtr(withdrawalReason), FormatTime(now), id)
	if err != nil {
		return err
	}
	if n, _ := affected(res); n == 0 {
		return ErrNotFound
	}
	return nil
}

type CandidatePatch struct {
	Name       *string
	Email      *string
	Phone      *string
	JobTitle   *string
	BranchName *string
	CVRef      *string
}

func (p CandidatePatch) assignments() ([]string, []any) {
	var fields []string
	var args []any
	add := func(col string, v *string) {
		if v != nil {
			fields = append(fields, col+"=?")
			args = append(args, nullable(*v))
		}
	}
	add("name", p.Name)
	add("email", p.Email)
	add("phone", p.Phone)
	add("job_title", p.JobTitle)
	add("branch_name", p.BranchName)
	add("cv_ref", p.CVRef)
	return fields, args
}

func (r Repo) UpdateCandidate(ctx context.Context, tx *sql.Tx, id string, p CandidatePatch, now time.Time) error {
	fields, args := p.assignments()
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, FormatTime(now), id)
	res, err := r.on(tx).ExecContext(ctx, fmt.Sprintf(`UPDATE candidates SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := affected(res); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ArchiveCandidate snapshots the live status and marks the candidate archived.
// It reports false when the candidate was already archived, leaving the
// original snapshot intact.
func (r Repo) ArchiveCandidate(ctx context.Context, tx *sql.Tx, id, reason, by string, now time.Time) (bool, error) {
	ts := FormatTime(now)
	res, err := r.on(tx).ExecContext(ctx, `UPDATE candidates SET previous_status=status, status=?, archived=1, archived_reason=?, archived_at=?, archived_by=?, updated_at=?
WHERE id=? AND archived=0`, string(domain.CandidateArchived), nullable(reason), ts, nullable(by), ts, id)
	if err != nil {
		return false, err
	}
	n, err := affected(res)
	return n > 0, err
}

// RestoreCandidate reverts to the snapshotted status, or new when none.
func (r Repo) RestoreCandidate(ctx context.Context, tx *sql.Tx, id string, now time.Time) (bool, error) {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE candidates SET status=COALESCE(previous_status, ?), archived=0, archived_reason=NULL, archived_at=NULL, archived_by=NULL,
previous_status=NULL, updated_at=? WHERE id=? AND archived=1`, string(domain.CandidateNew), FormatTime(now), id)
	if err != nil {
		return false, err
	}
	n, err := affected(res)
	return n > 0, err
}

// ReactivateCandidate reopens a candidate for a new application. The counter
// is incremented in SQL. When key is set, a repeat with the same key matches
// no row and reports false.
func (r Repo) ReactivateCandidate(ctx context.Context, tx *sql.Tx, id string, p CandidatePatch, key *string, now time.Time) (bool, error) {
	fields, args := p.assignments()
	fields = append(fields,
		"archived=0", "status=?", "is_returning_candidate=1", "application_count=application_count+1",
		"archived_reason=NULL", "archived_at=NULL", "archived_by=NULL", "previous_status=NULL", "withdrawal_reason=NULL",
		"last_application_key=COALESCE(?, last_application_key)", "updated_at=?")
	args = append(args, string(domain.CandidateNew), nullableStringPtr(key), FormatTime(now), id)
	query := fmt.Sprintf(`UPDATE candidates SET %s WHERE id=?`, strings.Join(fields, ","))
	if key != nil && *key != "" {
		query += ` AND (last_application_key IS NULL OR last_application_key<>?)`
		args = append(args, *key)
	}
	res, err := r.on(tx).ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := affected(res)
	return n > 0, err
}

func (r Repo) DeleteCandidate(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.on(tx).ExecContext(ctx, `DELETE FROM candidates WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := affected(res); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CandidateFootprint counts the child records a hard delete would remove.
type CandidateFootprint struct {
	Interviews   int `json:"interviews"`
	BookingLinks int `json:"booking_links"`
}

func (r Repo) CountCandidateChildren(ctx context.Context, tx *sql.Tx, id string) (CandidateFootprint, error) {
	var f CandidateFootprint
	err := r.on(tx).QueryRowContext(ctx, `SELECT
(SELECT COUNT(*) FROM interviews WHERE candidate_id=?),
(SELECT COUNT(*) FROM booking_links WHERE candidate_id=?)`, id, id).Scan(&f.Interviews, &f.BookingLinks)
	return f, err
}
