package repo

import (
	"context"
	"database/sql"
	"time"

	"recruitline/internal/domain"
)

const linkColumns = `id,candidate_id,token,interview_type,status,expires_at,used_at,created_at`

func scanLink(row scanner) (domain.BookingLink, error) {
	var l domain.BookingLink
	var usedAt sql.NullString
	var expiresAt, createdAt string
	err := row.Scan(&l.ID, &l.CandidateID, &l.Token, &l.InterviewType, &l.Status, &expiresAt, &usedAt, &createdAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	if l.ExpiresAt, err = ParseTime(expiresAt); err != nil {
		return l, err
	}
	if l.CreatedAt, err = ParseTime(createdAt); err != nil {
		return l, err
	}
	l.UsedAt, err = timePtr(usedAt)
	return l, err
}

func (r Repo) InsertBookingLink(ctx context.Context, tx *sql.Tx, l domain.BookingLink) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO booking_links(`+linkColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		l.ID, l.CandidateID, l.Token, string(l.InterviewType), string(l.Status), FormatTime(l.ExpiresAt), nullableTime(l.UsedAt), FormatTime(l.CreatedAt))
	return err
}

func (r Repo) GetBookingLinkByToken(ctx context.Context, tx *sql.Tx, token string) (domain.BookingLink, error) {
	return scanLink(r.on(tx).QueryRowContext(ctx, `SELECT `+linkColumns+` FROM booking_links WHERE token=?`, token))
}

func (r Repo) ListBookingLinks(ctx context.Context, tx *sql.Tx, candidateID string) ([]domain.BookingLink, error) {
	rows, err := r.on(tx).QueryContext(ctx, `SELECT `+linkColumns+` FROM booking_links WHERE candidate_id=? ORDER BY created_at DESC, id DESC`, candidateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BookingLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

// SetBookingLinkStatus moves a link out of active. It only matches active
// links and reports whether one changed.
func (r Repo) SetBookingLinkStatus(ctx context.Context, tx *sql.Tx, id string, status domain.BookingLinkStatus, usedAt *time.Time) (bool, error) {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE booking_links SET status=?, used_at=COALESCE(?, used_at) WHERE id=? AND status=?`,
		string(status), nullableTime(usedAt), id, string(domain.LinkActive))
	if err != nil {
		return false, err
	}
	n, err := affected(res)
	return n > 0, err
}

// RevokeActiveLinks revokes every active link of a candidate.
func (r Repo) RevokeActiveLinks(ctx context.Context, tx *sql.Tx, candidateID string) (int64, error) {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE booking_links SET status=? WHERE candidate_id=? AND status=?`,
		string(domain.LinkRevoked), candidateID, string(domain.LinkActive))
	if err != nil {
		return 0, err
	}
	return affected(res)
}

func (r Repo) DeleteBookingLinksForCandidate(ctx context.Context, tx *sql.Tx, candidateID string) (int64, error) {
	res, err := r.on(tx).ExecContext(ctx, `DELETE FROM booking_links WHERE candidate_id=?`, candidateID)
	if err != nil {
		return 0, err
	}
	return affected(res)
}
