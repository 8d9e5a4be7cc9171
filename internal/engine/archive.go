package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"recruitline/internal/domain"
	"recruitline/internal/engine/auth"
	"recruitline/internal/events"
	"recruitline/internal/repo"
)

func (e Engine) GetCandidate(ctx context.Context, id string) (domain.Candidate, error) {
	c, err := e.Repo.GetCandidate(ctx, nil, id)
	return c, notFound("candidate", id, err)
}

func (e Engine) ListCandidates(ctx context.Context, status string, archived *bool, limit int) ([]domain.Candidate, error) {
	if status != "" {
		if _, err := domain.ParseCandidateStatus(status); err != nil {
			return nil, ValidationError{Field: "status", Message: err.Error()}
		}
	}
	return e.Repo.ListCandidates(ctx, nil, repo.CandidateFilter{Status: status, Archived: archived, Limit: limit})
}

type CandidateInput struct {
	Name       string
	Email      string
	Phone      string
	CVRef      string
	JobTitle   string
	BranchName string
}

func (in CandidateInput) normalize() (CandidateInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = domain.NormalizeEmail(in.Email)
	in.Phone = domain.NormalizePhone(in.Phone)
	if in.Name == "" {
		return in, ValidationError{Field: "name", Message: "is required"}
	}
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return in, ValidationError{Field: "email", Message: "a valid email is required"}
	}
	return in, nil
}

// CreateCandidate registers a first-time applicant in status new.
func (e Engine) CreateCandidate(ctx context.Context, in CandidateInput, actor Actor) (domain.Candidate, error) {
	if err := e.require(ctx, actor, auth.PermCandidateCreate); err != nil {
		return domain.Candidate{}, err
	}
	in, err := in.normalize()
	if err != nil {
		return domain.Candidate{}, err
	}
	return e.createCandidate(ctx, in, actor)
}

func (e Engine) createCandidate(ctx context.Context, in CandidateInput, actor Actor) (domain.Candidate, error) {
	now := e.now()
	c := domain.Candidate{
		ID:               uuid.NewString(),
		Name:             in.Name,
		Email:            in.Email,
		Phone:            in.Phone,
		Status:           domain.CandidateNew,
		ApplicationCount: 1,
		JobTitle:         in.JobTitle,
		BranchName:       in.BranchName,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if in.CVRef != "" {
		c.CVRef = ptr(in.CVRef)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Candidate{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertCandidate(ctx, tx, c); err != nil {
		return domain.Candidate{}, fmt.Errorf("insert candidate: %w", err)
	}
	if err := e.record(ctx, tx, actor, events.Entry{
		EntityType:  "candidate",
		EntityID:    c.ID,
		Action:      domain.ActionCreated,
		Description: fmt.Sprintf("%s applied", c.Name),
		Metadata:    events.Metadata{"job_title": c.JobTitle, "branch_name": c.BranchName},
	}); err != nil {
		return domain.Candidate{}, err
	}
	return c, tx.Commit()
}

// UpdateCandidate edits contact and display fields and refreshes the display
// cache on the candidate's interviews in the same transaction.
func (e Engine) UpdateCandidate(ctx context.Context, id string, patch repo.CandidatePatch, actor Actor) (domain.Candidate, error) {
	if err := e.require(ctx, actor, auth.PermCandidateCreate); err != nil {
		return domain.Candidate{}, err
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return domain.Candidate{}, ValidationError{Field: "name", Message: "cannot be empty"}
	}
	if patch.Email != nil {
		patch.Email = ptr(domain.NormalizeEmail(*patch.Email))
	}
	if patch.Phone != nil {
		patch.Phone = ptr(domain.NormalizePhone(*patch.Phone))
	}
	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Candidate{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateCandidate(ctx, tx, id, patch, now); err != nil {
		return domain.Candidate{}, notFound("candidate", id, err)
	}
	refreshed, err := e.Repo.RefreshDisplayFields(ctx, tx, id, now)
	if err != nil {
		return domain.Candidate{}, err
	}
	if err := e.record(ctx, tx, actor, events.Entry{
		EntityType:  "candidate",
		EntityID:    id,
		Action:      domain.ActionUpdated,
		Description: "candidate details updated",
		Metadata:    events.Metadata{"interviews_refreshed": refreshed},
	}); err != nil {
		return domain.Candidate{}, err
	}
	c, err := e.Repo.GetCandidate(ctx, tx, id)
	if err != nil {
		return domain.Candidate{}, err
	}
	return c, tx.Commit()
}

type ArchiveResult struct {
	Candidate           domain.Candidate `json:"candidate"`
	InterviewsCancelled int64            `json:"interviews_cancelled"`
	LinksRevoked        int64            `json:"links_revoked"`
	AlreadyArchived     bool             `json:"already_archived"`
}

// Archive soft-deletes a candidate. The cascade (cancel scheduled interviews,
// revoke active links) commits first, then the candidate write and its audit
// entry. Every step is safe to repeat, so a failed archive is finished by
// calling it again.
func (e Engine) Archive(ctx context.Context, id, reason string, actor Actor) (ArchiveResult, error) {
	if err := e.require(ctx, actor, auth.PermCandidateArchive); err != nil {
		return ArchiveResult{}, err
	}
	if _, err := e.Repo.GetCandidate(ctx, nil, id); err != nil {
		return ArchiveResult{}, notFound("candidate", id, err)
	}
	var res ArchiveResult
	now := e.now()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()
	if res.InterviewsCancelled, err = e.Repo.CancelScheduledForCandidate(ctx, tx, id, "Candidate archived", actor.ID, now); err != nil {
		return res, fmt.Errorf("cancel interviews: %w", err)
	}
	if res.LinksRevoked, err = e.Repo.RevokeActiveLinks(ctx, tx, id); err != nil {
		return res, fmt.Errorf("revoke links: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}

	tx, err = e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()
	changed, err := e.Repo.ArchiveCandidate(ctx, tx, id, strings.TrimSpace(reason), actor.ID, now)
	if err != nil {
		return res, fmt.Errorf("archive candidate: %w", err)
	}
	res.AlreadyArchived = !changed
	if changed {
		if err := e.record(ctx, tx, actor, events.Entry{
			EntityType:  "candidate",
			EntityID:    id,
			Action:      domain.ActionArchived,
			Description: fmt.Sprintf("archived; %d interviews cancelled, %d booking links revoked", res.InterviewsCancelled, res.LinksRevoked),
			Metadata: events.Metadata{
				"reason":               reason,
				"interviews_cancelled": res.InterviewsCancelled,
				"links_revoked":        res.LinksRevoked,
			},
		}); err != nil {
			return res, err
		}
	}
	if res.Candidate, err = e.Repo.GetCandidate(ctx, tx, id); err != nil {
		return res, err
	}
	return res, tx.Commit()
}

// Restore brings an archived candidate back to the status it had when archived.
func (e Engine) Restore(ctx context.Context, id string, actor Actor) (domain.Candidate, error) {
	if err := e.require(ctx, actor, auth.PermCandidateRestore); err != nil {
		return domain.Candidate{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Candidate{}, err
	}
	defer tx.Rollback()
	cand, err := e.Repo.GetCandidate(ctx, tx, id)
	if err != nil {
		return domain.Candidate{}, notFound("candidate", id, err)
	}
	if !cand.Archived {
		return domain.Candidate{}, PreconditionError{Message: "candidate is not archived"}
	}
	if _, err := e.Repo.RestoreCandidate(ctx, tx, id, e.now()); err != nil {
		return domain.Candidate{}, err
	}
	restored, err := e.Repo.GetCandidate(ctx, tx, id)
	if err != nil {
		return domain.Candidate{}, err
	}
	if err := e.record(ctx, tx, actor, events.Entry{
		EntityType:  "candidate",
		EntityID:    id,
		Action:      domain.ActionRestored,
		Description: fmt.Sprintf("restored to %s", restored.Status),
		Metadata:    events.Metadata{"status": restored.Status},
	}); err != nil {
		return domain.Candidate{}, err
	}
	return restored, tx.Commit()
}

// ReturningMatch is the read-only result of a returning-applicant probe.
type ReturningMatch struct {
	CandidateID      string                  `json:"candidate_id"`
	Name             string                  `json:"name"`
	MatchedOn        string                  `json:"matched_on" enum:"email,phone"`
	Archived         bool                    `json:"archived"`
	Status           domain.CandidateStatus  `json:"status"`
	PreviousStatus   *domain.CandidateStatus `json:"previous_status,omitempty"`
	ApplicationCount int                     `json:"application_count"`
}

// ProbeReturning looks an applicant up by normalized email, then phone. It
// never writes.
func (e Engine) ProbeReturning(ctx context.Context, email, phone string) (*ReturningMatch, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, ValidationError{Field: "email", Message: "is required"}
	}
	on := "email"
	c, err := e.Repo.FindCandidateByEmail(ctx, nil, email)
	if errors.Is(err, repo.ErrNotFound) {
		on = "phone"
		c, err = e.Repo.FindCandidateByPhone(ctx, nil, domain.NormalizePhone(phone))
	}
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ReturningMatch{
		CandidateID:      c.ID,
		Name:             c.Name,
		MatchedOn:        on,
		Archived:         c.Archived,
		Status:           c.Status,
		PreviousStatus:   c.PreviousStatus,
		ApplicationCount: c.ApplicationCount,
	}, nil
}

type ReactivateOptions struct {
	Overrides repo.CandidatePatch
	// ApplicationKey identifies the new application; repeating a reactivation
	// with the same key changes nothing.
	ApplicationKey string
}

// Reactivate reopens an existing candidate for a new application.
func (e Engine) Reactivate(ctx context.Context, id string, opts ReactivateOptions, actor Actor) (domain.Candidate, error) {
	if err := e.require(ctx, actor, auth.PermCandidateReactivate); err != nil {
		return domain.Candidate{}, err
	}
	return e.reactivate(ctx, id, opts, actor)
}

func (e Engine) reactivate(ctx context.Context, id string, opts ReactivateOptions, actor Actor) (domain.Candidate, error) {
	p := opts.Overrides
	if p.Email != nil {
		p.Email = ptr(domain.NormalizeEmail(*p.Email))
	}
	if p.Phone != nil {
		p.Phone = ptr(domain.NormalizePhone(*p.Phone))
	}
	var key *string
	if k := strings.TrimSpace(opts.ApplicationKey); k != "" {
		key = &k
	}
	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Candidate{}, err
	}
	defer tx.Rollback()
	before, err := e.Repo.GetCandidate(ctx, tx, id)
	if err != nil {
		return domain.Candidate{}, notFound("candidate", id, err)
	}
	changed, err := e.Repo.ReactivateCandidate(ctx, tx, id, p, key, now)
	if err != nil {
		return domain.Candidate{}, fmt.Errorf("reactivate candidate: %w", err)
	}
	after, err := e.Repo.GetCandidate(ctx, tx, id)
	if err != nil {
		return domain.Candidate{}, err
	}
	if !changed {
		return after, nil
	}
	if _, err := e.Repo.RefreshDisplayFields(ctx, tx, id, now); err != nil {
		return domain.Candidate{}, err
	}
	if err := e.record(ctx, tx, actor, events.Entry{
		EntityType:  "candidate",
		EntityID:    id,
		Action:      domain.ActionReactivated,
		Description: fmt.Sprintf("returning applicant, application #%d", after.ApplicationCount),
		Metadata: events.Metadata{
			"from":              before.Status,
			"was_archived":      before.Archived,
			"application_count": after.ApplicationCount,
			"application_key":   opts.ApplicationKey,
		},
	}); err != nil {
		return domain.Candidate{}, err
	}
	return after, tx.Commit()
}

// HardDelete permanently removes an archived candidate together with their
// interviews and booking links.
func (e Engine) HardDelete(ctx context.Context, id string, actor Actor) (repo.CandidateFootprint, error) {
	if err := e.require(ctx, actor, auth.PermCandidateDelete); err != nil {
		return repo.CandidateFootprint{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return repo.CandidateFootprint{}, err
	}
	defer tx.Rollback()
	cand, err := e.Repo.GetCandidate(ctx, tx, id)
	if err != nil {
		return repo.CandidateFootprint{}, notFound("candidate", id, err)
	}
	if !cand.Archived {
		return repo.CandidateFootprint{}, PreconditionError{Message: "candidate must be archived before permanent deletion"}
	}
	counts, err := e.Repo.CountCandidateChildren(ctx, tx, id)
	if err != nil {
		return counts, err
	}
	if _, err := e.Repo.DeleteInterviewsForCandidate(ctx, tx, id); err != nil {
		return counts, err
	}
	if _, err := e.Repo.DeleteBookingLinksForCandidate(ctx, tx, id); err != nil {
		return counts, err
	}
	if err := e.Repo.DeleteCandidate(ctx, tx, id); err != nil {
		return counts, err
	}
	if err := e.record(ctx, tx, actor, events.Entry{
		EntityType:  "candidate",
		EntityID:    id,
		Action:      domain.ActionDeleted,
		Description: fmt.Sprintf("%s permanently deleted with %d interviews and %d booking links", cand.Name, counts.Interviews, counts.BookingLinks),
		Metadata:    events.Metadata{"interviews": counts.Interviews, "booking_links": counts.BookingLinks},
	}); err != nil {
		return counts, err
	}
	return counts, tx.Commit()
}

type ApplicationResult struct {
	Candidate   domain.Candidate `json:"candidate"`
	Created     bool             `json:"created"`
	Reactivated bool             `json:"reactivated"`
	// Duplicate marks an application from someone already in the live pipeline.
	Duplicate bool `json:"duplicate"`
}

// SubmitApplication routes an incoming application: unknown applicants are
// created, closed or archived ones are reactivated and live ones are returned
// untouched. Two concurrent first applications with the same email can both
// create a candidate.
func (e Engine) SubmitApplication(ctx context.Context, in CandidateInput, applicationKey string, actor Actor) (ApplicationResult, error) {
	if err := e.require(ctx, actor, auth.PermCandidateCreate); err != nil {
		return ApplicationResult{}, err
	}
	in, err := in.normalize()
	if err != nil {
		return ApplicationResult{}, err
	}
	match, err := e.ProbeReturning(ctx, in.Email, in.Phone)
	if err != nil {
		return ApplicationResult{}, err
	}
	if match == nil {
		c, err := e.createCandidate(ctx, in, actor)
		return ApplicationResult{Candidate: c, Created: err == nil}, err
	}
	if !match.Archived && match.Status != domain.CandidateRejected && match.Status != domain.CandidateWithdrawn {
		c, err := e.Repo.GetCandidate(ctx, nil, match.CandidateID)
		return ApplicationResult{Candidate: c, Duplicate: true}, err
	}
	patch := repo.CandidatePatch{Name: &in.Name, Email: &in.Email}
	if in.Phone != "" {
		patch.Phone = &in.Phone
	}
	if in.CVRef != "" {
		patch.CVRef = &in.CVRef
	}
	if in.JobTitle != "" {
		patch.JobTitle = &in.JobTitle
	}
	if in.BranchName != "" {
		patch.BranchName = &in.BranchName
	}
	c, err := e.reactivate(ctx, match.CandidateID, ReactivateOptions{Overrides: patch, ApplicationKey: applicationKey}, actor)
	return ApplicationResult{Candidate: c, Reactivated: err == nil}, err
}
