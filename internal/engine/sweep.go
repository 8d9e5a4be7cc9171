package engine

import (
	"context"
	"fmt"
	"time"

	"recruitline/internal/domain"
	"recruitline/internal/events"
	"recruitline/internal/messaging"
)

// SystemActor attributes background job writes.
var SystemActor = Actor{ID: events.SystemUser, Name: "Scheduler"}

type SweepResult struct {
	Due     int `json:"due"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// SweepFeedbackReminders sends one feedback reminder per interview whose end
// passed more than the grace period ago without submitted feedback. Each
// interview is claimed before the message goes out, so overlapping or repeated
// runs never send twice. A failed send releases the claim for the next run.
func (e Engine) SweepFeedbackReminders(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := e.now()
	cutoff := now.Add(-time.Duration(e.Config.Sweep.GraceMinutes) * time.Minute)
	due, err := e.Repo.ListReminderCandidates(ctx, nil, cutoff)
	if err != nil {
		return res, err
	}
	enabled := messaging.Enabled(e.Messenger)
	for _, iv := range due {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if iv.EndsAt().After(cutoff) {
			continue
		}
		res.Due++
		if !enabled {
			// Left unclaimed so a later run with messaging configured sends it.
			res.Skipped++
			continue
		}
		claimed, err := e.Repo.ClaimReminder(ctx, nil, iv.ID, now)
		if err != nil {
			return res, fmt.Errorf("claim reminder %s: %w", iv.ID, err)
		}
		if !claimed {
			res.Skipped++
			continue
		}
		msg := messaging.Message{
			CandidateID:  iv.CandidateID,
			TemplateType: messaging.TemplateFeedbackReminder,
			CustomData: map[string]any{
				"interviewId":   iv.ID,
				"candidateName": iv.CandidateName,
				"type":          iv.Type,
				"scheduledDate": iv.ScheduledDate,
			},
		}
		if !e.notify(ctx, msg) {
			res.Failed++
			if err := e.Repo.ReleaseReminder(ctx, nil, iv.ID); err != nil {
				e.logger().Warn("release reminder claim", "interview_id", iv.ID, "err", err)
			}
			continue
		}
		res.Sent++
		if err := e.recordReminder(ctx, iv); err != nil {
			e.logger().Warn("record reminder", "interview_id", iv.ID, "err", err)
		}
	}
	return res, nil
}

func (e Engine) recordReminder(ctx context.Context, iv domain.Interview) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.record(ctx, tx, SystemActor, events.Entry{
		EntityType:  "interview",
		EntityID:    iv.ID,
		Action:      domain.ActionReminderSent,
		Description: fmt.Sprintf("feedback reminder sent for %s with %s", iv.Type, iv.CandidateName),
		Metadata:    events.Metadata{"candidate_id": iv.CandidateID},
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// ReconcileDisplayFields refreshes the candidate name, job title and branch
// cached on interviews.
func (e Engine) ReconcileDisplayFields(ctx context.Context) (int64, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	n, err := e.Repo.RefreshDisplayFields(ctx, tx, "", e.now())
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}
