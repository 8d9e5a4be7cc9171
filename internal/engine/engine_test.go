package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"recruitline/internal/config"
	"recruitline/internal/db"
	"recruitline/internal/domain"
	"recruitline/internal/engine"
	"recruitline/internal/engine/auth"
	"recruitline/internal/messaging"
	"recruitline/internal/migrate"
	"recruitline/internal/repo"
)

// 2024-03-04 is a Monday.
var base = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

var (
	recruiter   = engine.Actor{ID: "recruiter-1", Name: "Rita"}
	admin       = engine.Actor{ID: "admin-1", Name: "Ada"}
	interviewer = engine.Actor{ID: "interviewer-1", Name: "Ivan"}
)

type recorder struct {
	mu   sync.Mutex
	msgs []messaging.Message
	fail error
}

func (r *recorder) Send(_ context.Context, m messaging.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recorder) count(template string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m.TemplateType == template {
			n++
		}
	}
	return n
}

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Clock  *time.Time
	Msgs   *recorder
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	ctx := context.Background()
	rbac := auth.Service{DB: conn}
	if err := rbac.SeedRoles(ctx, cfg.RBAC.Roles); err != nil {
		t.Fatalf("seed roles: %v", err)
	}
	for actor, role := range map[string]string{recruiter.ID: "recruiter", admin.ID: "super_admin", interviewer.ID: "interviewer"} {
		if err := rbac.Grant(ctx, actor, role); err != nil {
			t.Fatalf("grant %s: %v", role, err)
		}
	}
	clock := base
	msgs := &recorder{}
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return clock }
	eng.Messenger = msgs
	return testEnv{Engine: eng, Ctx: ctx, Clock: &clock, Msgs: msgs}
}

func (env testEnv) candidate(t *testing.T, name, email string, status domain.CandidateStatus) domain.Candidate {
	t.Helper()
	c, err := env.Engine.CreateCandidate(env.Ctx, engine.CandidateInput{Name: name, Email: email, JobTitle: "Barista", BranchName: "Soho"}, recruiter)
	if err != nil {
		t.Fatalf("create candidate: %v", err)
	}
	if status != domain.CandidateNew {
		if err := env.Engine.Repo.SetCandidateStatus(env.Ctx, nil, c.ID, status, nil, base); err != nil {
			t.Fatalf("set status: %v", err)
		}
		c.Status = status
	}
	return c
}

func (env testEnv) interview(t *testing.T, c domain.Candidate, typ domain.InterviewType, status domain.InterviewStatus, at time.Time, fb *domain.Feedback) domain.Interview {
	t.Helper()
	iv := domain.Interview{
		ID:            uuid.NewString(),
		CandidateID:   c.ID,
		CandidateName: c.Name,
		Type:          typ,
		Status:        status,
		ScheduledDate: at,
		Duration:      30,
		Feedback:      fb,
		CreatedAt:     base,
		UpdatedAt:     base,
	}
	if err := env.Engine.Repo.InsertInterview(env.Ctx, nil, iv); err != nil {
		t.Fatalf("insert interview: %v", err)
	}
	return iv
}

func submitted(rec domain.Recommendation, at time.Time) *domain.Feedback {
	return &domain.Feedback{Rating: 4, Recommendation: rec, SubmittedAt: &at, SubmittedBy: interviewer.ID}
}

func (env testEnv) activityCount(t *testing.T) int {
	t.Helper()
	var n int
	if err := env.Engine.DB.QueryRowContext(env.Ctx, `SELECT COUNT(*) FROM activity_log`).Scan(&n); err != nil {
		t.Fatalf("count activity: %v", err)
	}
	return n
}

func (env testEnv) reload(t *testing.T, id string) domain.Candidate {
	t.Helper()
	c, err := env.Engine.GetCandidate(env.Ctx, id)
	if err != nil {
		t.Fatalf("get candidate: %v", err)
	}
	return c
}

func expectErr[T error](t *testing.T, err error) {
	t.Helper()
	var target T
	if !errors.As(err, &target) {
		t.Fatalf("expected %T, got %v", target, err)
	}
}

func TestNoShowWithdrawsCandidateOnce(t *testing.T) {
	env := newTestEnv(t)
	c := env.candidate(t, "Nina", "nina@example.com", domain.CandidateInterviewScheduled)
	iv := env.interview(t, c, domain.InterviewTypeInterview, domain.InterviewScheduled, base.Add(-time.Hour), nil)
	before := env.activityCount(t)

	got, err := env.Engine.MarkNoShow(env.Ctx, iv.ID, recruiter)
	if err != nil {
		t.Fatalf("no show: %v", err)
	}
	if got.Status != domain.InterviewNoShow {
		t.Fatalf("interview status %s", got.Status)
	}
	cand := env.reload(t, c.ID)
	if cand.Status != domain.CandidateWithdrawn || cand.WithdrawalReason == nil || *cand.WithdrawalReason != "No show to interview" {
		t.Fatalf("candidate not withdrawn: %+v", cand)
	}
	if n := env.activityCount(t); n != before+1 {
		t.Fatalf("expected exactly one activity entry, got %d", n-before)
	}

	if _, err := env.Engine.MarkNoShow(env.Ctx, iv.ID, recruiter); err != nil {
		t.Fatalf("repeat no show: %v", err)
	}
	if n := env.activityCount(t); n != before+1 {
		t.Fatalf("repeat wrote %d more entries", n-before-1)
	}
	if again := env.reload(t, c.ID); again.Status != domain.CandidateWithdrawn {
		t.Fatalf("repeat changed candidate: %s", again.Status)
	}
}

func TestNoShowFromTrialUsesType(t *testing.T) {
	env := newTestEnv(t)
	c := env.candidate(t, "Tom", "tom@example.com", domain.CandidateApproved)
	iv := env.interview(t, c, domain.InterviewTypeTrial, domain.InterviewScheduled, base.Add(-time.Hour), nil)
	if _, err := env.Engine.MarkNoShow(env.Ctx, iv.ID, recruiter); err != nil {
		t.Fatal(err)
	}
	cand := env.reload(t, c.ID)
	if cand.Status != domain.CandidateWithdrawn || *cand.WithdrawalReason != "No show to trial" {
		t.Fatalf("unexpected candidate %+v", cand)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	env := newTestEnv(t)
	c := env.candidate(t, "Lee", "lee@example.com", domain.CandidateInterviewScheduled)
	iv := env.interview(t, c, domain.InterviewTypeInterview, domain.InterviewScheduled, base.Add(48*time.Hour), nil)

	_, err := env.Engine.Reschedule(env.Ctx, iv.ID, base.Add(-time.Minute), recruiter)
	expectErr[engine.ValidationError](t, err)
	_, err = env.Engine.Reschedule(env.Ctx, iv.ID, time.Time{}, recruiter)
	expectErr[engine.ValidationError](t, err)

	moved, err := env.Engine.Reschedule(env.Ctx, iv.ID, base.Add(72*time.Hour), recruiter)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if moved.RescheduledCount != 1 || moved.RescheduledFrom == nil || !moved.RescheduledFrom.Equal(iv.ScheduledDate) {
		t.Fatalf("reschedule bookkeeping wrong: %+v", moved)
	}
	if !moved.ScheduledDate.Equal(base.Add(72 * time.Hour)) {
		t.Fatalf("date not moved: %v", moved.ScheduledDate)
	}

	cancelled, err := env.Engine.Cancel(env.Ctx, iv.ID, "clash", recruiter)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.InterviewCancelled || *cancelled.CancellationReason != "clash" || *cancelled.CancelledBy != recruiter.ID {
		t.Fatalf("cancel fields: %+v", cancelled)
	}
	entries := env.activityCount(t)
	if _, err := env.Engine.Cancel(env.Ctx, iv.ID, "again", recruiter); err != nil {
		t.Fatalf("repeat cancel should be a no-op: %v", err)
	}
	if env.activityCount(t) != entries {
		t.Fatalf("repeat cancel wrote activity")
	}
	if env.reload(t, c.ID).Status != domain.CandidateInterviewScheduled {
		t.Fatalf("cancel must not touch the candidate")
	}

	_, err = env.Engine.Complete(env.Ctx, iv.ID, recruiter)
	expectErr[engine.ConflictError](t, err)
	_, err = env.Engine.Reschedule(env.Ctx, iv.ID, base.Add(96*time.Hour), recruiter)
	expectErr[engine.ConflictError](t, err)
	_, err = env.Engine.MarkNoShow(env.Ctx, iv.ID, recruiter)
	expectErr[engine.ConflictError](t, err)

	_, err = env.Engine.Cancel(env.Ctx, "missing", "", recruiter)
	expectErr[engine.NotFoundError](t, err)
}

func TestFeedbackRules(t *testing.T) {
	env := newTestEnv(t)
	c := env.candidate(t, "Fay", "fay@example.com", domain.CandidateInterviewScheduled)
	future := env.interview(t, c, domain.InterviewTypeInterview, domain.InterviewScheduled, base.Add(time.Hour), nil)
	past := env.interview(t, c, domain.InterviewTypeInterview, domain.InterviewScheduled, base.Add(-2*time.Hour), nil)
	cancelled := env.interview(t, c, domain.InterviewTypeInterview, domain.InterviewCancelled, base.Add(-3*time.Hour), nil)

	good := engine.FeedbackInput{Rating: 4, Recommendation: "hire", Strengths: "warm"}
	_, err := env.Engine.SubmitFeedback(env.Ctx, future.ID, good, interviewer)
	expectErr[engine.PreconditionError](t, err)
	_, err = env.Engine.SubmitFeedback(env.Ctx, past.ID, engine.FeedbackInput{Rating: 6, Recommendation: "hire"}, interviewer)
	expectErr[engine.ValidationError](t, err)
	_, err = env.Engine.SubmitFeedback(env.Ctx, past.ID, engine.FeedbackInput{Rating: 3, Recommendation: "perhaps"}, interviewer)
	expectErr[engine.ValidationError](t, err)
	_, err = env.Engine.SubmitFeedback(env.Ctx, cancelled.ID, good, interviewer)
	expectErr[engine.ConflictError](t, err)

	got, err := env.Engine.SubmitFeedback(env.Ctx, past.ID, good, interviewer)
	if err != nil {
		t.Fatalf("feedback: %v", err)
	}
	if got.Status != domain.InterviewCompleted || !got.HasFeedback() || got.CompletedAt == nil {
		t.Fatalf("late feedback must close the interview: %+v", got)
	}
	if s := env.reload(t, c.ID).Status; s != domain.CandidateInterviewComplete {
		t.Fatalf("candidate should advance to interview_complete, got %s", s)
	}

	again, err := env.Engine.SubmitFeedback(env.Ctx, past.ID, engine.FeedbackInput{Rating: 2, Recommendation: "maybe"}, interviewer)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if again.Feedback.Rating != 2 || again.Feedback.Recommendation != domain.RecommendationMaybe {
		t.Fatalf("last write should win: %+v", again.Feedback)
	}
}

func TestFeedbackAfterNoShow(t *testing.T) {
	env := newTestEnv(t)
	c := env.candidate(t, "Olu", "olu@example.com", domain.CandidateWithdrawn)
	iv := env.interview(t, c, domain.InterviewTypeInterview, domain.InterviewNoShow, base.Add(-time.Hour), nil)
	got, err := env.Engine.SubmitFeedback(env.Ctx, iv.ID, engine.FeedbackInput{Rating: 1, Recommendation: "do_not_hire"}, interviewer)
	if err != nil {
		t.Fatalf("feedback: %v", err)
	}
	if got.Status != domain.InterviewCompleted {
		t.Fatalf("status %s", got.Status)
	}
	if s := env.reload(t, c.ID).Status; s != domain.CandidateWithdrawn {
		t.Fatalf("withdrawn candidate must not move, got %s", s)
	}
}

func TestDecisionQueueRecency(t *testing.T) {
	env := newTestEnv(t)
	c := env.candidate(t, "Rae", "rae@example.com", domain.CandidateTrialComplete)
	a := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	b := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	env.interview(t, c, domain.InterviewTypeInterview, domain.InterviewCompleted, a, submitted(domain.RecommendationHire, a))
	env.interview(t, c, domain.InterviewTypeTrial, domain.InterviewCompleted, b, submitted(domain.RecommendationMaybe, b))

	other := env.candidate(t, "Mid", "mid@example.com", domain.CandidateTrialScheduled)
	env.interview(t, other, domain.InterviewTypeInterview, domain.InterviewCompleted, a, submitted(domain.RecommendationHire, a))

	queue, err := env.Engine.DecisionQueue(env.Ctx)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if len(queue) != 1 {
		t.Fatalf("expected one entry, got %+v", queue)
	}
	if queue[0].CandidateID != c.ID || queue[0].Recommendation != domain.RecommendationMaybe || queue[0].InterviewType != domain.InterviewTypeTrial {
		t.Fatalf("later trial should win: %+v", queue[0])
	}
}

func TestDecisionActions(t *testing.T) {
	env := newTestEnv(t)
	at := base.Add(-24 * time.Hour)

	hire := env.candidate(t, "Hal", "hal@example.com", domain.CandidateInterviewComplete)
	env.interview(t, hire, domain.InterviewTypeInterview, domain.InterviewCompleted, at, submitted(domain.RecommendationHire, at))
	res, err := env.Engine.Approve(env.Ctx, hire.ID, engine.DecisionOptions{Note: "strong"}, recruiter)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if res.Candidate.Status != domain.CandidateApproved {
		t.Fatalf("status %s", res.Candidate.Status)
	}
	_, err = env.Engine.Approve(env.Ctx, hire.ID, engine.DecisionOptions{}, recruiter)
	expectErr[engine.ConflictError](t, err)

	noHire := env.candidate(t, "Ned", "ned@example.com", domain.CandidateInterviewComplete)
	env.interview(t, noHire, domain.InterviewTypeInterview, domain.InterviewCompleted, at, submitted(domain.RecommendationDoNotHire, at))
	_, err = env.Engine.Approve(env.Ctx, noHire.ID, engine.DecisionOptions{}, recruiter)
	expectErr[engine.PreconditionError](t, err)

	fresh := env.candidate(t, "Fia", "fia@example.com", domain.CandidateNew)
	_, err = env.Engine.Reject(env.Ctx, fresh.ID, engine.DecisionOptions{}, recruiter)
	expectErr[engine.ConflictError](t, err)

	_, err = env.Engine.Approve(env.Ctx, hire.ID, engine.DecisionOptions{}, interviewer)
	expectErr[engine.PermissionError](t, err)
}

func TestScheduleTrialNeedsInterviewBasis(t *testing.T) {
	env := newTestEnv(t)
	at := base.Add(-24 * time.Hour)

	afterTrial := env.candidate(t, "Tia", "tia@example.com", domain.CandidateInterviewComplete)
	env.interview(t, afterTrial, domain.InterviewTypeTrial, domain.InterviewCompleted, at, submitted(domain.RecommendationMaybe, at))
	_, err := env.Engine.ScheduleTrial(env.Ctx, afterTrial.ID, engine.DecisionOptions{}, recruiter)
	expectErr[engine.PreconditionError](t, err)

	c := env.candidate(t, "Ian", "ian@example.com", domain.CandidateInterviewComplete)
	env.interview(t, c, domain.InterviewTypeInterview, domain.InterviewCompleted, at, submitted(domain.RecommendationHire, at))
	res, err := env.Engine.ScheduleTrial(env.Ctx, c.ID, engine.DecisionOptions{}, recruiter)
	if err != nil {
		t.Fatalf("schedule trial: %v", err)
	}
	if res.Candidate.Status != domain.CandidateTrialScheduled {
		t.Fatalf("status %s", res.Candidate.Status)
	}
	if res.Link == nil || res.Link.InterviewType != domain.InterviewTypeTrial || res.Link.Status != domain.LinkActive {
		t.Fatalf("expected active trial link, got %+v", res.Link)
	}
	if !res.Notified || env.Msgs.count(messaging.TemplateBookingLink) != 1 {
		t.Fatalf("booking link message not sent")
	}
}

func TestRejectSurvivesMessagingFailure(t *testing.T) {
	env := newTestEnv(t)
	env.Msgs.fail = errors.New("redis down")
	at := base.Add(-24 * time.Hour)
	c := env.candidate(t, "Ray", "ray@example.com", domain.CandidateTrialComplete)
	env.interview(t, c, domain.InterviewTypeTrial, domain.InterviewCompleted, at, submitted(domain.RecommendationMaybe, at))

	res, err := env.Engine.Reject(env.Ctx, c.ID, engine.DecisionOptions{Notify: true}, recruiter)
	if err != nil {
		t.Fatalf("reject must succeed when messaging fails: %v", err)
	}
	if res.Notified {
		t.Fatalf("notified should be false")
	}
	if s := env.reload(t, c.ID).Status; s != domain.CandidateRejected {
		t.Fatalf("status %s", s)
	}

	env.Msgs.fail = nil
	c2 := env.candidate(t, "Rob", "rob@example.com", domain.CandidateTrialComplete)
	env.interview(t, c2, domain.InterviewTypeTrial, domain.InterviewCompleted, at, submitted(domain.RecommendationHire, at))
	if res, err := env.Engine.Reject(env.Ctx, c2.ID, engine.DecisionOptions{Notify: true}, recruiter); err != nil || !res.Notified {
		t.Fatalf("reject with messaging: %v %+v", err, res)
	}
	if env.Msgs.count(messaging.TemplateRejection) != 1 {
		t.Fatalf("expected one rejection message")
	}
}

func TestArchiveCascade(t *testing.T) {
	env := newTestEnv(t)
	c := env.candidate(t, "Ari", "ari@example.com", domain.CandidateInterviewScheduled)
	env.interview(t, c, domain.InterviewTypeInterview, domain.InterviewScheduled, base.Add(24*time.Hour), nil)
	env.interview(t, c, domain.InterviewTypeTrial, domain.InterviewScheduled, base.Add(48*time.Hour), nil)
	done := env.interview(t, c, domain.InterviewTypeInterview, domain.InterviewCompleted, base.Add(-48*time.Hour), nil)
	if _, err := env.Engine.CreateBookingLink(env.Ctx, c.ID, "interview", false, recruiter); err != nil {
		t.Fatalf("link: %v", err)
	}

	res, err := env.Engine.Archive(env.Ctx, c.ID, "position filled", recruiter)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if res.InterviewsCancelled != 2 || res.LinksRevoked != 1 {
		t.Fatalf("cascade counts %+v", res)
	}
	if res.Candidate.Status != domain.CandidateArchived || !res.Candidate.Archived {
		t.Fatalf("candidate not archived: %+v", res.Candidate)
	}
	if p := res.Candidate.PreviousStatus; p == nil || *p != domain.CandidateInterviewScheduled {
		t.Fatalf("previous status snapshot %v", p)
	}
	ivs, err := env.Engine.ListInterviews(env.Ctx, engine.InterviewQuery{CandidateID: c.ID})
	if err != nil {
		t.Fatal(err)
	}
	for _, iv := range ivs {
		if iv.ID == done.ID {
			if iv.Status != domain.InterviewCompleted {
				t.Fatalf("completed interview must be kept")
			}
			continue
		}
		if iv.Status != domain.InterviewCancelled || iv.CancellationReason == nil || *iv.CancellationReason != "Candidate archived" {
			t.Fatalf("interview not cancelled by archive: %+v", iv)
		}
	}
	links, _ := env.Engine.Repo.ListBookingLinks(env.Ctx, nil, c.ID)
	for _, l := range links {
		if l.Status == domain.LinkActive {
			t.Fatalf("active link survived archive")
		}
	}

	entries := env.activityCount(t)
	again, err := env.Engine.Archive(env.Ctx, c.ID, "retry", recruiter)
	if err != nil {
		t.Fatalf("repeat archive: %v", err)
	}
	if !again.AlreadyArchived || *again.Candidate.PreviousStatus != domain.CandidateInterviewScheduled {
		t.Fatalf("retry must not overwrite the snapshot: %+v", again.Candidate)
	}
	if env.activityCount(t) != entries {
		t.Fatalf("retry wrote activity")
	}

	_, err = env.Engine.Archive(env.Ctx, c.ID, "", interviewer)
	expectErr[engine.PermissionError](t, err)
}

func TestRestore(t *testing.T) {
	env := newTestEnv(t)
	c := env.candidate(t, "Rue", "rue@example.com", domain.CandidateScreening)
	_, err := env.Engine.Restore(env.Ctx, c.ID, recruiter)
	expectErr[engine.PreconditionError](t, err)

	if _, err := env.Engine.Archive(env.Ctx, c.ID, "", recruiter); err != nil {
		t.Fatal(err)
	}
	got, err := env.Engine.Restore(env.Ctx, c.ID, recruiter)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got.Status != domain.CandidateScreening || got.Archived || got.ArchivedAt != nil || got.PreviousStatus != nil {
		t.Fatalf("restore result %+v", got)
	}
}

func TestHardDelete(t *testing.T) {
	env := newTestEnv(t)
	c := env.candidate(t, "Del", "del@example.com", domain.CandidateRejected)
	env.interview(t, c, domain.InterviewTypeInterview, domain.InterviewCompleted, base.Add(-time.Hour), nil)
	env.interview(t, c, domain.InterviewTypeInterview, domain.InterviewScheduled, base.Add(time.Hour), nil)

	entries := env.activityCount(t)
	_, err := env.Engine.HardDelete(env.Ctx, c.ID, admin)
	expectErr[engine.PreconditionError](t, err)
	if env.activityCount(t) != entries {
		t.Fatalf("failed hard delete wrote activity")
	}
	if ivs, _ := env.Engine.ListInterviews(env.Ctx, engine.InterviewQuery{CandidateID: c.ID}); len(ivs) != 2 {
		t.Fatalf("failed hard delete removed interviews")
	}

	if _, err := env.Engine.Archive(env.Ctx, c.ID, "gdpr", recruiter); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.HardDelete(env.Ctx, c.ID, recruiter)
	expectErr[engine.PermissionError](t, err)

	counts, err := env.Engine.HardDelete(env.Ctx, c.ID, admin)
	if err != nil {
		t.Fatalf("hard delete: %v", err)
	}
	if counts.Interviews != 2 || counts.BookingLinks != 0 {
		t.Fatalf("counts %+v", counts)
	}
	_, err = env.Engine.GetCandidate(env.Ctx, c.ID)
	expectErr[engine.NotFoundError](t, err)
	if ivs, _ := env.Engine.ListInterviews(env.Ctx, engine.InterviewQuery{CandidateID: c.ID}); len(ivs) != 0 {
		t.Fatalf("interviews survived hard delete")
	}
	log, err := env.Engine.Activity(env.Ctx, engine.ActivityQuery{EntityID: c.ID, Action: string(domain.ActionDeleted)}, admin)
	if err != nil || len(log) != 1 {
		t.Fatalf("expected one delete audit entry: %v %d", err, len(log))
	}
}

func TestOutOfBandDeleteLeavesNoOrphans(t *testing.T) {
	env := newTestEnv(t)
	c := env.candidate(t, "Oob", "oob@example.com", domain.CandidateNew)
	env.interview(t, c, domain.InterviewTypeInterview, domain.InterviewScheduled, base.Add(time.Hour), nil)
	if _, err := env.Engine.CreateBookingLink(env.Ctx, c.ID, "interview", false, recruiter); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.DB.ExecContext(env.Ctx, `DELETE FROM candidates WHERE id=?`, c.ID); err != nil {
		t.Fatalf("raw delete: %v", err)
	}
	var ivs, links int
	if err := env.Engine.DB.QueryRowContext(env.Ctx, `SELECT (SELECT COUNT(*) FROM interviews WHERE candidate_id=?), (SELECT COUNT(*) FROM booking_links WHERE candidate_id=?)`, c.ID, c.ID).Scan(&ivs, &links); err != nil {
		t.Fatal(err)
	}
	if ivs != 0 || links != 0 {
		t.Fatalf("orphans left: %d interviews, %d links", ivs, links)
	}
}

func TestActivityLogIsAppendOnly(t *testing.T) {
	env := newTestEnv(t)
	env.candidate(t, "App", "app@example.com", domain.CandidateNew)
	if _, err := env.Engine.DB.ExecContext(env.Ctx, `UPDATE activity_log SET description='x'`); err == nil {
		t.Fatalf("update on activity_log must fail")
	}
	if _, err := env.Engine.DB.ExecContext(env.Ctx, `DELETE FROM activity_log`); err == nil {
		t.Fatalf("delete on activity_log must fail")
	}
}

func TestReactivationCounter(t *testing.T) {
	env := newTestEnv(t)
	prev := domain.CandidateRejected
	reason := "old"
	c := domain.Candidate{
		ID: uuid.NewString(), Name: "Ret", Email: "ret@example.com", Status: domain.CandidateArchived,
		Archived: true, ArchivedReason: &reason, ArchivedAt: &base, PreviousStatus: &prev,
		ApplicationCount: 2, CreatedAt: base, UpdatedAt: base,
	}
	if err := env.Engine.Repo.InsertCandidate(env.Ctx, nil, c); err != nil {
		t.Fatal(err)
	}
	newName := "Ret Smith"
	cv := "cv/ret-2024.pdf"
	got, err := env.Engine.Reactivate(env.Ctx, c.ID, engine.ReactivateOptions{
		Overrides:      repo.CandidatePatch{Name: &newName, CVRef: &cv},
		ApplicationKey: "app-3",
	}, recruiter)
	if err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if got.ApplicationCount != 3 || !got.IsReturningCandidate || got.Archived || got.Status != domain.CandidateNew {
		t.Fatalf("reactivated candidate %+v", got)
	}
	if got.Name != newName || got.CVRef == nil || *got.CVRef != cv || got.ArchivedReason != nil || got.PreviousStatus != nil {
		t.Fatalf("overrides or archive metadata wrong: %+v", got)
	}

	again, err := env.Engine.Reactivate(env.Ctx, c.ID, engine.ReactivateOptions{ApplicationKey: "app-3"}, recruiter)
	if err != nil || again.ApplicationCount != 3 {
		t.Fatalf("same key must not increment: %v %d", err, again.ApplicationCount)
	}
	next, err := env.Engine.Reactivate(env.Ctx, c.ID, engine.ReactivateOptions{ApplicationKey: "app-4"}, recruiter)
	if err != nil || next.ApplicationCount != 4 {
		t.Fatalf("new key should increment: %v %d", err, next.ApplicationCount)
	}
}

func TestProbeReturningIsReadOnly(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.Engine.CreateCandidate(env.Ctx, engine.CandidateInput{Name: "Pia", Email: "Pia@Example.com", Phone: "+44 7700 900123"}, recruiter)
	if err != nil {
		t.Fatal(err)
	}
	entries := env.activityCount(t)

	m, err := env.Engine.ProbeReturning(env.Ctx, " PIA@example.COM ", "")
	if err != nil || m == nil || m.CandidateID != c.ID || m.MatchedOn != "email" {
		t.Fatalf("email probe: %v %+v", err, m)
	}
	m, err = env.Engine.ProbeReturning(env.Ctx, "other@example.com", "447700900123")
	if err != nil || m == nil || m.MatchedOn != "phone" || m.ApplicationCount != 1 {
		t.Fatalf("phone probe: %v %+v", err, m)
	}
	m, err = env.Engine.ProbeReturning(env.Ctx, "nobody@example.com", "")
	if err != nil || m != nil {
		t.Fatalf("expected no match: %v %+v", err, m)
	}
	_, err = env.Engine.ProbeReturning(env.Ctx, "", "123")
	expectErr[engine.ValidationError](t, err)
	if env.activityCount(t) != entries {
		t.Fatalf("probe wrote activity")
	}
}

func TestSubmitApplicationRoutes(t *testing.T) {
	env := newTestEnv(t)
	in := engine.CandidateInput{Name: "Sam", Email: "sam@example.com"}
	first, err := env.Engine.SubmitApplication(env.Ctx, in, "a1", recruiter)
	if err != nil || !first.Created {
		t.Fatalf("first application: %v %+v", err, first)
	}
	dup, err := env.Engine.SubmitApplication(env.Ctx, in, "a2", recruiter)
	if err != nil || !dup.Duplicate || dup.Candidate.ID != first.Candidate.ID {
		t.Fatalf("live duplicate: %v %+v", err, dup)
	}
	if _, err := env.Engine.Archive(env.Ctx, first.Candidate.ID, "", recruiter); err != nil {
		t.Fatal(err)
	}
	back, err := env.Engine.SubmitApplication(env.Ctx, engine.CandidateInput{Name: "Sam", Email: "SAM@example.com", JobTitle: "Chef"}, "a3", recruiter)
	if err != nil || !back.Reactivated {
		t.Fatalf("returning application: %v %+v", err, back)
	}
	if back.Candidate.ApplicationCount != 2 || back.Candidate.JobTitle != "Chef" {
		t.Fatalf("reactivated candidate %+v", back.Candidate)
	}
}

func TestBookInterview(t *testing.T) {
	env := newTestEnv(t)
	c := env.candidate(t, "Bo", "bo@example.com", domain.CandidateScreening)
	link, err := env.Engine.CreateBookingLink(env.Ctx, c.ID, "interview", true, recruiter)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if env.Msgs.count(messaging.TemplateBookingLink) != 1 {
		t.Fatalf("link message not sent")
	}

	_, err = env.Engine.BookInterview(env.Ctx, engine.BookingRequest{Token: link.Token, Date: "2024-03-05", Time: "10:15"})
	expectErr[engine.ValidationError](t, err)
	_, err = env.Engine.BookInterview(env.Ctx, engine.BookingRequest{Token: link.Token, Date: "2024-03-04", Time: "15:00"})
	expectErr[engine.ConflictError](t, err)

	iv, err := env.Engine.BookInterview(env.Ctx, engine.BookingRequest{Token: link.Token, Date: "2024-03-05", Time: "10:00"})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if iv.Status != domain.InterviewScheduled || iv.Duration != 30 || iv.CandidateName != "Bo" || iv.BranchName != "Soho" {
		t.Fatalf("booked interview %+v", iv)
	}
	if !iv.ScheduledDate.Equal(time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("scheduled at %v", iv.ScheduledDate)
	}
	if s := env.reload(t, c.ID).Status; s != domain.CandidateInterviewScheduled {
		t.Fatalf("candidate status %s", s)
	}
	used, _ := env.Engine.Repo.GetBookingLinkByToken(env.Ctx, nil, link.Token)
	if used.Status != domain.LinkUsed || used.UsedAt == nil {
		t.Fatalf("link not consumed: %+v", used)
	}
	_, err = env.Engine.BookInterview(env.Ctx, engine.BookingRequest{Token: link.Token, Date: "2024-03-05", Time: "11:00"})
	expectErr[engine.PreconditionError](t, err)

	other := env.candidate(t, "Cy", "cy@example.com", domain.CandidateNew)
	link2, err := env.Engine.CreateBookingLink(env.Ctx, other.ID, "interview", false, recruiter)
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.BookInterview(env.Ctx, engine.BookingRequest{Token: link2.Token, Date: "2024-03-05", Time: "10:00"})
	expectErr[engine.ConflictError](t, err)

	grid, err := env.Engine.AvailableSlots(env.Ctx, "2024-03-05", "interview")
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range grid {
		if s.Start.Hour() == 10 && s.Start.Minute() == 0 && s.Available {
			t.Fatalf("booked slot still offered")
		}
	}
}

func TestBookingLinkExpiry(t *testing.T) {
	env := newTestEnv(t)
	c := env.candidate(t, "Exp", "exp@example.com", domain.CandidateNew)
	first, err := env.Engine.CreateBookingLink(env.Ctx, c.ID, "interview", false, recruiter)
	if err != nil {
		t.Fatal(err)
	}
	link, err := env.Engine.CreateBookingLink(env.Ctx, c.ID, "interview", false, recruiter)
	if err != nil {
		t.Fatal(err)
	}
	old, _ := env.Engine.Repo.GetBookingLinkByToken(env.Ctx, nil, first.Token)
	if old.Status != domain.LinkRevoked {
		t.Fatalf("previous link should be revoked, got %s", old.Status)
	}

	*env.Clock = base.Add(73 * time.Hour)
	_, err = env.Engine.BookInterview(env.Ctx, engine.BookingRequest{Token: link.Token, Date: "2024-03-12", Time: "10:00"})
	expectErr[engine.PreconditionError](t, err)
	got, _ := env.Engine.Repo.GetBookingLinkByToken(env.Ctx, nil, link.Token)
	if got.Status != domain.LinkExpired {
		t.Fatalf("expired link not flagged: %s", got.Status)
	}
}

func TestSweepRemindsOnce(t *testing.T) {
	env := newTestEnv(t)
	c := env.candidate(t, "Swe", "swe@example.com", domain.CandidateInterviewScheduled)
	due := env.interview(t, c, domain.InterviewTypeInterview, domain.InterviewScheduled, base.Add(-3*time.Hour), nil)
	env.interview(t, c, domain.InterviewTypeInterview, domain.InterviewScheduled, base.Add(-30*time.Minute), nil)
	env.interview(t, c, domain.InterviewTypeInterview, domain.InterviewCompleted, base.Add(-5*time.Hour), submitted(domain.RecommendationHire, base))

	env.Msgs.fail = errors.New("redis down")
	res, err := env.Engine.SweepFeedbackReminders(env.Ctx)
	if err != nil || res.Failed != 1 || res.Sent != 0 {
		t.Fatalf("failing sweep: %v %+v", err, res)
	}
	iv, _ := env.Engine.GetInterview(env.Ctx, due.ID)
	if iv.ReminderSentAt != nil {
		t.Fatalf("failed send must release the claim")
	}

	env.Msgs.fail = nil
	res, err = env.Engine.SweepFeedbackReminders(env.Ctx)
	if err != nil || res.Sent != 1 || res.Due != 1 {
		t.Fatalf("sweep: %v %+v", err, res)
	}
	res, err = env.Engine.SweepFeedbackReminders(env.Ctx)
	if err != nil || res.Sent != 0 {
		t.Fatalf("second sweep must not resend: %v %+v", err, res)
	}
	if n := env.Msgs.count(messaging.TemplateFeedbackReminder); n != 1 {
		t.Fatalf("expected one reminder, got %d", n)
	}
}

func TestRescheduleReopensReminder(t *testing.T) {
	env := newTestEnv(t)
	c := env.candidate(t, "Rex", "rex@example.com", domain.CandidateInterviewScheduled)
	iv := env.interview(t, c, domain.InterviewTypeInterview, domain.InterviewScheduled, base.Add(-3*time.Hour), nil)

	if res, err := env.Engine.SweepFeedbackReminders(env.Ctx); err != nil || res.Sent != 1 {
		t.Fatalf("first sweep: %v %+v", err, res)
	}
	moved, err := env.Engine.Reschedule(env.Ctx, iv.ID, base.Add(48*time.Hour), recruiter)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if moved.ReminderSentAt != nil {
		t.Fatalf("reschedule must clear the reminder flag")
	}

	*env.Clock = base.Add(72 * time.Hour)
	res, err := env.Engine.SweepFeedbackReminders(env.Ctx)
	if err != nil || res.Sent != 1 {
		t.Fatalf("new occurrence must be reminded: %v %+v", err, res)
	}
	if n := env.Msgs.count(messaging.TemplateFeedbackReminder); n != 2 {
		t.Fatalf("expected two reminders, got %d", n)
	}
}

func TestDisabledMessagingRecordsNothing(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Messenger = messaging.Noop{}
	at := base.Add(-24 * time.Hour)
	c := env.candidate(t, "Nia", "nia@example.com", domain.CandidateInterviewComplete)
	env.interview(t, c, domain.InterviewTypeInterview, domain.InterviewCompleted, at, submitted(domain.RecommendationMaybe, at))

	res, err := env.Engine.Reject(env.Ctx, c.ID, engine.DecisionOptions{Notify: true}, recruiter)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if res.Notified {
		t.Fatalf("dropped message reported as sent")
	}
	var sent int
	if err := env.Engine.DB.QueryRowContext(env.Ctx, `SELECT COUNT(*) FROM activity_log WHERE action=?`, domain.ActionMessageSent).Scan(&sent); err != nil {
		t.Fatal(err)
	}
	if sent != 0 {
		t.Fatalf("expected no message_sent entries, got %d", sent)
	}

	due := env.interview(t, c, domain.InterviewTypeInterview, domain.InterviewScheduled, base.Add(-3*time.Hour), nil)
	sweep, err := env.Engine.SweepFeedbackReminders(env.Ctx)
	if err != nil || sweep.Sent != 0 || sweep.Skipped != 1 {
		t.Fatalf("disabled sweep: %v %+v", err, sweep)
	}
	if iv, _ := env.Engine.GetInterview(env.Ctx, due.ID); iv.ReminderSentAt != nil {
		t.Fatalf("disabled sweep must not claim the reminder")
	}

	env.Engine.Messenger = env.Msgs
	if sweep, err := env.Engine.SweepFeedbackReminders(env.Ctx); err != nil || sweep.Sent != 1 {
		t.Fatalf("sweep after enabling messaging: %v %+v", err, sweep)
	}
}

func TestLapsedIsDerived(t *testing.T) {
	env := newTestEnv(t)
	c := env.candidate(t, "Lap", "lap@example.com", domain.CandidateInterviewScheduled)
	past := env.interview(t, c, domain.InterviewTypeInterview, domain.InterviewScheduled, base.Add(-time.Hour), nil)
	env.interview(t, c, domain.InterviewTypeInterview, domain.InterviewScheduled, base.Add(time.Hour), nil)
	lapsed, err := env.Engine.ListInterviews(env.Ctx, engine.InterviewQuery{Status: "lapsed"})
	if err != nil {
		t.Fatal(err)
	}
	if len(lapsed) != 1 || lapsed[0].ID != past.ID || !lapsed[0].Lapsed(base) {
		t.Fatalf("lapsed: %+v", lapsed)
	}
}

func TestReconcileDisplayFields(t *testing.T) {
	env := newTestEnv(t)
	c := env.candidate(t, "Old Name", "rename@example.com", domain.CandidateInterviewScheduled)
	iv := env.interview(t, c, domain.InterviewTypeInterview, domain.InterviewScheduled, base.Add(time.Hour), nil)
	if _, err := env.Engine.DB.ExecContext(env.Ctx, `UPDATE candidates SET name='New Name' WHERE id=?`, c.ID); err != nil {
		t.Fatal(err)
	}
	n, err := env.Engine.ReconcileDisplayFields(env.Ctx)
	if err != nil || n != 1 {
		t.Fatalf("reconcile: %v %d", err, n)
	}
	got, _ := env.Engine.GetInterview(env.Ctx, iv.ID)
	if got.CandidateName != "New Name" || got.JobTitle != "Barista" {
		t.Fatalf("display fields %+v", got)
	}
	if n, _ := env.Engine.ReconcileDisplayFields(env.Ctx); n != 0 {
		t.Fatalf("second pass touched %d rows", n)
	}

	renamed := "Newest"
	if _, err := env.Engine.UpdateCandidate(env.Ctx, c.ID, repo.CandidatePatch{Name: &renamed}, recruiter); err != nil {
		t.Fatal(err)
	}
	got, _ = env.Engine.GetInterview(env.Ctx, iv.ID)
	if got.CandidateName != "Newest" {
		t.Fatalf("update should refresh interviews, got %q", got.CandidateName)
	}
}
