package sweep_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"recruitline/internal/engine"
	"recruitline/internal/sweep"
)

type fakeJobs struct {
	sweeps     atomic.Int32
	reconciles atomic.Int32
	sweepErr   error
}

func (f *fakeJobs) SweepFeedbackReminders(context.Context) (engine.SweepResult, error) {
	f.sweeps.Add(1)
	return engine.SweepResult{Due: 1, Sent: 1}, f.sweepErr
}

func (f *fakeJobs) ReconcileDisplayFields(context.Context) (int64, error) {
	f.reconciles.Add(1)
	return 0, nil
}

func TestRunOnceRunsBothJobs(t *testing.T) {
	jobs := &fakeJobs{sweepErr: errors.New("db locked")}
	s := sweep.New(jobs, "@every 1h", nil)
	s.RunOnce(context.Background())
	if jobs.sweeps.Load() != 1 || jobs.reconciles.Load() != 1 {
		t.Fatalf("expected one sweep and one reconcile, got %d/%d", jobs.sweeps.Load(), jobs.reconciles.Load())
	}
}

func TestStartRunsImmediately(t *testing.T) {
	jobs := &fakeJobs{}
	s := sweep.New(jobs, "@every 1h", nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()
	deadline := time.Now().Add(2 * time.Second)
	for jobs.sweeps.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("initial pass did not run")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	s := sweep.New(&fakeJobs{}, "every now and then", nil)
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected invalid spec error")
	}
}
