package cron_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/qaindex/internal/cron"
	"github.com/flemzord/qaindex/internal/cron/crontest"
)

func TestScheduler_RegisterJob(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		job  *crontest.Job
		ok   bool
	}{
		{name: "hourly", job: &crontest.Job{JobName: "qa_extraction"}, ok: true},
		{name: "duplicate", job: &crontest.Job{JobName: "qa_extraction", Expr: "*/5 * * * *"}},
		{name: "descriptor", job: &crontest.Job{JobName: "nightly", Expr: "@daily"}},
		{name: "garbage", job: &crontest.Job{JobName: "bad", Expr: "every hour"}},
	}

	s := cron.NewScheduler(nil)
	for _, tt := range tests {
		err := s.RegisterJob(tt.job)
		if (err == nil) != tt.ok {
			t.Errorf("%s: RegisterJob() error = %v, want ok=%v", tt.name, err, tt.ok)
		}
	}
	if got := s.Jobs(); !slices.Equal(got, []string{"qa_extraction"}) {
		t.Errorf("Jobs() = %v", got)
	}
}

func TestScheduler_RunNowRecordsStatus(t *testing.T) {
	t.Parallel()

	boom := errors.New("snapshot unavailable")
	extract := &crontest.Job{JobName: "qa_extraction"}
	archive := &crontest.Job{JobName: "qa_archive_idle", Err: boom}

	s := cron.NewScheduler(nil)
	for _, j := range []*crontest.Job{extract, archive} {
		if err := s.RegisterJob(j); err != nil {
			t.Fatal(err)
		}
	}

	before := time.Now()
	if err := s.RunNow(context.Background(), "qa_extraction"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if err := s.RunNow(context.Background(), "qa_archive_idle"); !errors.Is(err, boom) {
		t.Fatalf("RunNow error = %v, want %v", err, boom)
	}
	if err := s.RunNow(context.Background(), "qa_missing"); !errors.Is(err, cron.ErrUnknownJob) {
		t.Errorf("RunNow(unknown) = %v, want ErrUnknownJob", err)
	}

	status := s.Status()
	if len(status) != 2 {
		t.Fatalf("Status() = %+v", status)
	}
	ok, failed := status[0], status[1]
	if ok.Runs != 1 || ok.Failures != 0 || ok.LastError != "" || ok.LastRun.Before(before) {
		t.Errorf("extraction status = %+v", ok)
	}
	if failed.Runs != 1 || failed.Failures != 1 || failed.LastError != boom.Error() {
		t.Errorf("archive status = %+v", failed)
	}
	if !ok.Next.After(before) || ok.Next.Minute() != 0 {
		t.Errorf("next hourly run = %v", ok.Next)
	}
}

func TestScheduler_RunNowWhileRunning(t *testing.T) {
	t.Parallel()

	job := &crontest.Job{JobName: "qa_extraction", Release: make(chan struct{})}
	started := job.Started()
	s := cron.NewScheduler(nil)
	if err := s.RegisterJob(job); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.RunNow(context.Background(), "qa_extraction")
	}()
	<-started

	if st := s.Status()[0]; !st.Running {
		t.Errorf("status during run = %+v, want running", st)
	}
	if err := s.RunNow(context.Background(), "qa_extraction"); !errors.Is(err, cron.ErrJobRunning) {
		t.Errorf("second RunNow = %v, want ErrJobRunning", err)
	}

	close(job.Release)
	wg.Wait()
	if st := s.Status()[0]; st.Running || st.Runs != 1 {
		t.Errorf("status after run = %+v", st)
	}
	if job.Runs() != 1 {
		t.Errorf("job entered %d times, want 1", job.Runs())
	}
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	s := cron.NewScheduler(nil)
	if err := s.RegisterJob(&crontest.Job{JobName: "qa_extraction", Expr: "* * * * *"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	t.Parallel()

	if err := cron.NewScheduler(nil).Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	for _, expr := range []string{"0 * * * *", "*/30 * * * *", "15 3 * * 1-5"} {
		if err := cron.ParseSchedule(expr); err != nil {
			t.Errorf("ParseSchedule(%q) = %v", expr, err)
		}
	}
	for _, expr := range []string{"", "hourly", "60 * * * *", "@hourly"} {
		if err := cron.ParseSchedule(expr); err == nil {
			t.Errorf("ParseSchedule(%q) = nil, want error", expr)
		}
	}
}
