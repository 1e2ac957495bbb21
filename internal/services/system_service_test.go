package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/deskhub/api/internal/domain"
	"github.com/deskhub/api/internal/repositories"
)

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
	calls  int
}

func (s *stubHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	s.calls++
	return s.report, s.err
}

func TestSystemServiceHealthReportEnrichesMetadata(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(5 * time.Minute)
	repo := &stubHealthRepository{
		report: domain.SystemHealthReport{
			Checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusOK},
			},
		},
	}

	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            func() time.Time { return now },
		Build: BuildInfo{
			Version:     "1.2.3",
			CommitSHA:   "abc123",
			Environment: "prod",
			StartedAt:   start,
		},
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}

	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected status ok, got %s", report.Status)
	}
	if report.Version != "1.2.3" {
		t.Fatalf("expected version 1.2.3, got %s", report.Version)
	}
	if report.CommitSHA != "abc123" {
		t.Fatalf("expected commit abc123, got %s", report.CommitSHA)
	}
	if report.Environment != "prod" {
		t.Fatalf("expected environment prod, got %s", report.Environment)
	}
	if report.Uptime != now.Sub(start) {
		t.Fatalf("expected uptime %s, got %s", now.Sub(start), report.Uptime)
	}
	if report.GeneratedAt != now {
		t.Fatalf("expected generatedAt %s, got %s", now, report.GeneratedAt)
	}
}

func TestSystemServiceHealthReportErrors(t *testing.T) {
	expected := errors.New("collect failed")
	repo := &stubHealthRepository{err: expected}

	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	_, err = svc.HealthReport(context.Background())
	if !errors.Is(err, expected) {
		t.Fatalf("expected error %v, got %v", expected, err)
	}
}

func TestNewSystemServiceRequiresRepository(t *testing.T) {
	_, err := NewSystemService(SystemServiceDeps{})
	if err == nil {
		t.Fatalf("expected error when repository missing")
	}
}

func TestSystemServiceDerivesStatusWhenMissing(t *testing.T) {
	repo := &stubHealthRepository{
		report: domain.SystemHealthReport{
			Checks: map[string]domain.SystemHealthCheck{
				"pubsub": {Status: domain.HealthStatusDegraded},
				"secret": {Status: domain.HealthStatusOK},
			},
		},
	}

	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected status degraded, got %s", report.Status)
	}
}

func TestSystemServiceErrorCheckWins(t *testing.T) {
	repo := &stubHealthRepository{
		report: domain.SystemHealthReport{
			Checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusError, Error: "deadline exceeded"},
				"redis":     {Status: domain.HealthStatusDegraded},
			},
		},
	}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected status error, got %s", report.Status)
	}
}

type stubSweepTracker struct {
	outcome SweepOutcome
	ran     bool
}

func (s stubSweepTracker) LastSweep() (SweepOutcome, bool) { return s.outcome, s.ran }

func TestSystemServiceSweepCheck(t *testing.T) {
	start := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	now := start.Add(time.Hour)
	recent := SweepResult{ExpiredPayments: 2, ExpiredSlots: 1, StartedAt: now.Add(-2 * time.Minute), FinishedAt: now.Add(-2*time.Minute + 300*time.Millisecond)}
	stale := SweepResult{StartedAt: now.Add(-30 * time.Minute), FinishedAt: now.Add(-30 * time.Minute)}

	cases := []struct {
		name    string
		tracker stubSweepTracker
		started time.Time
		status  string
		detail  string
	}{
		{name: "recent success", tracker: stubSweepTracker{outcome: SweepOutcome{Result: recent}, ran: true}, started: start, status: domain.HealthStatusOK, detail: "last sweep cancelled 3 bookings"},
		{name: "last run failed", tracker: stubSweepTracker{outcome: SweepOutcome{Result: recent, Err: "booking expiry: payment: unavailable"}, ran: true}, started: start, status: domain.HealthStatusDegraded, detail: "last sweep failed"},
		{name: "stale", tracker: stubSweepTracker{outcome: SweepOutcome{Result: stale}, ran: true}, started: start, status: domain.HealthStatusDegraded, detail: "last sweep finished 30m0s ago"},
		{name: "fresh process", tracker: stubSweepTracker{}, started: now.Add(-time.Minute), status: domain.HealthStatusOK, detail: "awaiting first sweep"},
		{name: "never ran", tracker: stubSweepTracker{}, started: start, status: domain.HealthStatusDegraded, detail: "no sweep completed since start 1h0m0s ago"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &stubHealthRepository{report: domain.SystemHealthReport{
				Checks: map[string]domain.SystemHealthCheck{"firestore": {Status: domain.HealthStatusOK}},
			}}
			svc, err := NewSystemService(SystemServiceDeps{
				HealthRepository: repo,
				Sweeps:           tc.tracker,
				Clock:            func() time.Time { return now },
				Build:            BuildInfo{StartedAt: tc.started},
			})
			if err != nil {
				t.Fatalf("NewSystemService: %v", err)
			}
			report, err := svc.HealthReport(context.Background())
			if err != nil {
				t.Fatalf("HealthReport: %v", err)
			}
			check, ok := report.Checks["booking_expiry"]
			if !ok {
				t.Fatalf("expected booking_expiry check, got %v", report.Checks)
			}
			if check.Status != tc.status || check.Detail != tc.detail {
				t.Fatalf("unexpected check %+v", check)
			}
			if report.Status != domain.HealthStatusOK {
				t.Fatalf("sweeper check must not change overall status, got %s", report.Status)
			}
		})
	}
}

func TestSystemServiceOmitsSweepCheckWithoutTracker(t *testing.T) {
	repo := &stubHealthRepository{report: domain.SystemHealthReport{Status: domain.HealthStatusOK}}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}
	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if _, ok := report.Checks["booking_expiry"]; ok {
		t.Fatalf("unexpected booking_expiry check")
	}
}

var _ repositories.HealthRepository = (*stubHealthRepository)(nil)
