package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/deskhub/api/internal/domain"
	"github.com/deskhub/api/internal/repositories"
)

const (
	sweepCheckName         = "booking_expiry"
	defaultSweepStaleAfter = 10 * time.Minute
)

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps bundles collaborators required to construct a system service. Sweeps is
// set only when this process runs the expiry sweeper itself.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Sweeps           SweepTracker
	SweepStaleAfter  time.Duration
	Clock            func() time.Time
	Build            BuildInfo
}

type systemService struct {
	healthRepo      repositories.HealthRepository
	sweeps          SweepTracker
	sweepStaleAfter time.Duration
	clock           func() time.Time
	build           BuildInfo
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the service backing /healthz and /readyz.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	staleAfter := deps.SweepStaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultSweepStaleAfter
	}

	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock()
	}

	return &systemService{
		healthRepo:      deps.HealthRepository,
		sweeps:          deps.Sweeps,
		sweepStaleAfter: staleAfter,
		clock: func() time.Time {
			return clock().UTC()
		},
		build: build,
	}, nil
}

// HealthReport collects dependency checks and, when a sweeper runs in-process, adds a
// booking_expiry check that degrades once sweeps fail or stop arriving. That check does not
// change the overall status.
func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if ctx == nil {
		return SystemHealthReport{}, errors.New("system service: context is required")
	}

	report, err := s.healthRepo.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}

	now := s.clock()
	report.GeneratedAt = ensureTimestamp(report.GeneratedAt, now)
	report.Version = chooseFirstNonEmpty(report.Version, s.build.Version)
	report.CommitSHA = chooseFirstNonEmpty(report.CommitSHA, s.build.CommitSHA)
	report.Environment = chooseFirstNonEmpty(report.Environment, s.build.Environment)

	if report.Uptime <= 0 && !s.build.StartedAt.IsZero() {
		report.Uptime = now.Sub(s.build.StartedAt)
	}

	if len(report.Checks) == 0 {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}

	derived := deriveStatus(report.Checks)
	if strings.TrimSpace(report.Status) == "" || severity(derived) > severity(report.Status) {
		report.Status = derived
	}
	// advisory, excluded from the overall status
	if s.sweeps != nil {
		report.Checks[sweepCheckName] = s.sweepCheck(now)
	}

	return report, nil
}

func (s *systemService) sweepCheck(now time.Time) domain.SystemHealthCheck {
	check := domain.SystemHealthCheck{Status: domain.HealthStatusOK, CheckedAt: now}
	outcome, ran := s.sweeps.LastSweep()
	if !ran {
		if now.Sub(s.build.StartedAt) > s.sweepStaleAfter {
			check.Status = domain.HealthStatusDegraded
			check.Detail = fmt.Sprintf("no sweep completed since start %s ago", now.Sub(s.build.StartedAt).Round(time.Second))
			return check
		}
		check.Detail = "awaiting first sweep"
		return check
	}

	finished := outcome.Result.FinishedAt
	check.Latency = finished.Sub(outcome.Result.StartedAt)
	switch {
	case outcome.Err != "":
		check.Status = domain.HealthStatusDegraded
		check.Error = outcome.Err
		check.Detail = "last sweep failed"
	case now.Sub(finished) > s.sweepStaleAfter:
		check.Status = domain.HealthStatusDegraded
		check.Detail = fmt.Sprintf("last sweep finished %s ago", now.Sub(finished).Round(time.Second))
	default:
		check.Detail = fmt.Sprintf("last sweep cancelled %d bookings", outcome.Result.Total())
	}
	return check
}

func ensureTimestamp(ts time.Time, fallback time.Time) time.Time {
	if ts.IsZero() {
		return fallback
	}
	return ts.UTC()
}

func chooseFirstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// severity orders statuses; unknown non-empty values count as degraded.
func severity(status string) int {
	switch status {
	case domain.HealthStatusOK, "":
		return 0
	case domain.HealthStatusError:
		return 2
	default:
		return 1
	}
}

func deriveStatus(checks map[string]domain.SystemHealthCheck) string {
	worst := 0
	for _, check := range checks {
		if sev := severity(check.Status); sev > worst {
			worst = sev
		}
	}
	switch worst {
	case 2:
		return domain.HealthStatusError
	case 1:
		return domain.HealthStatusDegraded
	default:
		return domain.HealthStatusOK
	}
}
