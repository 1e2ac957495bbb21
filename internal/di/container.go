package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/deskhub/api/internal/platform/config"
	"github.com/deskhub/api/internal/platform/observability"
	"github.com/deskhub/api/internal/repositories"
	"github.com/deskhub/api/internal/services"
	"github.com/deskhub/api/internal/validation"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Quotes       services.QuoteService
	Checkout     services.BookingCheckoutService
	Availability services.AvailabilityService
	SlotLocks    services.SlotLockService
	Expiry       services.BookingExpiryService
	System       services.SystemService
	Validator    *validation.Validator
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

type containerOptions struct {
	publisher services.NotificationPublisher
	logger    *zap.Logger
	meter     metric.Meter
	build     services.BuildInfo
	clock     func() time.Time
}

// Option customises container construction.
type Option func(*containerOptions)

// WithPublisher sets the notification publisher used by the expiry sweeper.
func WithPublisher(p services.NotificationPublisher) Option {
	return func(o *containerOptions) { o.publisher = p }
}

// WithLogger sets the base logger services derive their event loggers from.
func WithLogger(l *zap.Logger) Option {
	return func(o *containerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMeter sets the meter used for service counters.
func WithMeter(m metric.Meter) Option {
	return func(o *containerOptions) { o.meter = m }
}

// WithBuildInfo sets the build metadata reported by health endpoints.
func WithBuildInfo(b services.BuildInfo) Option {
	return func(o *containerOptions) { o.build = b }
}

// WithClock overrides the clock handed to every service.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewContainer constructs the runtime dependencies. Production wiring passes the cloud registry,
// while local runs and tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	options := containerOptions{logger: zap.NewNop(), clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	svc, err := buildServices(ctx, reg, cfg, options)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, opts containerOptions) (Services, error) {
	var svc Services
	logger := opts.logger

	schedule := cfg.Pricing.Schedule
	if len(schedule.Profiles) == 0 {
		schedule = config.DefaultFeeSchedule(cfg.Pricing)
	}

	svc.Validator = validation.New(validation.WithClock(opts.clock))

	quotes, err := services.NewPricingEngine(services.PricingEngineDeps{
		Spaces:      reg.Spaces(),
		Fees:        schedule,
		BuyerFeePct: schedule.BuyerFeePct,
		HostFeePct:  schedule.HostFeePct,
		Validator:   svc.Validator,
		Logger:      observability.ServiceLogger(logger.Named("quotes")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing engine: %w", err)
	}
	svc.Quotes = quotes

	checkout, err := services.NewBookingCheckout(services.BookingCheckoutDeps{
		Bookings: reg.Bookings(),
		Quotes:   quotes,
		Logger:   observability.ServiceLogger(logger.Named("checkout")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build booking checkout service: %w", err)
	}
	svc.Checkout = checkout

	availability, err := services.NewAvailabilityService(services.AvailabilityServiceDeps{
		Spaces:   reg.Spaces(),
		Bookings: reg.Bookings(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build availability service: %w", err)
	}
	svc.Availability = availability

	slotLocks, err := services.NewSlotLockService(services.SlotLockServiceDeps{
		Locks:        reg.SlotLocks(),
		Availability: availability,
		TTL:          cfg.SlotLocks.TTL,
		Clock:        opts.clock,
		Logger:       observability.ServiceLogger(logger.Named("slot_locks")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build slot lock service: %w", err)
	}
	svc.SlotLocks = slotLocks

	expiry, err := services.NewBookingExpiryService(services.BookingExpiryServiceDeps{
		Bookings:  reg.Bookings(),
		Publisher: opts.publisher,
		LeaseTTL:  cfg.Expiry.LeaseTTL,
		BatchSize: cfg.Expiry.BatchSize,
		Clock:     opts.clock,
		Meter:     opts.meter,
		Logger:    observability.ServiceLogger(logger.Named("booking_expiry")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build booking expiry service: %w", err)
	}
	svc.Expiry = expiry

	if healthRepo := reg.Health(); healthRepo != nil {
		build := opts.build
		if build.Environment == "" {
			build.Environment = cfg.Security.Environment
		}
		deps := services.SystemServiceDeps{
			HealthRepository: healthRepo,
			SweepStaleAfter:  cfg.Expiry.StaleAfter,
			Clock:            opts.clock,
			Build:            build,
		}
		if tracker, ok := expiry.(services.SweepTracker); ok && cfg.Expiry.Enabled {
			deps.Sweeps = tracker
		}
		systemSvc, err := services.NewSystemService(deps)
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
