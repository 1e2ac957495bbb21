package main

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	domain "github.com/deskhub/api/internal/domain"
	"github.com/deskhub/api/internal/platform/auth"
	"github.com/deskhub/api/internal/platform/config"
	"github.com/deskhub/api/internal/platform/secrets"
	"github.com/deskhub/api/internal/services"
)

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Security.Environment,
		StartedAt:   started,
	}
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(logger))
	validator := auth.NewOIDCValidator(cache, auth.WithOIDCLogger(logger))

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	return validator.RequireOIDC(audience, cfg.Security.OIDC.Issuers)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if projectMap := secretProjectMapFromEnv(env); len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" && !strings.Contains(credentialsFile, "://") {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists config fields that must resolve to a value. A Redis password is
// only mandatory when it is configured as a secret reference.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	if isSecretRef(env["API_REDIS_PASSWORD"]) {
		required = append(required, "Redis.Password")
	}
	if isSecretRef(env["API_FIREBASE_CREDENTIALS_FILE"]) {
		required = append(required, "Firebase.CredentialsFile")
	}
	return uniqueStrings(required)
}

func isSecretRef(value string) bool {
	value = strings.TrimSpace(value)
	return strings.HasPrefix(value, "secret://") || strings.HasPrefix(value, "sm://")
}

// secretProjectMapFromEnv parses API_SECRET_PROJECT_IDS, e.g. "dev=deskhub-dev,prod=deskhub-prod".
func secretProjectMapFromEnv(env map[string]string) map[string]string {
	projects := make(map[string]string)
	raw := strings.TrimSpace(env["API_SECRET_PROJECT_IDS"])
	if raw == "" {
		return projects
	}
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), "=", 2)
		if len(parts) != 2 {
			continue
		}
		label := strings.ToLower(strings.TrimSpace(parts[0]))
		project := strings.TrimSpace(parts[1])
		if label == "" || project == "" {
			continue
		}
		projects[label] = project
	}
	return projects
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}

// demoFixtures returns the spaces and bookings served by local runs without Firestore.
func demoFixtures(now time.Time) ([]domain.Space, []domain.Booking) {
	tomorrow := now.UTC().AddDate(0, 0, 1).Format("2006-01-02")
	paymentDeadline := now.UTC().Add(-time.Minute)
	spaces := []domain.Space{
		{
			ID:                  "sp_navigli",
			HostID:              "host_demo",
			Title:               "Desk luminoso ai Navigli",
			Description:         "Postazione in open space con fibra, caffè e sala riunioni su prenotazione.",
			PricePerHour:        15,
			PricePerDay:         100,
			Capacity:            4,
			HostStripeAccountID: "acct_demo_navigli",
			Published:           true,
			CreatedAt:           now,
			UpdatedAt:           now,
		},
		{
			ID:           "sp_isola",
			HostID:       "host_demo",
			Title:        "Sala riunioni Isola",
			Description:  "Sala per dieci persone con schermo, lavagna e accesso dalle 8 alle 20 nei giorni feriali.",
			PricePerHour: 40,
			Capacity:     10,
			Published:    true,
			Schedule: domain.SpaceSchedule{
				Weekdays:  []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
				OpenTime:  "08:00",
				CloseTime: "20:00",
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	bookings := []domain.Booking{
		{
			ID:        "bk_demo_1",
			SpaceID:   "sp_navigli",
			UserID:    "user_demo",
			HostID:    "host_demo",
			Date:      tomorrow,
			StartTime: "10:00",
			EndTime:   "12:00",
			Guests:    1,
			Status:    domain.BookingStatusConfirmed,
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:              "bk_demo_2",
			SpaceID:         "sp_navigli",
			UserID:          "user_demo",
			HostID:          "host_demo",
			Date:            tomorrow,
			StartTime:       "14:00",
			EndTime:         "15:00",
			Guests:          2,
			Status:          domain.BookingStatusPendingPayment,
			PaymentDeadline: &paymentDeadline,
			CreatedAt:       now,
			UpdatedAt:       now,
		},
	}
	return spaces, bookings
}
