package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

const (
	envPrefix                  = "API_"
	defaultEnvFile             = ".env"
	defaultSecurityEnvironment = "local"
	defaultOIDCJWKSURL         = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer      = "https://accounts.google.com"
	defaultSecurityIAPIssuer   = "https://cloud.google.com/iap"
	defaultIdempotencyHeader   = "Idempotency-Key"
	defaultIdempotencyTTL      = 24 * time.Hour
)

// Config captures all runtime configuration organised by concern. Every key is read with the
// API_ prefix, e.g. API_SERVER_PORT.
type Config struct {
	Server      ServerConfig      `envPrefix:"SERVER_"`
	Firebase    FirebaseConfig    `envPrefix:"FIREBASE_"`
	Firestore   FirestoreConfig   `envPrefix:"FIRESTORE_"`
	Redis       RedisConfig       `envPrefix:"REDIS_"`
	PubSub      PubSubConfig      `envPrefix:"PUBSUB_"`
	Checkout    CheckoutConfig    `envPrefix:"CHECKOUT_"`
	Pricing     PricingConfig     `envPrefix:"PRICING_"`
	SlotLocks   SlotLockConfig    `envPrefix:"SLOTLOCK_"`
	Expiry      ExpiryConfig      `envPrefix:"EXPIRY_"`
	RateLimits  RateLimitConfig   `envPrefix:"RATELIMIT_"`
	Security    SecurityConfig    `envPrefix:"SECURITY_"`
	Idempotency IdempotencyConfig `envPrefix:"IDEMPOTENCY_"`
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// FirebaseConfig stores Firebase project settings. CheckRevoked adds a user-record lookup to
// every verification so disabled accounts lose access before their token expires.
type FirebaseConfig struct {
	ProjectID       string        `env:"PROJECT_ID"`
	CredentialsFile string        `env:"CREDENTIALS_FILE"`
	VerifyTimeout   time.Duration `env:"VERIFY_TIMEOUT"`
	CheckRevoked    bool          `env:"CHECK_REVOKED"`
}

// FirestoreConfig stores database parameters. Without a project id the service runs on
// in-memory repositories.
type FirestoreConfig struct {
	ProjectID    string `env:"PROJECT_ID"`
	EmulatorHost string `env:"EMULATOR_HOST"`
}

// RedisConfig locates the Redis instance holding slot locks and idempotency records.
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// PubSubConfig selects the topic receiving booking notifications.
type PubSubConfig struct {
	ProjectID          string `env:"PROJECT_ID"`
	NotificationsTopic string `env:"NOTIFICATIONS_TOPIC" envDefault:"booking-notifications"`
}

// CheckoutConfig holds the redirect targets of hosted checkout sessions.
type CheckoutConfig struct {
	SuccessURL string `env:"SUCCESS_URL" envDefault:"https://app.deskhub.it/bookings/success?session_id={CHECKOUT_SESSION_ID}"`
	CancelURL  string `env:"CANCEL_URL" envDefault:"https://app.deskhub.it/bookings/cancelled"`
}

// PricingConfig holds the default fee percentages. ScheduleFile optionally points at a YAML
// fee schedule overriding them.
type PricingConfig struct {
	VATPct         float64 `env:"VAT_PCT" envDefault:"0.22"`
	DisplayFeePct  float64 `env:"DISPLAY_FEE_PCT" envDefault:"0.12"`
	CheckoutFeePct float64 `env:"CHECKOUT_FEE_PCT" envDefault:"0.05"`
	BuyerFeePct    float64 `env:"BUYER_FEE_PCT" envDefault:"0.05"`
	HostFeePct     float64 `env:"HOST_FEE_PCT" envDefault:"0.05"`
	ScheduleFile   string  `env:"SCHEDULE_FILE"`

	Schedule FeeSchedule
}

// SlotLockConfig controls optimistic checkout locks.
type SlotLockConfig struct {
	TTL time.Duration `env:"TTL" envDefault:"5m"`
}

// ExpiryConfig controls the pending booking sweeper. StaleAfter is the gap without a finished
// in-process sweep after which the booking_expiry health check reports degraded.
type ExpiryConfig struct {
	Enabled    bool          `env:"ENABLED" envDefault:"true"`
	Schedule   string        `env:"SCHEDULE" envDefault:"@every 1m"`
	LeaseTTL   time.Duration `env:"LEASE_TTL" envDefault:"2m"`
	BatchSize  int           `env:"BATCH_SIZE" envDefault:"200"`
	StaleAfter time.Duration `env:"STALE_AFTER" envDefault:"10m"`
}

// RateLimitConfig controls request throttling of public endpoints.
type RateLimitConfig struct {
	PublicPerMinute int `env:"PUBLIC_PER_MIN" envDefault:"120"`
}

// SecurityConfig groups authentication settings.
type SecurityConfig struct {
	Environment string     `env:"ENVIRONMENT" envDefault:"local"`
	OIDC        OIDCConfig `envPrefix:"OIDC_"`
}

// OIDCConfig controls Google-signed token verification for scheduler calls. Audiences lists
// "environment=audience" pairs, e.g. "prod=https://api.deskhub.it".
type OIDCConfig struct {
	JWKSURL   string   `env:"JWKS_URL" envDefault:"https://www.googleapis.com/oauth2/v3/certs"`
	Audience  string   `env:"AUDIENCE"`
	Audiences []string `env:"AUDIENCES" envSeparator:","`
	Issuers   []string `env:"ISSUERS" envSeparator:","`
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header string        `env:"HEADER" envDefault:"Idempotency-Key"`
	TTL    time.Duration `env:"TTL" envDefault:"24h"`
}

// IsLocal reports whether the service runs in the local environment.
func (c Config) IsLocal() bool {
	return c.Security.Environment == defaultSecurityEnvironment
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing or invalid field list.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets resolved to nothing.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.names) == 0 {
		return "missing required secrets"
	}
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// RedactedNames returns stable hashes of the missing secret names, safe for logs.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		out = append(out, redactSecretName(name))
	}
	sort.Strings(out)
	return out
}

// Names returns the missing secret field names.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile               string
	envMap                map[string]string
	useSystemEnv          bool
	secret                SecretResolver
	requiredSecrets       []string
	panicOnMissingSecrets bool
}

func defaultLoaderOptions() loaderOptions {
	return loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
}

// WithEnvFile overrides the .env file path used for local overrides. An empty path disables it.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap injects explicit values taking precedence over the system environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver resolves secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// WithRequiredSecrets lists secret fields (e.g. "Redis.Password") that must resolve to a value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) { o.requiredSecrets = append(o.requiredSecrets, names...) }
}

// WithPanicOnMissingSecrets makes Load panic instead of returning MissingSecretsError.
func WithPanicOnMissingSecrets() Option {
	return func(o *loaderOptions) { o.panicOnMissingSecrets = true }
}

// EnvironmentValues returns the merged environment (dotenv < OS env < explicit map) so callers can
// build dependencies such as the secret fetcher before invoking Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := defaultLoaderOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return mergedEnvironment(options)
}

func mergedEnvironment(options loaderOptions) (map[string]string, error) {
	values := make(map[string]string)
	if options.envFile != "" {
		dotenv, err := godotenv.Read(options.envFile)
		switch {
		case err == nil:
			for key, value := range dotenv {
				values[key] = value
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("config: unable to read %s: %w", options.envFile, err)
		}
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if ok && strings.TrimSpace(key) != "" {
				values[key] = value
			}
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// Load parses the API_* configuration, resolves secret references and validates the result.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := defaultLoaderOptions()
	for _, opt := range opts {
		opt(&options)
	}

	values, err := mergedEnvironment(options)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: values, Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	applyDerivedDefaults(&cfg)

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Redis.Password", &cfg.Redis.Password},
		{"Firebase.CredentialsFile", &cfg.Firebase.CredentialsFile},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	schedule, err := LoadFeeSchedule(cfg.Pricing.ScheduleFile, cfg.Pricing)
	if err != nil {
		return Config{}, err
	}
	cfg.Pricing.Schedule = schedule

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}
	return cfg, nil
}

func applyDerivedDefaults(cfg *Config) {
	cfg.Security.Environment = strings.ToLower(strings.TrimSpace(cfg.Security.Environment))
	if cfg.Security.Environment == "" {
		cfg.Security.Environment = defaultSecurityEnvironment
	}
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultSecurityIssuer, defaultSecurityIAPIssuer}
	}
	if cfg.Security.OIDC.Audience == "" {
		cfg.Security.OIDC.Audience = audienceFor(cfg.Security.OIDC.Audiences, cfg.Security.Environment)
	}
}

// audienceFor picks the audience configured for environment. Entries split on the first "=",
// so audiences may contain "=" and ":" themselves.
func audienceFor(entries []string, environment string) string {
	for _, entry := range entries {
		label, audience, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(label), environment) {
			return strings.TrimSpace(audience)
		}
	}
	return ""
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	ref := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var invalid []string
	if strings.TrimSpace(cfg.Server.Port) == "" {
		invalid = append(invalid, "Server.Port")
	}
	if !cfg.IsLocal() {
		if cfg.Firebase.ProjectID == "" {
			invalid = append(invalid, "Firebase.ProjectID")
		}
		if cfg.Firestore.ProjectID == "" {
			invalid = append(invalid, "Firestore.ProjectID")
		}
		if cfg.Security.OIDC.Audience == "" {
			invalid = append(invalid, "Security.OIDC.Audience")
		}
	}
	if cfg.Pricing.VATPct < 0 || cfg.Pricing.VATPct >= 1 {
		invalid = append(invalid, "Pricing.VATPct")
	}
	if cfg.SlotLocks.TTL <= 0 {
		invalid = append(invalid, "SlotLocks.TTL")
	}
	if cfg.Expiry.LeaseTTL <= 0 {
		invalid = append(invalid, "Expiry.LeaseTTL")
	}
	if cfg.Expiry.BatchSize <= 0 {
		invalid = append(invalid, "Expiry.BatchSize")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		invalid = append(invalid, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		invalid = append(invalid, "Idempotency.TTL")
	}
	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	seen := make(map[string]struct{})
	var missing []string
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		if resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		return "secret://" + rest
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}
