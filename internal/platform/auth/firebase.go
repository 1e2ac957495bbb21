package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/deskhub/api/internal/platform/config"
	"google.golang.org/api/option"
)

const (
	defaultFirebaseVerifyTimeout = 3 * time.Second
	// revocation checks add a user-record lookup against the Auth backend
	defaultFirebaseRevocationTimeout = 5 * time.Second
)

// ErrTokenRevoked reports an ID token issued before the user's sessions were revoked, for
// example after a host account was disabled.
var ErrTokenRevoked = errors.New("auth: firebase id token revoked")

type idTokenClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
	VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// FirebaseVerifier checks the Firebase ID tokens that coworkers and hosts present on the
// booking routes: slot locks, checkout parameters and their own booking data. With
// revocation checks on, a user disabled mid-session cannot renew a slot hold or open a
// payment for a pending booking.
type FirebaseVerifier struct {
	client            idTokenClient
	timeout           time.Duration
	revocationTimeout time.Duration
	checkRevoked      bool
}

// FirebaseOption customises FirebaseVerifier instances.
type FirebaseOption func(*FirebaseVerifier)

// WithFirebaseTimeout overrides the budget for a signature-only verification.
func WithFirebaseTimeout(d time.Duration) FirebaseOption {
	return func(v *FirebaseVerifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithFirebaseRevocationCheck enables the user-record lookup and sets its budget. A zero
// duration keeps the default budget.
func WithFirebaseRevocationCheck(d time.Duration) FirebaseOption {
	return func(v *FirebaseVerifier) {
		v.checkRevoked = true
		if d > 0 {
			v.revocationTimeout = d
		}
	}
}

func withIDTokenClient(client idTokenClient) FirebaseOption {
	return func(v *FirebaseVerifier) { v.client = client }
}

// NewFirebaseVerifier constructs a FirebaseVerifier backed by the Admin SDK. The SDK honours
// FIREBASE_AUTH_EMULATOR_HOST, which local runs use instead of real credentials.
func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig, opts ...FirebaseOption) (*FirebaseVerifier, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase project id is required")
	}

	verifier := &FirebaseVerifier{
		timeout:           defaultFirebaseVerifyTimeout,
		revocationTimeout: defaultFirebaseRevocationTimeout,
	}
	if cfg.VerifyTimeout > 0 {
		verifier.timeout = cfg.VerifyTimeout
	}
	if cfg.CheckRevoked {
		verifier.checkRevoked = true
	}
	for _, opt := range opts {
		if opt != nil {
			opt(verifier)
		}
	}
	if verifier.client != nil {
		return verifier, nil
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}
	verifier.client = authClient
	return verifier, nil
}

// VerifyIDToken validates idToken within the configured budget. Revoked tokens map to
// ErrTokenRevoked.
func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	if v == nil || v.client == nil {
		return nil, errors.New("firebase verifier not initialised")
	}

	if !v.checkRevoked {
		ctx, cancel := boundedContext(ctx, v.timeout)
		defer cancel()
		return v.client.VerifyIDToken(ctx, idToken)
	}

	ctx, cancel := boundedContext(ctx, v.revocationTimeout)
	defer cancel()
	token, err := v.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	if err != nil && (firebaseauth.IsIDTokenRevoked(err) || firebaseauth.IsUserDisabled(err)) {
		return nil, fmt.Errorf("%w: %v", ErrTokenRevoked, err)
	}
	return token, err
}

func boundedContext(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
