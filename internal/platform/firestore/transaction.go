package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"

	"github.com/deskhub/api/internal/platform/requestctx"
)

const (
	defaultTxAttempts = 5
	defaultTxTimeout  = 15 * time.Second
	defaultTxOp       = "transaction"
)

// TxFunc is executed within a Firestore transaction. It may run several times when Firestore
// aborts on contention, so it must reset any state it accumulates across attempts.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption customises transaction behaviour.
type TxOption func(*txConfig)

type txConfig struct {
	attempts int
	timeout  time.Duration
	op       string
}

// WithTxAttempts overrides the retry attempts for a transaction.
func WithTxAttempts(attempts int) TxOption {
	return func(cfg *txConfig) {
		if attempts > 0 {
			cfg.attempts = attempts
		}
	}
}

// WithTxTimeout caps the transaction duration. A shorter deadline on the caller's context wins.
func WithTxTimeout(timeout time.Duration) TxOption {
	return func(cfg *txConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// WithTxOperation names the transaction in wrapped errors and retry logs, e.g. "bookings.claim".
func WithTxOperation(op string) TxOption {
	return func(cfg *txConfig) {
		if op != "" {
			cfg.op = op
		}
	}
}

// RunTransaction executes fn within a transaction on the provided client. Attempts beyond the
// first are logged on the request logger with the operation name.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	cfg := txConfig{attempts: defaultTxAttempts, timeout: defaultTxTimeout, op: defaultTxOp}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if client == nil {
		return WrapError(cfg.op, errors.New("firestore: client is nil"))
	}
	if fn == nil {
		return WrapError(cfg.op, errors.New("firestore: transaction function is nil"))
	}

	txCtx, cancel := boundTxContext(ctx, cfg.timeout)
	defer cancel()

	attempts := 0
	err := client.RunTransaction(txCtx, func(ctx context.Context, tx *firestore.Transaction) error {
		attempts++
		return fn(ctx, tx)
	}, firestore.MaxAttempts(cfg.attempts))
	if attempts > 1 {
		requestctx.Logger(ctx).Info("firestore transaction retried",
			zap.String("op", cfg.op),
			zap.Int("attempts", attempts),
			zap.Bool("committed", err == nil))
	}
	return WrapError(cfg.op, err)
}

// boundTxContext applies timeout unless ctx already expires sooner.
func boundTxContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= timeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
