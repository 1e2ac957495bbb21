package requestctx

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey contextKey = "deskhub/logger"
	traceKey  contextKey = "deskhub/trace"
	actorKey  contextKey = "deskhub/actor"
	slotKey   contextKey = "deskhub/actor-slot"
)

var noopLogger = zap.NewNop()

// TraceInfo holds the Cloud Trace identifiers of the current request.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// Actor identifies who issued the request: a Firebase user or an internal service principal.
type Actor struct {
	UID     string
	Service bool
}

func (a Actor) logField() zap.Field {
	if a.Service {
		return zap.String("service_principal", a.UID)
	}
	return zap.String("uid", a.UID)
}

func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// Logger returns the request logger, or the shared no-op logger when none is bound.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

func NoopLogger() *zap.Logger { return noopLogger }

func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceKey, info)
}

func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey).(TraceInfo)
	return info, ok
}

func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithActor records the authenticated caller and rebinds the request logger so that every
// later log line carries the caller id. Blank ids leave the context untouched.
func WithActor(ctx context.Context, actor Actor) context.Context {
	actor.UID = strings.TrimSpace(actor.UID)
	if actor.UID == "" {
		return ctx
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, actorKey, actor)
	if slot, ok := ctx.Value(slotKey).(*ActorSlot); ok && slot != nil {
		slot.set(actor)
	}
	if logger := Logger(ctx); logger != noopLogger {
		ctx = WithLogger(ctx, logger.With(actor.logField()))
	}
	return ctx
}

func ActorFrom(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// ActorSlot lets an outer middleware observe the actor bound further down the chain, since
// contexts only propagate towards the handler.
type ActorSlot struct {
	mu    sync.Mutex
	actor Actor
	ok    bool
}

func (s *ActorSlot) set(actor Actor) {
	s.mu.Lock()
	s.actor, s.ok = actor, true
	s.mu.Unlock()
}

// Actor returns the actor recorded in the slot, if any.
func (s *ActorSlot) Actor() (Actor, bool) {
	if s == nil {
		return Actor{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actor, s.ok
}

func WithActorSlot(ctx context.Context) (context.Context, *ActorSlot) {
	if ctx == nil {
		ctx = context.Background()
	}
	slot := &ActorSlot{}
	return context.WithValue(ctx, slotKey, slot), slot
}
