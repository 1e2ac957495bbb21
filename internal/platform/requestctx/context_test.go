package requestctx

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithActorAnnotatesLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := WithLogger(context.Background(), zap.New(core))

	ctx = WithActor(ctx, Actor{UID: " alice "})
	Logger(ctx).Info("lock acquired")

	actor, ok := ActorFrom(ctx)
	if !ok || actor.UID != "alice" {
		t.Fatalf("unexpected actor %+v", actor)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["uid"]; got != "alice" {
		t.Fatalf("expected uid field, got %v", got)
	}
}

func TestWithActorServicePrincipal(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := WithLogger(context.Background(), zap.New(core))

	ctx = WithActor(ctx, Actor{UID: "scheduler@deskhub.iam.gserviceaccount.com", Service: true})
	Logger(ctx).Info("sweep")

	if got := logs.All()[0].ContextMap()["service_principal"]; got != "scheduler@deskhub.iam.gserviceaccount.com" {
		t.Fatalf("expected service_principal field, got %v", got)
	}
}

func TestWithActorIgnoresBlankID(t *testing.T) {
	ctx := context.Background()
	if got := WithActor(ctx, Actor{UID: "  "}); got != ctx {
		t.Fatalf("expected context to be unchanged")
	}
	if _, ok := ActorFrom(ctx); ok {
		t.Fatalf("expected no actor")
	}
}

func TestLoggerDefaultsToNoop(t *testing.T) {
	if Logger(context.Background()) != NoopLogger() {
		t.Fatalf("expected noop logger")
	}
	if TraceID(context.Background()) != "" {
		t.Fatalf("expected empty trace id")
	}
}
