package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
)

func TestEventRoundTrip(t *testing.T) {
	want := domain.IndexRebuilt{Version: "20260101T000000Z-abcd1234", Directory: "/data/index/v1", Documents: 42}
	payload, err := encodeEvent(want)
	if err != nil {
		t.Fatalf("encodeEvent() error = %v", err)
	}
	got, err := decodeEvent(payload)
	if err != nil {
		t.Fatalf("decodeEvent() error = %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}
}

func TestEncodeEventRequiresDirectory(t *testing.T) {
	_, err := encodeEvent(domain.IndexRebuilt{Version: "v1"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestHandleMessageSkipsMalformedPayload(t *testing.T) {
	events := &Events{logger: zap.NewNop()}
	calls := 0
	handler := func(context.Context, domain.IndexRebuilt) error {
		calls++
		return nil
	}

	events.handleMessage(context.Background(), &nats.Msg{Data: []byte("not json")}, handler)
	events.handleMessage(context.Background(), &nats.Msg{Data: []byte(`{"version":"v1"}`)}, handler)
	if calls != 0 {
		t.Fatalf("expected malformed events to be dropped, handler called %d times", calls)
	}

	events.handleMessage(context.Background(), &nats.Msg{Data: []byte(`{"version":"v2","directory":"/idx/v2"}`)}, handler)
	if calls != 1 {
		t.Fatalf("expected handler to run once, got %d", calls)
	}
}

func TestHandleMessageIgnoredAfterShutdown(t *testing.T) {
	events := &Events{logger: zap.NewNop()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events.handleMessage(ctx, &nats.Msg{Data: []byte(`{"directory":"/idx/v2"}`)}, func(context.Context, domain.IndexRebuilt) error {
		t.Fatalf("handler must not run after shutdown")
		return nil
	})
}

func TestClassifyNATSError(t *testing.T) {
	if !classifyNATSError(fmt.Errorf("publish: %w", nats.ErrConnectionClosed)).Retryable {
		t.Fatalf("expected closed connection to be retryable")
	}
	if classifyNATSError(context.Canceled).RecordFailure {
		t.Fatalf("canceled context must not count against the breaker")
	}
	if classifyNATSError(nats.ErrBadSubject).Retryable {
		t.Fatalf("bad subject must not be retried")
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	if err := wrapTemporaryIfNeeded(nats.ErrNoServers); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary, got %v", err)
	}
	permanent := errors.New("payload too large")
	if err := wrapTemporaryIfNeeded(permanent); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected permanent error to stay unwrapped, got %v", err)
	}
}
